// Package remote talks to the user-profile and notification services.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

var (
	// ErrRemote is wrapped by every failure reported by a remote service.
	ErrRemote = errors.New("remote service error")
	// ErrRemoteDisabled is returned when no base URL is configured.
	ErrRemoteDisabled = errors.New("remote service not configured")
)

// Notification types understood by the notification service.
const (
	TypeWelcome        = "WELCOME"
	TypeSecurityAlert  = "SECURITY_ALERT"
	TypeSecurityUpdate = "SECURITY_UPDATE"
)

type Notification struct {
	UserID  string `json:"userId"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type ProfileClient interface {
	CreateUser(ctx context.Context, p entity.Profile, bearer string) (*entity.Profile, error)
	GetUser(ctx context.Context, id, bearer string) (*entity.Profile, error)
	UpdateUser(ctx context.Context, id string, p entity.Profile, bearer string) (*entity.Profile, error)
}

type NotificationClient interface {
	Send(ctx context.Context, n Notification, bearer string) error
}

// StatusError carries a non-2xx answer from a remote service.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s responded %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s responded %d: %s", e.Service, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrRemote }

// maxErrorBody caps how much of an error response is kept on StatusError.
const maxErrorBody = 512

type httpDoer struct {
	service string
	baseURL string
	client  *http.Client
}

func newDoer(service, baseURL string, client *http.Client) httpDoer {
	if client == nil {
		client = http.DefaultClient
	}
	return httpDoer{service: service, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// do sends in as JSON (when non-nil) and decodes a 2xx body into out (when
// non-nil).
func (d httpDoer) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", d.service, err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s %s: %w", d.service, method, path, errors.Join(ErrRemote, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Service: d.service, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s response: %w", d.service, errors.Join(ErrRemote, err))
	}
	return nil
}

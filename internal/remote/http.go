package remote

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// HTTPProfileClient calls the user service's profile endpoints.
type HTTPProfileClient struct {
	d httpDoer
}

func NewHTTPProfileClient(baseURL string, client *http.Client) *HTTPProfileClient {
	return &HTTPProfileClient{d: newDoer("user-service", baseURL, client)}
}

func (c *HTTPProfileClient) CreateUser(ctx context.Context, p entity.Profile, bearer string) (*entity.Profile, error) {
	var out entity.Profile
	if err := c.d.do(ctx, http.MethodPost, "/api/users/create", bearer, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPProfileClient) GetUser(ctx context.Context, id, bearer string) (*entity.Profile, error) {
	var out entity.Profile
	if err := c.d.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(id), bearer, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPProfileClient) UpdateUser(ctx context.Context, id string, p entity.Profile, bearer string) (*entity.Profile, error) {
	var out entity.Profile
	if err := c.d.do(ctx, http.MethodPut, "/api/users/"+url.PathEscape(id), bearer, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HTTPNotificationClient posts notifications to the notification service.
type HTTPNotificationClient struct {
	d httpDoer
}

func NewHTTPNotificationClient(baseURL string, client *http.Client) *HTTPNotificationClient {
	return &HTTPNotificationClient{d: newDoer("notification-service", baseURL, client)}
}

func (c *HTTPNotificationClient) Send(ctx context.Context, n Notification, bearer string) error {
	return c.d.do(ctx, http.MethodPost, "/api/notifications/send", bearer, n, nil)
}

// DisabledProfileClient stands in when USER_SERVICE_URL is unset.
type DisabledProfileClient struct{}

func (DisabledProfileClient) CreateUser(context.Context, entity.Profile, string) (*entity.Profile, error) {
	return nil, ErrRemoteDisabled
}

func (DisabledProfileClient) GetUser(context.Context, string, string) (*entity.Profile, error) {
	return nil, ErrRemoteDisabled
}

func (DisabledProfileClient) UpdateUser(context.Context, string, entity.Profile, string) (*entity.Profile, error) {
	return nil, ErrRemoteDisabled
}

// DisabledNotificationClient stands in when NOTIFICATION_SERVICE_URL is unset.
type DisabledNotificationClient struct{}

func (DisabledNotificationClient) Send(context.Context, Notification, string) error {
	return ErrRemoteDisabled
}

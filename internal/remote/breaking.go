package remote

import (
	"context"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/resilience"
)

// BreakingProfileClient guards a ProfileClient with a circuit breaker. When
// the breaker rejects a call the error wraps resilience.ErrCircuitOpen.
type BreakingProfileClient struct {
	next    ProfileClient
	breaker *resilience.Breaker
}

func NewBreakingProfileClient(next ProfileClient, b *resilience.Breaker) *BreakingProfileClient {
	return &BreakingProfileClient{next: next, breaker: b}
}

func (c *BreakingProfileClient) CreateUser(ctx context.Context, p entity.Profile, bearer string) (*entity.Profile, error) {
	var out *entity.Profile
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.next.CreateUser(ctx, p, bearer)
		return err
	})
	return out, err
}

func (c *BreakingProfileClient) GetUser(ctx context.Context, id, bearer string) (*entity.Profile, error) {
	var out *entity.Profile
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.next.GetUser(ctx, id, bearer)
		return err
	})
	return out, err
}

func (c *BreakingProfileClient) UpdateUser(ctx context.Context, id string, p entity.Profile, bearer string) (*entity.Profile, error) {
	var out *entity.Profile
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.next.UpdateUser(ctx, id, p, bearer)
		return err
	})
	return out, err
}

// BreakingNotificationClient guards a NotificationClient. Notifications are
// best-effort: any failure, including an open breaker, is logged and dropped.
type BreakingNotificationClient struct {
	next    NotificationClient
	breaker *resilience.Breaker
	logger  *zap.SugaredLogger
}

func NewBreakingNotificationClient(next NotificationClient, b *resilience.Breaker, logger *zap.SugaredLogger) *BreakingNotificationClient {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &BreakingNotificationClient{next: next, breaker: b, logger: logger}
}

func (c *BreakingNotificationClient) Send(ctx context.Context, n Notification, bearer string) error {
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.next.Send(ctx, n, bearer)
	})
	if err != nil {
		c.logger.Warnw("notification service unavailable", "user_id", n.UserID, "type", n.Type, "err", err)
	}
	return nil
}

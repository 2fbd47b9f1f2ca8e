package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/logistics-auth/internal/domain"
	pkgkafka "github.com/utafrali/logistics-auth/pkg/kafka"
	"github.com/utafrali/logistics-auth/pkg/logger"
)

// Event types, also used to derive topic names.
const (
	TypeLoginSucceeded = "auth.login_succeeded"
	TypeLoginFailed    = "auth.login_failed"
	TypeAccountLocked  = "auth.account_locked"
	TypeLoggedOut      = "auth.logged_out"
)

// Kafka topics for authentication audit events.
var (
	TopicLoginSucceeded = pkgkafka.Topic("auth", "login_succeeded")
	TopicLoginFailed    = pkgkafka.Topic("auth", "login_failed")
	TopicAccountLocked  = pkgkafka.Topic("auth", "account_locked")
	TopicLoggedOut      = pkgkafka.Topic("auth", "logged_out")
)

// AggregateTypeAccount is the aggregate every auth event belongs to.
const AggregateTypeAccount = "account"

// SourceAuthService identifies events originating from this service.
const SourceAuthService = "auth-service"

// Failure reasons carried by login_failed events.
const (
	ReasonWrongPassword = "wrong_password"
	ReasonInactive      = "inactive"
	ReasonLocked        = "locked"
)

// LoginSucceededData is the payload for an auth.login_succeeded event.
type LoginSucceededData struct {
	AccountID string    `json:"account_id"`
	Username  string    `json:"username"`
	LoginAt   time.Time `json:"login_at"`
}

// LoginFailedData is the payload for an auth.login_failed event.
type LoginFailedData struct {
	AccountID      string `json:"account_id"`
	Username       string `json:"username"`
	Reason         string `json:"reason"`
	FailedAttempts int    `json:"failed_attempts"`
}

// AccountLockedData is the payload for an auth.account_locked event.
type AccountLockedData struct {
	AccountID      string    `json:"account_id"`
	Username       string    `json:"username"`
	FailedAttempts int       `json:"failed_attempts"`
	LockedUntil    time.Time `json:"locked_until"`
}

// LoggedOutData is the payload for an auth.logged_out event.
type LoggedOutData struct {
	AccountID string `json:"account_id"`
}

// Publisher is the Kafka surface the producer needs; *pkgkafka.Producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes authentication audit events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewProducer creates a new audit event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
		now:    time.Now,
	}
}

// PublishLoginSucceeded publishes an auth.login_succeeded event.
func (p *Producer) PublishLoginSucceeded(ctx context.Context, acct *domain.Account) error {
	var at time.Time
	if acct.LastLogin != nil {
		at = acct.LastLogin.UTC()
	}
	data := LoginSucceededData{AccountID: acct.ID, Username: acct.Username, LoginAt: at}
	return p.publish(ctx, TypeLoginSucceeded, TopicLoginSucceeded, acct.ID, data)
}

// PublishLoginFailed publishes an auth.login_failed event for a known account.
func (p *Producer) PublishLoginFailed(ctx context.Context, acct *domain.Account, reason string) error {
	data := LoginFailedData{
		AccountID:      acct.ID,
		Username:       acct.Username,
		Reason:         reason,
		FailedAttempts: acct.FailedAttempts,
	}
	return p.publish(ctx, TypeLoginFailed, TopicLoginFailed, acct.ID, data)
}

// PublishAccountLocked publishes an auth.account_locked event.
func (p *Producer) PublishAccountLocked(ctx context.Context, acct *domain.Account) error {
	if acct.LockedUntil == nil {
		return fmt.Errorf("publish %s: account %s has no lock", TypeAccountLocked, acct.ID)
	}
	data := AccountLockedData{
		AccountID:      acct.ID,
		Username:       acct.Username,
		FailedAttempts: acct.FailedAttempts,
		LockedUntil:    acct.LockedUntil.UTC(),
	}
	return p.publish(ctx, TypeAccountLocked, TopicAccountLocked, acct.ID, data)
}

// PublishLoggedOut publishes an auth.logged_out event.
func (p *Producer) PublishLoggedOut(ctx context.Context, accountID string) error {
	return p.publish(ctx, TypeLoggedOut, TopicLoggedOut, accountID, LoggedOutData{AccountID: accountID})
}

func (p *Producer) publish(ctx context.Context, eventType, topic, accountID string, data any) error {
	ev, err := pkgkafka.NewEvent(eventType, accountID, AggregateTypeAccount, SourceAuthService, p.now(), data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		ev.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, ev); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published "+eventType+" event",
		slog.String("account_id", accountID),
	)
	return nil
}

// Nop discards every event. It is used when Kafka is disabled.
type Nop struct{}

func (Nop) PublishLoginSucceeded(context.Context, *domain.Account) error { return nil }
func (Nop) PublishLoginFailed(context.Context, *domain.Account, string) error { return nil }
func (Nop) PublishAccountLocked(context.Context, *domain.Account) error { return nil }
func (Nop) PublishLoggedOut(context.Context, string) error { return nil }

package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/logistics-auth/internal/domain"
	pkgkafka "github.com/utafrali/logistics-auth/pkg/kafka"
	"github.com/utafrali/logistics-auth/pkg/logger"
)

type published struct {
	topic string
	event *pkgkafka.Event
}

type fakePublisher struct {
	sent []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, ev *pkgkafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{topic: topic, event: ev})
	return nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestProducer(pub Publisher) *Producer {
	p := NewProducer(pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.now = func() time.Time { return testNow }
	return p
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "logistics.auth.login_succeeded", TopicLoginSucceeded)
	assert.Equal(t, "logistics.auth.login_failed", TopicLoginFailed)
	assert.Equal(t, "logistics.auth.account_locked", TopicAccountLocked)
	assert.Equal(t, "logistics.auth.logged_out", TopicLoggedOut)
}

func TestPublishLoginSucceeded(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProducer(pub)

	acct := &domain.Account{ID: "acct-1", Username: "admin", LastLogin: &testNow}
	ctx := logger.WithCorrelationID(context.Background(), "corr-1")

	require.NoError(t, p.PublishLoginSucceeded(ctx, acct))
	require.Len(t, pub.sent, 1)

	got := pub.sent[0]
	assert.Equal(t, TopicLoginSucceeded, got.topic)
	assert.Equal(t, TypeLoginSucceeded, got.event.EventType)
	assert.Equal(t, "acct-1", got.event.AggregateID)
	assert.Equal(t, AggregateTypeAccount, got.event.AggregateType)
	assert.Equal(t, SourceAuthService, got.event.Source)
	assert.Equal(t, "corr-1", got.event.CorrelationID)
	assert.Equal(t, testNow, got.event.Timestamp)

	var data LoginSucceededData
	require.NoError(t, got.event.UnmarshalData(&data))
	assert.Equal(t, "admin", data.Username)
	assert.Equal(t, testNow, data.LoginAt)
}

func TestPublishLoginFailed(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProducer(pub)

	acct := &domain.Account{ID: "acct-1", Username: "admin", FailedAttempts: 3}
	require.NoError(t, p.PublishLoginFailed(context.Background(), acct, ReasonWrongPassword))

	var data LoginFailedData
	require.NoError(t, pub.sent[0].event.UnmarshalData(&data))
	assert.Equal(t, ReasonWrongPassword, data.Reason)
	assert.Equal(t, 3, data.FailedAttempts)
	assert.Empty(t, pub.sent[0].event.CorrelationID)
}

func TestPublishAccountLocked(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProducer(pub)

	until := testNow.Add(30 * time.Minute)
	acct := &domain.Account{ID: "acct-1", Username: "admin", FailedAttempts: 5, LockedUntil: &until}
	require.NoError(t, p.PublishAccountLocked(context.Background(), acct))

	var data AccountLockedData
	require.NoError(t, pub.sent[0].event.UnmarshalData(&data))
	assert.Equal(t, until, data.LockedUntil)
	assert.Equal(t, TopicAccountLocked, pub.sent[0].topic)
}

func TestPublishAccountLocked_RequiresLock(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProducer(pub)

	err := p.PublishAccountLocked(context.Background(), &domain.Account{ID: "acct-1"})
	require.Error(t, err)
	assert.Empty(t, pub.sent)
}

func TestPublishLoggedOut(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProducer(pub)

	require.NoError(t, p.PublishLoggedOut(context.Background(), "acct-1"))
	assert.Equal(t, TopicLoggedOut, pub.sent[0].topic)
	assert.Equal(t, "acct-1", pub.sent[0].event.AggregateID)
}

func TestPublish_WrapsKafkaError(t *testing.T) {
	p := newTestProducer(&fakePublisher{err: errors.New("broker down")})

	err := p.PublishLoggedOut(context.Background(), "acct-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish auth.logged_out event")
	assert.Contains(t, err.Error(), "broker down")
}

func TestNop(t *testing.T) {
	var n Nop
	ctx := context.Background()
	acct := &domain.Account{ID: "acct-1"}

	assert.NoError(t, n.PublishLoginSucceeded(ctx, acct))
	assert.NoError(t, n.PublishLoginFailed(ctx, acct, ReasonLocked))
	assert.NoError(t, n.PublishAccountLocked(ctx, acct))
	assert.NoError(t, n.PublishLoggedOut(ctx, "acct-1"))
}

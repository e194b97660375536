package outbox_poller

import (
	"context"

	"github.com/progress-ledger/internal/domain/anchor"
	"github.com/progress-ledger/internal/domain/outbox"
	"github.com/progress-ledger/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

type MockOutboxQueue struct {
	mock.Mock
}

func (m *MockOutboxQueue) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxQueue) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockOutboxQueue) IncrementAttempts(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type MockAnchorRecorder struct {
	mock.Mock
}

func (m *MockAnchorRecorder) Record(ctx context.Context, a *anchor.Anchor) error {
	return m.Called(ctx, a).Error(0)
}

type MockMessagePublisher struct {
	mock.Mock
}

func (m *MockMessagePublisher) Publish(ctx context.Context, key string, value interface{}) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *MockMessagePublisher) Close() error {
	return m.Called().Error(0)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishEvent(ctx context.Context, message *outbox.Message) error {
	return m.Called(ctx, message).Error(0)
}

package outbox_poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/progress-ledger/internal/domain/anchor"
	"github.com/progress-ledger/internal/domain/hashchain"
	"github.com/progress-ledger/internal/domain/outbox"
	"github.com/progress-ledger/internal/domain/progress"
	"github.com/progress-ledger/internal/domain/shared"
	"github.com/progress-ledger/internal/platform/correlation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var anchoredAt = time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)

func newOutboxMessage(t *testing.T, id int64, projectID string, sequence int64) *outbox.Message {
	t.Helper()
	record := progress.NewRecord(projectID, decimal.RequireFromString("50"), progress.Date{Year: 2025, Month: time.June, Day: int(sequence)}, "", "deo-17")
	require.NoError(t, record.Link(hashchain.GenesisHash))
	record.Sequence = sequence
	record.CreatedAt = anchoredAt.Add(-time.Hour)

	msg, err := outbox.NewMessage(progress.NewRecordedEvent(record, "corr-"+projectID))
	require.NoError(t, err)
	msg.ID = id
	return msg
}

func newTestPublisher(repo *MockOutboxQueue, anchors *MockAnchorRecorder, producer *MockMessagePublisher) *EventPublisherImpl {
	p := NewEventPublisher(repo, anchors, producer, zap.NewNop())
	p.now = func() time.Time { return anchoredAt }
	return p
}

func TestEventPublisher_PublishEvent(t *testing.T) {
	t.Run("AnchorsPublishesAndMarksProcessed", func(t *testing.T) {
		repo, anchors, producer := new(MockOutboxQueue), new(MockAnchorRecorder), new(MockMessagePublisher)
		msg := newOutboxMessage(t, 7, "P1", 3)
		event, err := msg.Event()
		require.NoError(t, err)

		anchors.On("Record", mock.Anything, mock.MatchedBy(func(a *anchor.Anchor) bool {
			return a.ProjectID == "P1" && a.Sequence == 3 && a.RecordHash == event.RecordHash && a.AnchoredAt.Equal(anchoredAt)
		})).Return(nil).Once()
		producer.On("Publish", mock.MatchedBy(func(ctx context.Context) bool {
			return correlation.FromContext(ctx) == "corr-P1"
		}), "P1", mock.MatchedBy(func(e *progress.RecordedEvent) bool {
			return e.RecordID == event.RecordID && e.Sequence == 3
		})).Return(nil).Once()
		repo.On("UpdateStatus", mock.Anything, int64(7), shared.OutboxStatusProcessed).Return(nil).Once()

		require.NoError(t, newTestPublisher(repo, anchors, producer).PublishEvent(context.Background(), msg))

		repo.AssertExpectations(t)
		anchors.AssertExpectations(t)
		producer.AssertExpectations(t)
	})

	t.Run("CorruptPayloadIsMarkedFailed", func(t *testing.T) {
		repo, anchors, producer := new(MockOutboxQueue), new(MockAnchorRecorder), new(MockMessagePublisher)
		msg := &outbox.Message{ID: 9, ProjectID: "P1", Payload: []byte(`{"record_id":`)}
		repo.On("UpdateStatus", mock.Anything, int64(9), shared.OutboxStatusFailedToPublish).Return(nil).Once()

		err := newTestPublisher(repo, anchors, producer).PublishEvent(context.Background(), msg)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUndecodablePayload)
		repo.AssertExpectations(t)
		anchors.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
		producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("AnchorFailureStopsPublish", func(t *testing.T) {
		repo, anchors, producer := new(MockOutboxQueue), new(MockAnchorRecorder), new(MockMessagePublisher)
		anchors.On("Record", mock.Anything, mock.Anything).Return(errors.New("mongo down")).Once()

		err := newTestPublisher(repo, anchors, producer).PublishEvent(context.Background(), newOutboxMessage(t, 1, "P1", 1))

		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUndecodablePayload)
		producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("PublishFailureLeavesRowPending", func(t *testing.T) {
		repo, anchors, producer := new(MockOutboxQueue), new(MockAnchorRecorder), new(MockMessagePublisher)
		anchors.On("Record", mock.Anything, mock.Anything).Return(nil).Once()
		producer.On("Publish", mock.Anything, "P1", mock.Anything).Return(errors.New("kafka down")).Once()

		err := newTestPublisher(repo, anchors, producer).PublishEvent(context.Background(), newOutboxMessage(t, 1, "P1", 1))

		require.Error(t, err)
		repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("StatusUpdateFailure", func(t *testing.T) {
		repo, anchors, producer := new(MockOutboxQueue), new(MockAnchorRecorder), new(MockMessagePublisher)
		anchors.On("Record", mock.Anything, mock.Anything).Return(nil).Once()
		producer.On("Publish", mock.Anything, "P1", mock.Anything).Return(nil).Once()
		repo.On("UpdateStatus", mock.Anything, int64(1), shared.OutboxStatusProcessed).Return(errors.New("db down")).Once()

		err := newTestPublisher(repo, anchors, producer).PublishEvent(context.Background(), newOutboxMessage(t, 1, "P1", 1))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to mark outbox 1 as PROCESSED")
	})
}

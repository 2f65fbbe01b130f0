package application

import (
	"context"
	"errors"
	"time"

	stream "cascade/internal/stream/domain"
)

// ActivityRecorder turns lifecycle events into activity history entries.
type ActivityRecorder struct {
	repo  ActivityRepository
	clock func() time.Time
}

// NewActivityRecorder constructs the recorder.
func NewActivityRecorder(repo ActivityRepository) (*ActivityRecorder, error) {
	if repo == nil {
		return nil, errors.New("activity recorder: nil repository")
	}
	return &ActivityRecorder{repo: repo, clock: time.Now}, nil
}

// Record appends the entry for event. eventID keys the entry so a redelivered
// event is stored once.
func (r *ActivityRecorder) Record(ctx context.Context, eventID string, event any) error {
	entry, ok := ActivityFromEvent(event)
	if !ok {
		return nil
	}
	entry.EventID = eventID
	entry.RecordedAt = r.clock().UTC()
	return r.repo.Append(ctx, entry)
}

// ActivityFromEvent maps a lifecycle event to an activity entry.
func ActivityFromEvent(event any) (ActivityEntry, bool) {
	var (
		base StreamEvent
		kind stream.OperationKind
	)
	switch e := event.(type) {
	case StreamCreated:
		base, kind = e.StreamEvent, stream.OpCreateStream
	case StreamToppedUp:
		base, kind = e.StreamEvent, stream.OpTopUpStream
	case FundsWithdrawn:
		base, kind = e.StreamEvent, stream.OpWithdraw
	case StreamClosed:
		base, kind = e.StreamEvent, stream.OpCloseStream
	case EmergencyWithdrawn:
		base, kind = e.StreamEvent, stream.OpEmployerEmergencyWithdraw
	case ActivityRefreshed:
		base, kind = e.StreamEvent, stream.OpRefreshActivity
	default:
		return ActivityEntry{}, false
	}
	return ActivityEntry{
		StreamID:   stream.StreamID(base.StreamID),
		Kind:       kind,
		Actor:      stream.Authority(base.Actor),
		Amount:     base.Amount,
		LedgerTime: base.LedgerTime,
	}, true
}

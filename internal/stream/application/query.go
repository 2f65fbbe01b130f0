package application

import (
	"context"
	"errors"
	"time"

	stream "cascade/internal/stream/domain"
)

// ActivityEntry is one line of a stream's activity history.
type ActivityEntry struct {
	EventID    string
	StreamID   stream.StreamID
	Kind       stream.OperationKind
	Actor      stream.Authority
	Amount     uint64
	LedgerTime int64
	RecordedAt time.Time
}

// StreamView is a record with vesting evaluated at the ledger's now.
type StreamView struct {
	Stream       *stream.Stream
	Now          int64
	Vested       uint64
	Withdrawable uint64
	Escrow       uint64
	// InactiveFor is now - last_activity_time, in seconds.
	InactiveFor int64
}

// QueryService serves read models restricted to the stream's parties.
type QueryService struct {
	streams  StreamQuery
	activity ActivityRepository
}

// NewQueryService constructs the service. activity may be nil.
func NewQueryService(streams StreamQuery, activity ActivityRepository) (*QueryService, error) {
	if streams == nil {
		return nil, errors.New("stream query service: nil stream query")
	}
	return &QueryService{streams: streams, activity: activity}, nil
}

// Get returns the stream as seen by viewer.
func (s *QueryService) Get(ctx context.Context, viewer stream.Authority, id stream.StreamID) (StreamView, error) {
	record, err := s.streams.Get(ctx, id)
	if err != nil {
		return StreamView{}, err
	}
	if !isParty(record, viewer) {
		return StreamView{}, stream.ErrUnauthorized
	}
	now, err := s.streams.Now(ctx)
	if err != nil {
		return StreamView{}, err
	}
	return NewStreamView(record, now)
}

// ListByParty returns every stream where party is employer or employee.
func (s *QueryService) ListByParty(ctx context.Context, party stream.Authority) ([]StreamView, error) {
	if !party.Valid() {
		return nil, stream.ErrInvalidParty
	}
	records, err := s.streams.ListByParty(ctx, party)
	if err != nil {
		return nil, err
	}
	now, err := s.streams.Now(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]StreamView, 0, len(records))
	for _, record := range records {
		view, err := NewStreamView(record, now)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Activity returns the activity history of a stream, oldest first.
func (s *QueryService) Activity(ctx context.Context, viewer stream.Authority, id stream.StreamID, limit int) ([]ActivityEntry, error) {
	record, err := s.streams.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParty(record, viewer) {
		return nil, stream.ErrUnauthorized
	}
	if s.activity == nil {
		return nil, nil
	}
	return s.activity.ListByStream(ctx, id, limit)
}

// NewStreamView evaluates the vesting calculator for record at now.
func NewStreamView(record *stream.Stream, now int64) (StreamView, error) {
	vested, err := stream.Vested(record.Schedule(), now)
	if err != nil {
		return StreamView{}, err
	}
	withdrawable, err := stream.Withdrawable(record, now)
	if err != nil {
		return StreamView{}, err
	}
	return StreamView{
		Stream:       record,
		Now:          now,
		Vested:       vested,
		Withdrawable: withdrawable,
		Escrow:       record.Escrow(),
		InactiveFor:  now - record.LastActivityTime,
	}, nil
}

func isParty(record *stream.Stream, viewer stream.Authority) bool {
	return viewer != "" && (viewer == record.Employer || viewer == record.Employee)
}

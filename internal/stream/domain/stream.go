package stream

import (
	"strings"

	"github.com/google/uuid"
)

// StreamID is the identity of a stream record (canonical UUID text).
type StreamID string

// NewStreamID allocates a fresh random stream id.
func NewStreamID() StreamID { return StreamID(uuid.NewString()) }

// ParseStreamID validates and normalizes a stream id.
func ParseStreamID(value string) (StreamID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", ErrStreamNotFound
	}
	return StreamID(id.String()), nil
}

// String returns the raw id.
func (id StreamID) String() string { return string(id) }

// MaxAuthorityLen is the fixed width of an authority field in the persisted layout.
const MaxAuthorityLen = 64

// Authority identifies a signer (employer or employee).
type Authority string

// Valid reports whether the authority fits the persisted layout.
func (a Authority) Valid() bool {
	return a != "" && len(a) <= MaxAuthorityLen && !strings.ContainsRune(string(a), 0)
}

// Status is the lifecycle state of a stream.
type Status uint8

const (
	StatusActive Status = 1
	StatusClosed Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stream is the persisted streaming-payment record.
type Stream struct {
	ID             StreamID
	Employer       Authority
	Employee       Authority
	DepositedTotal uint64
	WithdrawnTotal uint64
	StartTime      int64
	EndTime        int64
	CliffTime      *int64
	Status         Status
	// LastActivityTime is the employee's last proof of life.
	LastActivityTime int64
}

// Schedule returns an immutable snapshot of the vesting inputs.
func (s *Stream) Schedule() Schedule {
	sched := Schedule{Start: s.StartTime, End: s.EndTime, Deposited: s.DepositedTotal}
	if s.CliffTime != nil {
		cliff := *s.CliffTime
		sched.Cliff = &cliff
	}
	return sched
}

// IsActive reports whether the stream accepts non-withdraw operations.
func (s *Stream) IsActive() bool { return s != nil && s.Status == StatusActive }

// Clone returns a detached copy.
func (s *Stream) Clone() *Stream {
	if s == nil {
		return nil
	}
	copy := *s
	if s.CliffTime != nil {
		cliff := *s.CliffTime
		copy.CliffTime = &cliff
	}
	return &copy
}

// Escrow returns the amount the escrow must hold for this record.
func (s *Stream) Escrow() uint64 {
	if s.WithdrawnTotal > s.DepositedTotal {
		return 0
	}
	return s.DepositedTotal - s.WithdrawnTotal
}

// CheckInvariants verifies 0 <= withdrawn <= vested(now) <= deposited.
func (s *Stream) CheckInvariants(now int64) error {
	if s.Employer == s.Employee {
		return ErrInvalidParty
	}
	if err := s.Schedule().Validate(); err != nil {
		return err
	}
	if s.Status != StatusActive && s.Status != StatusClosed {
		return ErrCorruptRecord
	}
	vested, err := Vested(s.Schedule(), now)
	if err != nil {
		return err
	}
	if s.WithdrawnTotal > vested || vested > s.DepositedTotal {
		return ErrInsufficientEscrow
	}
	return nil
}

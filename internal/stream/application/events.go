package application

import (
	"time"

	stream "cascade/internal/stream/domain"
)

// StreamEvent carries the fields every lifecycle event shares.
type StreamEvent struct {
	StreamID   string    `json:"stream_id"`
	Actor      string    `json:"actor"`
	Amount     uint64    `json:"amount"`
	LedgerTime int64     `json:"ledger_time"`
	OccurredAt time.Time `json:"occurred_at"`
}

// StreamCreated is emitted when a stream is funded and opened.
type StreamCreated struct {
	StreamEvent
	Employer  string `json:"employer"`
	Employee  string `json:"employee"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	CliffTime *int64 `json:"cliff_time,omitempty"`
}

// StreamToppedUp is emitted when the employer adds funds.
type StreamToppedUp struct {
	StreamEvent
	DepositedTotal uint64 `json:"deposited_total"`
	EndTime        int64  `json:"end_time"`
}

// FundsWithdrawn is emitted when the employee pulls vested funds.
type FundsWithdrawn struct {
	StreamEvent
	WithdrawnTotal uint64 `json:"withdrawn_total"`
}

// StreamClosed is emitted when either party closes the stream.
type StreamClosed struct {
	StreamEvent
	Payout uint64 `json:"payout"`
	Refund uint64 `json:"refund"`
}

// EmergencyWithdrawn is emitted when the employer reclaims an abandoned stream.
type EmergencyWithdrawn struct {
	StreamEvent
	Refund uint64 `json:"refund"`
}

// ActivityRefreshed is emitted when the employee proves liveness.
type ActivityRefreshed struct {
	StreamEvent
}

// EventSamples lists one value of every lifecycle event for registries.
func EventSamples() []any {
	return []any{
		StreamCreated{},
		StreamToppedUp{},
		FundsWithdrawn{},
		StreamClosed{},
		EmergencyWithdrawn{},
		ActivityRefreshed{},
	}
}

func eventFor(signer stream.Authority, result Result, occurredAt time.Time) any {
	s := result.Stream
	base := StreamEvent{
		StreamID:   s.ID.String(),
		Actor:      string(signer),
		Amount:     result.Amount,
		LedgerTime: result.Now,
		OccurredAt: occurredAt,
	}
	switch result.Operation {
	case stream.OpCreateStream:
		return StreamCreated{
			StreamEvent: base,
			Employer:    string(s.Employer),
			Employee:    string(s.Employee),
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
			CliffTime:   s.CliffTime,
		}
	case stream.OpTopUpStream:
		return StreamToppedUp{StreamEvent: base, DepositedTotal: s.DepositedTotal, EndTime: s.EndTime}
	case stream.OpWithdraw:
		return FundsWithdrawn{StreamEvent: base, WithdrawnTotal: s.WithdrawnTotal}
	case stream.OpCloseStream:
		event := StreamClosed{StreamEvent: base}
		for _, tr := range result.Transfers {
			switch tr.To {
			case stream.WalletAccount(s.Employee):
				event.Payout += tr.Amount
			case stream.WalletAccount(s.Employer):
				event.Refund += tr.Amount
			}
		}
		return event
	case stream.OpEmployerEmergencyWithdraw:
		return EmergencyWithdrawn{StreamEvent: base, Refund: result.Amount}
	case stream.OpRefreshActivity:
		return ActivityRefreshed{StreamEvent: base}
	default:
		return nil
	}
}

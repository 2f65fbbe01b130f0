package stream

import (
	"math"
	"strings"
)

// Account addresses a balance held by the ledger runtime.
type Account string

const (
	walletPrefix = "wallet:"
	escrowPrefix = "escrow:"
)

// WalletAccount is the spendable balance of an authority.
func WalletAccount(a Authority) Account { return Account(walletPrefix + string(a)) }

// EscrowAccount is the custodial balance held against a stream.
func EscrowAccount(id StreamID) Account { return Account(escrowPrefix + string(id)) }

// IsEscrow reports whether the account is a stream escrow.
func (a Account) IsEscrow() bool { return strings.HasPrefix(string(a), escrowPrefix) }

// Transfer is a fund movement requested from the ledger runtime.
type Transfer struct {
	From   Account
	To     Account
	Amount uint64
}

// Policy holds the fixed configuration the transitions depend on.
type Policy struct {
	// InactivityThreshold is in ledger seconds.
	InactivityThreshold int64
}

// DefaultInactivityThreshold is 30 days.
const DefaultInactivityThreshold int64 = 30 * 24 * 60 * 60

// DefaultPolicy returns the production policy.
func DefaultPolicy() Policy {
	return Policy{InactivityThreshold: DefaultInactivityThreshold}
}

// Transition is the outcome of applying an operation to a record.
// Next is nil when the operation leaves the record untouched.
type Transition struct {
	Kind      OperationKind
	Created   bool
	Next      *Stream
	Transfers []Transfer
}

// Amount returns the total moved by the transition.
func (t Transition) Amount() uint64 {
	var total uint64
	for _, tr := range t.Transfers {
		total += tr.Amount
	}
	return total
}

// Apply computes the next record and the transfers for op. It is pure: current
// is never mutated, and any error means nothing must be persisted.
func Apply(current *Stream, signer Authority, op Operation, now int64, policy Policy) (Transition, error) {
	if op == nil {
		return Transition{}, ErrInvalidOperation
	}
	if create, ok := op.(CreateStream); ok {
		if current != nil {
			return Transition{}, ErrStreamExists
		}
		return applyCreate(signer, create, now)
	}
	if current == nil {
		return Transition{}, ErrStreamNotFound
	}

	var (
		t   Transition
		err error
	)
	switch o := op.(type) {
	case TopUpStream:
		t, err = applyTopUp(current, signer, o)
	case Withdraw:
		t, err = applyWithdraw(current, signer, now)
	case CloseStream:
		t, err = applyClose(current, signer, now)
	case EmployerEmergencyWithdraw:
		t, err = applyEmergencyWithdraw(current, signer, now, policy)
	case RefreshActivity:
		t, err = applyRefresh(current, signer, now)
	default:
		return Transition{}, ErrInvalidOperation
	}
	if err != nil {
		return Transition{}, err
	}
	t.Kind = op.Kind()
	if t.Next != nil {
		if err := t.Next.CheckInvariants(now); err != nil {
			return Transition{}, err
		}
	}
	return t, nil
}

func applyCreate(signer Authority, op CreateStream, now int64) (Transition, error) {
	if canonical, err := ParseStreamID(string(op.ID)); err != nil || canonical != op.ID {
		return Transition{}, ErrInvalidOperation
	}
	if op.Amount == 0 {
		return Transition{}, ErrInvalidAmount
	}
	if !signer.Valid() || !op.Employee.Valid() || signer == op.Employee {
		return Transition{}, ErrInvalidParty
	}
	sched := Schedule{Start: op.StartTime, End: op.EndTime, Cliff: op.CliffTime, Deposited: op.Amount}
	if err := sched.Validate(); err != nil {
		return Transition{}, err
	}
	// Reject schedules whose vesting product could overflow before end.
	if _, err := MulDiv(op.Amount, sched.Duration(), 1); err != nil {
		return Transition{}, err
	}

	next := &Stream{
		ID:               op.ID,
		Employer:         signer,
		Employee:         op.Employee,
		DepositedTotal:   op.Amount,
		StartTime:        op.StartTime,
		EndTime:          op.EndTime,
		Status:           StatusActive,
		LastActivityTime: now,
	}
	if op.CliffTime != nil {
		cliff := *op.CliffTime
		next.CliffTime = &cliff
	}
	if err := next.CheckInvariants(now); err != nil {
		return Transition{}, err
	}
	return Transition{
		Kind:    OpCreateStream,
		Created: true,
		Next:    next,
		Transfers: []Transfer{{
			From:   WalletAccount(signer),
			To:     EscrowAccount(op.ID),
			Amount: op.Amount,
		}},
	}, nil
}

func applyTopUp(current *Stream, signer Authority, op TopUpStream) (Transition, error) {
	if signer != current.Employer {
		return Transition{}, ErrUnauthorized
	}
	if !current.IsActive() {
		return Transition{}, ErrStreamClosed
	}
	if op.Amount == 0 {
		return Transition{}, ErrInvalidAmount
	}
	if current.DepositedTotal == 0 {
		return Transition{}, ErrArithmetic
	}
	deposited, err := AddChecked(current.DepositedTotal, op.Amount)
	if err != nil {
		return Transition{}, err
	}
	// Keep deposited/duration constant: duration' = deposited' * duration / deposited.
	// A remainder would raise the rate and vest extra funds for time already past.
	duration, rem, err := MulDivRem(deposited, current.Schedule().Duration(), current.DepositedTotal)
	if err != nil {
		return Transition{}, err
	}
	if rem != 0 {
		return Transition{}, ErrUnevenTopUp
	}
	if duration > math.MaxInt64 {
		return Transition{}, ErrArithmetic
	}
	end := current.StartTime + int64(duration)
	if end <= current.StartTime {
		return Transition{}, ErrArithmetic
	}
	if _, err := MulDiv(deposited, duration, 1); err != nil {
		return Transition{}, err
	}

	next := current.Clone()
	next.DepositedTotal = deposited
	next.EndTime = end
	return Transition{
		Next: next,
		Transfers: []Transfer{{
			From:   WalletAccount(current.Employer),
			To:     EscrowAccount(current.ID),
			Amount: op.Amount,
		}},
	}, nil
}

func applyWithdraw(current *Stream, signer Authority, now int64) (Transition, error) {
	if signer != current.Employee {
		return Transition{}, ErrUnauthorized
	}
	amount, err := Withdrawable(current, now)
	if err != nil {
		return Transition{}, err
	}
	if amount == 0 {
		return Transition{}, nil
	}
	withdrawn, err := AddChecked(current.WithdrawnTotal, amount)
	if err != nil {
		return Transition{}, err
	}
	next := current.Clone()
	next.WithdrawnTotal = withdrawn
	next.LastActivityTime = now
	return Transition{
		Next: next,
		Transfers: []Transfer{{
			From:   EscrowAccount(current.ID),
			To:     WalletAccount(current.Employee),
			Amount: amount,
		}},
	}, nil
}

func applyClose(current *Stream, signer Authority, now int64) (Transition, error) {
	if signer != current.Employer && signer != current.Employee {
		return Transition{}, ErrUnauthorized
	}
	if !current.IsActive() {
		return Transition{}, ErrStreamClosed
	}
	vested, err := Vested(current.Schedule(), now)
	if err != nil {
		return Transition{}, err
	}
	payout, err := SubChecked(vested, current.WithdrawnTotal)
	if err != nil {
		return Transition{}, err
	}
	refund, err := SubChecked(current.DepositedTotal, vested)
	if err != nil {
		return Transition{}, err
	}

	next := current.Clone()
	next.WithdrawnTotal = vested
	truncate(next, now, vested)
	next.Status = StatusClosed

	var transfers []Transfer
	if payout > 0 {
		transfers = append(transfers, Transfer{From: EscrowAccount(current.ID), To: WalletAccount(current.Employee), Amount: payout})
	}
	if refund > 0 {
		transfers = append(transfers, Transfer{From: EscrowAccount(current.ID), To: WalletAccount(current.Employer), Amount: refund})
	}
	return Transition{Next: next, Transfers: transfers}, nil
}

func applyEmergencyWithdraw(current *Stream, signer Authority, now int64, policy Policy) (Transition, error) {
	if signer != current.Employer {
		return Transition{}, ErrUnauthorized
	}
	if !current.IsActive() {
		return Transition{}, ErrStreamClosed
	}
	if !InactivityElapsed(current, now, policy.InactivityThreshold) {
		return Transition{}, ErrInactivityNotMet
	}
	vested, err := Vested(current.Schedule(), now)
	if err != nil {
		return Transition{}, err
	}
	refund, err := SubChecked(current.DepositedTotal, vested)
	if err != nil {
		return Transition{}, err
	}

	next := current.Clone()
	truncate(next, now, vested)
	next.Status = StatusClosed

	var transfers []Transfer
	if refund > 0 {
		transfers = append(transfers, Transfer{From: EscrowAccount(current.ID), To: WalletAccount(current.Employer), Amount: refund})
	}
	return Transition{Next: next, Transfers: transfers}, nil
}

func applyRefresh(current *Stream, signer Authority, now int64) (Transition, error) {
	if signer != current.Employee {
		return Transition{}, ErrUnauthorized
	}
	if !current.IsActive() {
		return Transition{}, ErrStreamClosed
	}
	next := current.Clone()
	next.LastActivityTime = now
	return Transition{Next: next}, nil
}

// InactivityElapsed reports whether now - last_activity >= threshold.
func InactivityElapsed(s *Stream, now, threshold int64) bool {
	if now < s.LastActivityTime {
		return false
	}
	return now-s.LastActivityTime >= threshold
}

// truncate ends the schedule at now with deposited = vested, so vested(t)
// stays equal to that amount for every later t.
func truncate(s *Stream, now int64, vested uint64) {
	s.DepositedTotal = vested
	if vested > 0 && now < s.EndTime {
		s.EndTime = now
	}
}

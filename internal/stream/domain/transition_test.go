package stream

import (
	"errors"
	"strings"
	"testing"
)

const (
	employer Authority = "employer-1"
	employee Authority = "employee-1"
	outsider Authority = "outsider-1"
)

func mustCreate(t *testing.T, amount uint64, start, end int64, cliff *int64, now int64) *Stream {
	t.Helper()
	tr, err := Apply(nil, employer, CreateStream{
		ID:        NewStreamID(),
		Employee:  employee,
		Amount:    amount,
		StartTime: start,
		EndTime:   end,
		CliffTime: cliff,
	}, now, DefaultPolicy())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return tr.Next
}

func mustApply(t *testing.T, s *Stream, signer Authority, op Operation, now int64, policy Policy) Transition {
	t.Helper()
	tr, err := Apply(s, signer, op, now, policy)
	if err != nil {
		t.Fatalf("apply %s: %v", op.Kind(), err)
	}
	return tr
}

func TestCreateStream(t *testing.T) {
	s := mustCreate(t, 1000, 10, 1010, nil, 5)
	if s.Status != StatusActive {
		t.Fatalf("expected active, got %s", s.Status)
	}
	if s.WithdrawnTotal != 0 || s.DepositedTotal != 1000 {
		t.Fatalf("unexpected balances: %+v", s)
	}
	if s.LastActivityTime != 5 {
		t.Fatalf("expected last activity 5, got %d", s.LastActivityTime)
	}
	if s.Employer != employer || s.Employee != employee {
		t.Fatalf("unexpected parties: %s/%s", s.Employer, s.Employee)
	}
}

func TestCreateStream_Transfer(t *testing.T) {
	id := NewStreamID()
	tr, err := Apply(nil, employer, CreateStream{ID: id, Employee: employee, Amount: 50, StartTime: 0, EndTime: 10}, 0, DefaultPolicy())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !tr.Created || len(tr.Transfers) != 1 {
		t.Fatalf("unexpected transition: %+v", tr)
	}
	want := Transfer{From: WalletAccount(employer), To: EscrowAccount(id), Amount: 50}
	if tr.Transfers[0] != want {
		t.Fatalf("transfer = %+v, want %+v", tr.Transfers[0], want)
	}
}

func TestCreateStream_ValidationErrors(t *testing.T) {
	cases := []struct {
		name   string
		signer Authority
		op     CreateStream
		want   error
	}{
		{"end before start", employer, CreateStream{Employee: employee, Amount: 1, StartTime: 10, EndTime: 5}, ErrInvalidSchedule},
		{"end equals start", employer, CreateStream{Employee: employee, Amount: 1, StartTime: 10, EndTime: 10}, ErrInvalidSchedule},
		{"cliff before start", employer, CreateStream{Employee: employee, Amount: 1, StartTime: 10, EndTime: 20, CliffTime: int64Ptr(9)}, ErrInvalidSchedule},
		{"cliff after end", employer, CreateStream{Employee: employee, Amount: 1, StartTime: 10, EndTime: 20, CliffTime: int64Ptr(21)}, ErrInvalidSchedule},
		{"same party", employer, CreateStream{Employee: employer, Amount: 1, StartTime: 0, EndTime: 10}, ErrInvalidParty},
		{"empty employee", employer, CreateStream{Amount: 1, StartTime: 0, EndTime: 10}, ErrInvalidParty},
		{"zero amount", employer, CreateStream{Employee: employee, StartTime: 0, EndTime: 10}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.op.ID = NewStreamID()
			tr, err := Apply(nil, tc.signer, tc.op, 0, DefaultPolicy())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if KindOf(err) != KindValidation {
				t.Fatalf("expected validation kind, got %s", KindOf(err))
			}
			if len(tr.Transfers) != 0 || tr.Next != nil {
				t.Fatalf("expected no effects on failure")
			}
		})
	}
}

func TestCreateStream_RejectsNonCanonicalID(t *testing.T) {
	id := string(NewStreamID())
	for _, raw := range []string{"", strings.ToUpper(id), "{" + id + "}", " " + id, "urn:uuid:" + id, "s-1"} {
		tr, err := Apply(nil, employer, CreateStream{
			ID: StreamID(raw), Employee: employee, Amount: 10, StartTime: 0, EndTime: 10,
		}, 0, DefaultPolicy())
		if !errors.Is(err, ErrInvalidOperation) {
			t.Fatalf("%q: expected invalid operation, got %v", raw, err)
		}
		if tr.Next != nil || len(tr.Transfers) != 0 {
			t.Fatalf("%q: expected no effects", raw)
		}
	}
}

func TestCreateStream_Existing(t *testing.T) {
	s := mustCreate(t, 10, 0, 10, nil, 0)
	_, err := Apply(s, employer, CreateStream{ID: s.ID, Employee: employee, Amount: 1, StartTime: 0, EndTime: 10}, 0, DefaultPolicy())
	if !errors.Is(err, ErrStreamExists) {
		t.Fatalf("expected exists, got %v", err)
	}
}

// Scenario A: linear stream, withdraw half then the rest.
func TestWithdraw_ScenarioA(t *testing.T) {
	s := mustCreate(t, 1000, 0, 1000, nil, 0)

	tr := mustApply(t, s, employee, Withdraw{ID: s.ID}, 500, DefaultPolicy())
	if tr.Amount() != 500 {
		t.Fatalf("expected 500, got %d", tr.Amount())
	}
	s = tr.Next
	if s.WithdrawnTotal != 500 || s.LastActivityTime != 500 {
		t.Fatalf("unexpected record: %+v", s)
	}

	tr = mustApply(t, s, employee, Withdraw{ID: s.ID}, 1000, DefaultPolicy())
	if tr.Amount() != 500 {
		t.Fatalf("expected remaining 500, got %d", tr.Amount())
	}
	if tr.Next.WithdrawnTotal != 1000 {
		t.Fatalf("expected fully withdrawn, got %d", tr.Next.WithdrawnTotal)
	}
}

func TestWithdraw_IdempotentAtSameTime(t *testing.T) {
	s := mustCreate(t, 1000, 0, 1000, nil, 0)
	first := mustApply(t, s, employee, Withdraw{ID: s.ID}, 333, DefaultPolicy())
	if first.Amount() != 333 {
		t.Fatalf("expected 333, got %d", first.Amount())
	}
	second := mustApply(t, first.Next, employee, Withdraw{ID: s.ID}, 333, DefaultPolicy())
	if second.Amount() != 0 || second.Next != nil || len(second.Transfers) != 0 {
		t.Fatalf("expected no-op second withdraw, got %+v", second)
	}
}

func TestWithdraw_ZeroIsNoOp(t *testing.T) {
	s := mustCreate(t, 1000, 100, 1100, nil, 0)
	tr := mustApply(t, s, employee, Withdraw{ID: s.ID}, 50, DefaultPolicy())
	if tr.Next != nil {
		t.Fatalf("expected untouched record before start")
	}
}

func TestWithdraw_Unauthorized(t *testing.T) {
	s := mustCreate(t, 1000, 0, 1000, nil, 0)
	for _, signer := range []Authority{employer, outsider} {
		_, err := Apply(s, signer, Withdraw{ID: s.ID}, 500, DefaultPolicy())
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected unauthorized for %s, got %v", signer, err)
		}
		if KindOf(err) != KindAuthorization {
			t.Fatalf("expected authorization kind")
		}
	}
}

func TestTopUp_PreservesRate(t *testing.T) {
	s := mustCreate(t, 1000, 0, 1000, nil, 0)
	tr := mustApply(t, s, employer, TopUpStream{ID: s.ID, Amount: 500}, 400, DefaultPolicy())
	next := tr.Next
	if next.DepositedTotal != 1500 {
		t.Fatalf("expected deposited 1500, got %d", next.DepositedTotal)
	}
	if next.EndTime != 1500 {
		t.Fatalf("expected end 1500, got %d", next.EndTime)
	}
	for _, at := range []int64{0, 100, 399, 400} {
		before, _ := Vested(s.Schedule(), at)
		after, _ := Vested(next.Schedule(), at)
		if before != after {
			t.Fatalf("vested(%d) changed: %d -> %d", at, before, after)
		}
	}
	if tr.Transfers[0] != (Transfer{From: WalletAccount(employer), To: EscrowAccount(s.ID), Amount: 500}) {
		t.Fatalf("unexpected transfer: %+v", tr.Transfers[0])
	}
}

func TestTopUp_RejectsUnevenRate(t *testing.T) {
	// 3 over [0,2] vests 1.5/s; 4 over a floored duration of 2 would vest 2/s
	// and raise vested(1) from 1 to 2.
	s := mustCreate(t, 3, 0, 2, nil, 0)
	tr, err := Apply(s, employer, TopUpStream{ID: s.ID, Amount: 1}, 1, DefaultPolicy())
	if !errors.Is(err, ErrUnevenTopUp) || KindOf(err) != KindValidation {
		t.Fatalf("expected uneven top-up validation error, got %v", err)
	}
	if tr.Next != nil || len(tr.Transfers) != 0 {
		t.Fatalf("expected no effects on failure")
	}

	tr = mustApply(t, s, employer, TopUpStream{ID: s.ID, Amount: 3}, 1, DefaultPolicy())
	if tr.Next.EndTime != 4 || tr.Next.DepositedTotal != 6 {
		t.Fatalf("unexpected even top-up %+v", tr.Next)
	}
	for at := int64(0); at <= 2; at++ {
		before, _ := Vested(s.Schedule(), at)
		after, _ := Vested(tr.Next.Schedule(), at)
		if before != after {
			t.Fatalf("vested(%d) changed: %d -> %d", at, before, after)
		}
	}
}

func TestTopUp_Errors(t *testing.T) {
	s := mustCreate(t, 1000, 0, 1000, nil, 0)
	if _, err := Apply(s, employee, TopUpStream{ID: s.ID, Amount: 1}, 1, DefaultPolicy()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := Apply(s, employer, TopUpStream{ID: s.ID}, 1, DefaultPolicy()); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := Apply(s, employer, TopUpStream{ID: s.ID, Amount: ^uint64(0)}, 1, DefaultPolicy()); !errors.Is(err, ErrArithmetic) {
		t.Fatalf("expected arithmetic, got %v", err)
	}
	closed := mustApply(t, s, employer, CloseStream{ID: s.ID}, 10, DefaultPolicy()).Next
	if _, err := Apply(closed, employer, TopUpStream{ID: s.ID, Amount: 1}, 11, DefaultPolicy()); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
}

func TestCloseStream_Split(t *testing.T) {
	for _, signer := range []Authority{employer, employee} {
		s := mustCreate(t, 1000, 0, 1000, nil, 0)
		s = mustApply(t, s, employee, Withdraw{ID: s.ID}, 100, DefaultPolicy()).Next

		tr := mustApply(t, s, signer, CloseStream{ID: s.ID}, 400, DefaultPolicy())
		want := []Transfer{
			{From: EscrowAccount(s.ID), To: WalletAccount(employee), Amount: 300},
			{From: EscrowAccount(s.ID), To: WalletAccount(employer), Amount: 600},
		}
		if len(tr.Transfers) != len(want) {
			t.Fatalf("transfers = %+v", tr.Transfers)
		}
		for i := range want {
			if tr.Transfers[i] != want[i] {
				t.Fatalf("transfer %d = %+v, want %+v", i, tr.Transfers[i], want[i])
			}
		}
		next := tr.Next
		if next.Status != StatusClosed {
			t.Fatalf("expected closed")
		}
		if next.WithdrawnTotal != 400 || next.DepositedTotal != 400 || next.EndTime != 400 {
			t.Fatalf("unexpected closed record: %+v", next)
		}
		if next.Escrow() != 0 {
			t.Fatalf("expected empty escrow, got %d", next.Escrow())
		}
		residual := mustApply(t, next, employee, Withdraw{ID: s.ID}, 2000, DefaultPolicy())
		if residual.Amount() != 0 {
			t.Fatalf("expected zero residual, got %d", residual.Amount())
		}
	}
}

func TestCloseStream_BeforeStartRefundsAll(t *testing.T) {
	s := mustCreate(t, 1000, 100, 200, nil, 0)
	tr := mustApply(t, s, employer, CloseStream{ID: s.ID}, 50, DefaultPolicy())
	if len(tr.Transfers) != 1 || tr.Transfers[0].To != WalletAccount(employer) || tr.Transfers[0].Amount != 1000 {
		t.Fatalf("unexpected transfers: %+v", tr.Transfers)
	}
	if tr.Next.DepositedTotal != 0 || tr.Next.EndTime != 200 {
		t.Fatalf("unexpected record: %+v", tr.Next)
	}
}

func TestCloseStream_Unauthorized(t *testing.T) {
	s := mustCreate(t, 1000, 0, 1000, nil, 0)
	if _, err := Apply(s, outsider, CloseStream{ID: s.ID}, 1, DefaultPolicy()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

// Scenario B: refresh at 100, threshold 10000.
func TestEmergencyWithdraw_ScenarioB(t *testing.T) {
	policy := Policy{InactivityThreshold: 10000}
	s := mustCreate(t, 100000, 0, 100000, nil, 0)
	s = mustApply(t, s, employee, RefreshActivity{ID: s.ID}, 100, policy).Next
	if s.LastActivityTime != 100 {
		t.Fatalf("expected last activity 100, got %d", s.LastActivityTime)
	}

	_, err := Apply(s, employer, EmployerEmergencyWithdraw{ID: s.ID}, 10099, policy)
	if !errors.Is(err, ErrInactivityNotMet) {
		t.Fatalf("expected inactivity not met, got %v", err)
	}

	tr := mustApply(t, s, employer, EmployerEmergencyWithdraw{ID: s.ID}, 10100, policy)
	vested, _ := Vested(s.Schedule(), 10100)
	if tr.Amount() != s.DepositedTotal-vested {
		t.Fatalf("expected refund %d, got %d", s.DepositedTotal-vested, tr.Amount())
	}
	next := tr.Next
	if next.Status != StatusClosed || next.DepositedTotal != vested {
		t.Fatalf("unexpected record: %+v", next)
	}

	// Vested-but-unwithdrawn funds stay claimable by the employee.
	claim := mustApply(t, next, employee, Withdraw{ID: s.ID}, 20000, policy)
	if claim.Amount() != vested {
		t.Fatalf("expected employee claim %d, got %d", vested, claim.Amount())
	}
	again := mustApply(t, claim.Next, employee, Withdraw{ID: s.ID}, 30000, policy)
	if again.Amount() != 0 {
		t.Fatalf("expected nothing left, got %d", again.Amount())
	}
}

func TestEmergencyWithdraw_Errors(t *testing.T) {
	policy := Policy{InactivityThreshold: 10}
	s := mustCreate(t, 100, 0, 100, nil, 0)
	if _, err := Apply(s, employee, EmployerEmergencyWithdraw{ID: s.ID}, 50, policy); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	closed := mustApply(t, s, employer, CloseStream{ID: s.ID}, 50, policy).Next
	if _, err := Apply(closed, employer, EmployerEmergencyWithdraw{ID: s.ID}, 500, policy); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
}

func TestTerminality(t *testing.T) {
	policy := Policy{InactivityThreshold: 10}
	s := mustCreate(t, 100, 0, 100, nil, 0)
	closedByClose := mustApply(t, s, employee, CloseStream{ID: s.ID}, 20, policy).Next
	closedByEmergency := mustApply(t, s, employer, EmployerEmergencyWithdraw{ID: s.ID}, 20, policy).Next

	for _, closed := range []*Stream{closedByClose, closedByEmergency} {
		checks := []struct {
			signer Authority
			op     Operation
		}{
			{employer, TopUpStream{ID: s.ID, Amount: 1}},
			{employee, RefreshActivity{ID: s.ID}},
			{employer, CloseStream{ID: s.ID}},
			{employer, EmployerEmergencyWithdraw{ID: s.ID}},
		}
		for _, c := range checks {
			_, err := Apply(closed, c.signer, c.op, 50, policy)
			if !errors.Is(err, ErrStreamClosed) || KindOf(err) != KindState {
				t.Fatalf("%s on closed: expected state error, got %v", c.op.Kind(), err)
			}
		}
	}
}

func TestRefreshActivity_Errors(t *testing.T) {
	s := mustCreate(t, 100, 0, 100, nil, 0)
	if _, err := Apply(s, employer, RefreshActivity{ID: s.ID}, 5, DefaultPolicy()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	tr := mustApply(t, s, employee, RefreshActivity{ID: s.ID}, 5, DefaultPolicy())
	if len(tr.Transfers) != 0 || tr.Next.LastActivityTime != 5 {
		t.Fatalf("unexpected refresh result: %+v", tr)
	}
}

func TestApply_MissingAndInvalid(t *testing.T) {
	if _, err := Apply(nil, employee, Withdraw{ID: NewStreamID()}, 0, DefaultPolicy()); !errors.Is(err, ErrStreamNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := Apply(nil, employee, nil, 0, DefaultPolicy()); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected invalid operation, got %v", err)
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	s := mustCreate(t, 1000, 0, 1000, int64Ptr(100), 0)
	snapshot := s.Clone()
	mustApply(t, s, employee, Withdraw{ID: s.ID}, 700, DefaultPolicy())
	mustApply(t, s, employer, TopUpStream{ID: s.ID, Amount: 10}, 700, DefaultPolicy())
	mustApply(t, s, employer, CloseStream{ID: s.ID}, 700, DefaultPolicy())
	if s.WithdrawnTotal != snapshot.WithdrawnTotal || s.DepositedTotal != snapshot.DepositedTotal ||
		s.EndTime != snapshot.EndTime || s.Status != snapshot.Status || *s.CliffTime != *snapshot.CliffTime {
		t.Fatalf("input record mutated: %+v", s)
	}
}

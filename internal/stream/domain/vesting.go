package stream

import "math/bits"

// Schedule is the immutable snapshot read by the vesting calculator.
type Schedule struct {
	Start     int64
	End       int64
	Cliff     *int64
	Deposited uint64
}

// Validate checks start < end and start <= cliff <= end.
func (s Schedule) Validate() error {
	if s.End <= s.Start {
		return ErrInvalidSchedule
	}
	if s.Cliff != nil && (*s.Cliff < s.Start || *s.Cliff > s.End) {
		return ErrInvalidSchedule
	}
	return nil
}

// Duration returns end - start as an unsigned span.
func (s Schedule) Duration() uint64 {
	return uint64(s.End - s.Start)
}

// Vested returns the amount earned by now. It floors, so the remainder is
// claimable later; it never rounds in the payee's favour.
func Vested(s Schedule, now int64) (uint64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	if now < s.Start {
		return 0, nil
	}
	if s.Cliff != nil && now < *s.Cliff {
		return 0, nil
	}
	if now >= s.End {
		return s.Deposited, nil
	}
	return MulDiv(s.Deposited, uint64(now-s.Start), s.Duration())
}

// Withdrawable returns vested(now) - withdrawn_total.
func Withdrawable(s *Stream, now int64) (uint64, error) {
	vested, err := Vested(s.Schedule(), now)
	if err != nil {
		return 0, err
	}
	if vested < s.WithdrawnTotal {
		return 0, ErrInsufficientEscrow
	}
	return vested - s.WithdrawnTotal, nil
}

// MulDiv returns floor(a*b/d), failing if a*b does not fit in 64 bits.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrArithmetic
	}
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrArithmetic
	}
	return lo / d, nil
}

// MulDivRem returns floor(a*b/d) and the remainder, failing if a*b does not
// fit in 64 bits.
func MulDivRem(a, b, d uint64) (uint64, uint64, error) {
	if d == 0 {
		return 0, 0, ErrArithmetic
	}
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, 0, ErrArithmetic
	}
	return lo / d, lo % d, nil
}

// AddChecked returns a+b or ErrArithmetic on overflow.
func AddChecked(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmetic
	}
	return sum, nil
}

// SubChecked returns a-b or ErrArithmetic on underflow.
func SubChecked(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmetic
	}
	return diff, nil
}

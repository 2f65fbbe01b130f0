package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodec_FixedFootprint(t *testing.T) {
	s := &Stream{
		ID:               NewStreamID(),
		Employer:         "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Employee:         employee,
		DepositedTotal:   1_000_000,
		WithdrawnTotal:   250,
		StartTime:        -10,
		EndTime:          1 << 40,
		CliffTime:        int64Ptr(1 << 20),
		Status:           StatusClosed,
		LastActivityTime: 77,
	}
	data, err := s.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, RecordSize)
	require.Equal(t, 195, RecordSize)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, s, decoded)

	s.CliffTime = nil
	data, err = s.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, RecordSize)
	decoded, err = Decode(data)
	require.NoError(t, err)
	require.Nil(t, decoded.CliffTime)
}

func TestCodec_Deterministic(t *testing.T) {
	s := &Stream{ID: NewStreamID(), Employer: employer, Employee: employee, DepositedTotal: 5, StartTime: 0, EndTime: 5, Status: StatusActive}
	a, err := s.MarshalBinary()
	require.NoError(t, err)
	b, err := s.Clone().MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestCodec_RejectsCorruptData(t *testing.T) {
	s := &Stream{ID: NewStreamID(), Employer: employer, Employee: employee, DepositedTotal: 5, StartTime: 0, EndTime: 5, Status: StatusActive}
	data, err := s.MarshalBinary()
	require.NoError(t, err)

	_, err = Decode(data[:RecordSize-1])
	require.ErrorIs(t, err, ErrCorruptRecord)

	badVersion := append([]byte(nil), data...)
	badVersion[0] = 9
	_, err = Decode(badVersion)
	require.ErrorIs(t, err, ErrCorruptRecord)

	badStatus := append([]byte(nil), data...)
	badStatus[RecordSize-9] = 7
	_, err = Decode(badStatus)
	require.ErrorIs(t, err, ErrCorruptRecord)

	strayCliff := append([]byte(nil), data...)
	strayCliff[1+16+2*MaxAuthorityLen+16+8] = 1
	_, err = Decode(strayCliff)
	require.ErrorIs(t, err, ErrCorruptRecord)
}

func TestCodec_RejectsOversizedAuthority(t *testing.T) {
	long := make([]byte, MaxAuthorityLen+1)
	for i := range long {
		long[i] = 'a'
	}
	s := &Stream{ID: NewStreamID(), Employer: Authority(long), Employee: employee, EndTime: 1, Status: StatusActive}
	_, err := s.MarshalBinary()
	require.ErrorIs(t, err, ErrInvalidParty)
}

package stream

import (
	"bytes"
	"encoding/binary"

	"github.com/google/uuid"
)

// Persisted layout, big-endian, fixed width:
//
//	version u8 | id [16] | employer [64] | employee [64] | start i64 | end i64 |
//	cliff flag u8 | cliff i64 | deposited u64 | withdrawn u64 | status u8 | last activity i64
const (
	layoutVersion = 1
	idWidth       = 16

	// RecordSize is the storage footprint of one stream record.
	RecordSize = 1 + idWidth + 2*MaxAuthorityLen + 8 + 8 + 1 + 8 + 8 + 8 + 1 + 8
)

// MarshalBinary encodes the record in the fixed persisted layout.
func (s *Stream) MarshalBinary() ([]byte, error) {
	id, err := uuid.Parse(string(s.ID))
	if err != nil {
		return nil, ErrInvalidOperation
	}
	if !s.Employer.Valid() || !s.Employee.Valid() {
		return nil, ErrInvalidParty
	}

	buf := make([]byte, 0, RecordSize)
	buf = append(buf, layoutVersion)
	buf = append(buf, id[:]...)
	buf = appendAuthority(buf, s.Employer)
	buf = appendAuthority(buf, s.Employee)
	buf = binary.BigEndian.AppendUint64(buf, uint64(s.StartTime))
	buf = binary.BigEndian.AppendUint64(buf, uint64(s.EndTime))
	if s.CliffTime != nil {
		buf = append(buf, 1)
		buf = binary.BigEndian.AppendUint64(buf, uint64(*s.CliffTime))
	} else {
		buf = append(buf, 0)
		buf = binary.BigEndian.AppendUint64(buf, 0)
	}
	buf = binary.BigEndian.AppendUint64(buf, s.DepositedTotal)
	buf = binary.BigEndian.AppendUint64(buf, s.WithdrawnTotal)
	buf = append(buf, byte(s.Status))
	buf = binary.BigEndian.AppendUint64(buf, uint64(s.LastActivityTime))
	return buf, nil
}

// UnmarshalBinary decodes a record written by MarshalBinary.
func (s *Stream) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize || data[0] != layoutVersion {
		return ErrCorruptRecord
	}
	r := reader{data: data[1:]}

	id, err := uuid.FromBytes(r.next(idWidth))
	if err != nil {
		return ErrCorruptRecord
	}
	var out Stream
	out.ID = StreamID(id.String())
	if out.Employer, err = readAuthority(r.next(MaxAuthorityLen)); err != nil {
		return err
	}
	if out.Employee, err = readAuthority(r.next(MaxAuthorityLen)); err != nil {
		return err
	}
	out.StartTime = int64(r.u64())
	out.EndTime = int64(r.u64())
	flag := r.next(1)[0]
	cliff := int64(r.u64())
	switch flag {
	case 0:
		if cliff != 0 {
			return ErrCorruptRecord
		}
	case 1:
		out.CliffTime = &cliff
	default:
		return ErrCorruptRecord
	}
	out.DepositedTotal = r.u64()
	out.WithdrawnTotal = r.u64()
	out.Status = Status(r.next(1)[0])
	if out.Status != StatusActive && out.Status != StatusClosed {
		return ErrCorruptRecord
	}
	out.LastActivityTime = int64(r.u64())

	*s = out
	return nil
}

// Decode is a convenience wrapper around UnmarshalBinary.
func Decode(data []byte) (*Stream, error) {
	var s Stream
	if err := s.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &s, nil
}

func appendAuthority(buf []byte, a Authority) []byte {
	var field [MaxAuthorityLen]byte
	copy(field[:], a)
	return append(buf, field[:]...)
}

func readAuthority(field []byte) (Authority, error) {
	raw := bytes.TrimRight(field, "\x00")
	a := Authority(raw)
	if !a.Valid() {
		return "", ErrCorruptRecord
	}
	return a, nil
}

type reader struct {
	data []byte
}

func (r *reader) next(n int) []byte {
	out := r.data[:n]
	r.data = r.data[n:]
	return out
}

func (r *reader) u64() uint64 {
	return binary.BigEndian.Uint64(r.next(8))
}

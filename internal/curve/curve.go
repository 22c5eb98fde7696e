// Package curve computes how much of a stream's total has vested at a point in time.
//
// Every function here is pure. Division always floors so the vested amount can
// only lag the exact fraction, never lead it, and the terminal value is the
// literal total rather than a recomputed fraction.
package curve

import (
	"math/bits"

	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

// Schedule is the subset of a stream the unlock curve depends on.
type Schedule struct {
	Total      int64
	Start      int64
	End        int64
	Cliff      *int64
	Milestones []stream.Milestone
	Curve      stream.Curve
}

// ScheduleOf extracts the token schedule of s.
func ScheduleOf(s *stream.Stream) Schedule {
	return Schedule{
		Total:      s.TotalAmount,
		Start:      s.StartTime,
		End:        s.EndTime,
		Cliff:      s.CliffTime,
		Milestones: s.Milestones,
		Curve:      s.Curve,
	}
}

// WithTotal returns a copy of the schedule over a different total, used to run
// the same curve in USD units.
func (s Schedule) WithTotal(total int64) Schedule {
	s.Total = total
	return s
}

// Validate checks the schedule parameters.
func Validate(s Schedule) error {
	if s.Total <= 0 {
		return stream.Errorf(stream.CodeInvalidAmount, "amount must be positive, got %d", s.Total)
	}
	if s.Start < 0 || s.End <= s.Start {
		return stream.Errorf(stream.CodeInvalidTimeRange, "end %d must be after start %d", s.End, s.Start)
	}
	if s.Cliff != nil && (*s.Cliff < s.Start || *s.Cliff >= s.End) {
		return stream.Errorf(stream.CodeInvalidCliff, "cliff %d outside [%d, %d)", *s.Cliff, s.Start, s.End)
	}
	if s.Curve != stream.CurveLinear && s.Curve != stream.CurveExponential {
		return stream.Errorf(stream.CodeInvalidRequest, "unknown curve %d", int(s.Curve))
	}
	return ValidateMilestones(s.Milestones)
}

// ValidateMilestones requires non-decreasing timestamps and percentages within [0, 100].
func ValidateMilestones(ms []stream.Milestone) error {
	for i, m := range ms {
		if m.Percentage > 100 {
			return stream.Errorf(stream.CodeInvalidMilestones, "milestone %d: percentage %d exceeds 100", i, m.Percentage)
		}
		if i == 0 {
			continue
		}
		prev := ms[i-1]
		if m.Timestamp < prev.Timestamp {
			return stream.Errorf(stream.CodeInvalidMilestones, "milestone %d: timestamp %d before %d", i, m.Timestamp, prev.Timestamp)
		}
		if m.Percentage < prev.Percentage {
			return stream.Errorf(stream.CodeInvalidMilestones, "milestone %d: percentage %d below %d", i, m.Percentage, prev.Percentage)
		}
	}
	return nil
}

// Unlocked returns the vested amount of s at now.
//
// The result is in [0, Total] and non-decreasing in now. An exponential curve
// whose squared durations do not fit in 64 bits fails with ErrArithmeticOverflow.
func Unlocked(s Schedule, now int64) (int64, error) {
	if s.Total <= 0 || now <= s.Start {
		return 0, nil
	}
	if s.Cliff != nil && now < *s.Cliff {
		return 0, nil
	}
	if now >= s.End {
		return s.Total, nil
	}

	elapsed := uint64(now - s.Start)
	duration := uint64(s.End - s.Start)
	total := uint64(s.Total)

	var v uint64
	var err error
	switch s.Curve {
	case stream.CurveExponential:
		v, err = exponential(total, elapsed, duration)
	default:
		v, err = mulDiv(total, elapsed, duration)
	}
	if err != nil {
		return 0, err
	}

	if len(s.Milestones) > 0 {
		capped := milestoneCap(total, s.Milestones, now)
		if capped < v {
			v = capped
		}
	}
	return int64(v), nil
}

// MilestoneCap is the highest milestone allowance reached at now, or 0 when none is.
func MilestoneCap(total int64, ms []stream.Milestone, now int64) int64 {
	if total <= 0 {
		return 0
	}
	return int64(milestoneCap(uint64(total), ms, now))
}

func milestoneCap(total uint64, ms []stream.Milestone, now int64) uint64 {
	var capped uint64
	for _, m := range ms {
		if m.Timestamp > now {
			continue
		}
		pct := uint64(m.Percentage)
		if pct > 100 {
			pct = 100
		}
		// total*pct fits in 128 bits and the quotient is at most total.
		v, _ := mulDiv(total, pct, 100)
		if v > capped {
			capped = v
		}
	}
	return capped
}

func exponential(total, elapsed, duration uint64) (uint64, error) {
	eHi, e2 := bits.Mul64(elapsed, elapsed)
	dHi, d2 := bits.Mul64(duration, duration)
	if eHi != 0 || dHi != 0 {
		return 0, stream.Errorf(stream.CodeArithmeticOverflow, "exponential curve: squared duration exceeds 64 bits")
	}
	return mulDiv(total, e2, d2)
}

// mulDiv computes floor(a*b/d) with a 128-bit intermediate.
func mulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, stream.Errorf(stream.CodeArithmeticOverflow, "division by zero")
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, stream.Errorf(stream.CodeArithmeticOverflow, "%d*%d/%d exceeds 64 bits", a, b, d)
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}

// MulDiv computes floor(a*b/d) for non-negative operands without intermediate
// overflow. The quotient must fit in an int64.
func MulDiv(a, b, d int64) (int64, error) {
	if a < 0 || b < 0 || d <= 0 {
		return 0, stream.Errorf(stream.CodeArithmeticOverflow, "mulDiv: operands must be non-negative (%d, %d, %d)", a, b, d)
	}
	q, err := mulDiv(uint64(a), uint64(b), uint64(d))
	if err != nil {
		return 0, err
	}
	if q > 1<<63-1 {
		return 0, stream.Errorf(stream.CodeArithmeticOverflow, "%d*%d/%d exceeds int64", a, b, d)
	}
	return int64(q), nil
}

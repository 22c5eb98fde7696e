package curve_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/gyaneshwarpardhi/tokenstream/internal/curve"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

func schedule(total, start, duration int64, exp bool) curve.Schedule {
	s := curve.Schedule{Total: total, Start: start, End: start + duration}
	if exp {
		s.Curve = stream.CurveExponential
	}
	return s
}

func TestUnlockedProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	totals := gen.Int64Range(1, 1_000_000_000_000)
	starts := gen.Int64Range(0, 1_000_000)
	durations := gen.Int64Range(1, 1_000_000)
	offsets := gen.Int64Range(-1_000, 2_000_000)

	// Unlocked stays within [0, total]
	properties.Property("bounded", prop.ForAll(
		func(total, start, duration, offset int64, exp bool) bool {
			v, err := curve.Unlocked(schedule(total, start, duration, exp), start+offset)
			return err == nil && v >= 0 && v <= total
		},
		totals, starts, durations, offsets, gen.Bool(),
	))

	properties.Property("monotonic in time", prop.ForAll(
		func(total, start, duration, a, b int64, exp bool) bool {
			if a > b {
				a, b = b, a
			}
			s := schedule(total, start, duration, exp)
			v1, err1 := curve.Unlocked(s, start+a)
			v2, err2 := curve.Unlocked(s, start+b)
			return err1 == nil && err2 == nil && v2 >= v1
		},
		totals, starts, durations, offsets, offsets, gen.Bool(),
	))

	properties.Property("terminal value is the literal total", prop.ForAll(
		func(total, start, duration, past int64, exp bool) bool {
			s := schedule(total, start, duration, exp)
			v, err := curve.Unlocked(s, s.End+past)
			return err == nil && v == total
		},
		totals, starts, durations, gen.Int64Range(0, 1_000_000), gen.Bool(),
	))

	properties.Property("zero before start", prop.ForAll(
		func(total, start, duration, before int64) bool {
			v, err := curve.Unlocked(schedule(total, start, duration, false), start-before)
			return err == nil && v == 0
		},
		totals, starts, durations, gen.Int64Range(0, 1_000_000),
	))

	properties.Property("zero before cliff", prop.ForAll(
		func(total, start, duration, cliffAt, probe int64) bool {
			s := schedule(total, start, duration, false)
			cliff := start + cliffAt%duration
			s.Cliff = &cliff
			now := start + probe%duration
			if now >= cliff {
				return true
			}
			v, err := curve.Unlocked(s, now)
			return err == nil && v == 0
		},
		totals, starts, durations, gen.Int64Range(0, 1_000_000), gen.Int64Range(0, 1_000_000),
	))

	properties.Property("milestones never accelerate", prop.ForAll(
		func(total, duration, pct, at, probe int64) bool {
			s := schedule(total, 0, duration, false)
			plain, err := curve.Unlocked(s, probe%duration)
			if err != nil {
				return false
			}
			s.Milestones = []stream.Milestone{{Timestamp: at % duration, Percentage: uint32(pct)}}
			capped, err := curve.Unlocked(s, probe%duration)
			return err == nil && capped <= plain
		},
		totals, durations, gen.Int64Range(0, 100), gen.Int64Range(0, 1_000_000), gen.Int64Range(0, 1_000_000),
	))

	properties.TestingRun(t)
}

package curve

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

func ptr(v int64) *int64 { return &v }

func TestUnlocked_Linear(t *testing.T) {
	s := Schedule{Total: 1000, Start: 100, End: 200}
	cases := []struct {
		now  int64
		want int64
	}{
		{50, 0},
		{100, 0},
		{150, 500},
		{199, 990},
		{200, 1000},
		{250, 1000},
	}
	for _, c := range cases {
		got, err := Unlocked(s, c.now)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "now=%d", c.now)
	}
}

func TestUnlocked_ZeroDust(t *testing.T) {
	s := Schedule{Total: 1000, Start: 0, End: 3}

	var withdrawn int64
	var payouts []int64
	for now := int64(1); now <= 3; now++ {
		u, err := Unlocked(s, now)
		require.NoError(t, err)
		payouts = append(payouts, u-withdrawn)
		withdrawn = u
	}
	assert.Equal(t, []int64{333, 333, 334}, payouts)
	assert.Equal(t, int64(1000), withdrawn)
}

func TestUnlocked_Cliff(t *testing.T) {
	s := Schedule{Total: 1000, Start: 0, End: 1000, Cliff: ptr(500)}
	cases := map[int64]int64{250: 0, 499: 0, 500: 500, 750: 750, 1000: 1000}
	for now, want := range cases {
		got, err := Unlocked(s, now)
		require.NoError(t, err)
		assert.Equal(t, want, got, "now=%d", now)
	}
}

func TestUnlocked_CliffPrecision(t *testing.T) {
	s := Schedule{Total: 999, Start: 0, End: 999, Cliff: ptr(333)}

	got, err := Unlocked(s, 332)
	require.NoError(t, err)
	assert.Zero(t, got)

	got, err = Unlocked(s, 333)
	require.NoError(t, err)
	assert.Equal(t, int64(333), got)
}

func TestUnlocked_Exponential(t *testing.T) {
	s := Schedule{Total: 1000, Start: 0, End: 100, Curve: stream.CurveExponential}
	cases := map[int64]int64{0: 0, 50: 250, 70: 490, 100: 1000, 150: 1000}
	for now, want := range cases {
		got, err := Unlocked(s, now)
		require.NoError(t, err)
		assert.Equal(t, want, got, "now=%d", now)
	}
}

func TestUnlocked_ExponentialOverflow(t *testing.T) {
	s := Schedule{Total: 1000, Start: 0, End: math.MaxInt64, Curve: stream.CurveExponential}
	_, err := Unlocked(s, math.MaxInt64/2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, stream.ErrArithmeticOverflow))
}

func TestUnlocked_LargeLinearDoesNotOverflow(t *testing.T) {
	s := Schedule{Total: math.MaxInt64, Start: 0, End: 1_000_000}
	got, err := Unlocked(s, 500_000)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64/2), got)
}

func TestUnlocked_MilestoneCap(t *testing.T) {
	s := Schedule{
		Total: 1000,
		Start: 0,
		End:   360,
		Milestones: []stream.Milestone{
			{Timestamp: 90, Percentage: 25},
			{Timestamp: 180, Percentage: 50},
			{Timestamp: 270, Percentage: 75},
			{Timestamp: 360, Percentage: 100},
		},
	}

	at45, err := Unlocked(s, 45)
	require.NoError(t, err)
	assert.LessOrEqual(t, at45, int64(250))

	at100, err := Unlocked(s, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(250), at100, "linear value 277 is capped by the 25%% milestone")

	at200, err := Unlocked(s, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(500), at200)

	at360, err := Unlocked(s, 360)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), at360)
}

func TestUnlocked_MilestoneNeverAccelerates(t *testing.T) {
	s := Schedule{
		Total:      1000,
		Start:      0,
		End:        100,
		Milestones: []stream.Milestone{{Timestamp: 10, Percentage: 90}},
	}
	got, err := Unlocked(s, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		s    Schedule
		want error
	}{
		{"ok", Schedule{Total: 10, Start: 0, End: 10}, nil},
		{"zero amount", Schedule{Total: 0, Start: 0, End: 10}, stream.ErrInvalidAmount},
		{"end before start", Schedule{Total: 10, Start: 10, End: 10}, stream.ErrInvalidTimeRange},
		{"cliff before start", Schedule{Total: 10, Start: 5, End: 10, Cliff: ptr(4)}, stream.ErrInvalidCliff},
		{"cliff at end", Schedule{Total: 10, Start: 5, End: 10, Cliff: ptr(10)}, stream.ErrInvalidCliff},
		{"cliff at start", Schedule{Total: 10, Start: 5, End: 10, Cliff: ptr(5)}, nil},
		{"milestone over 100", Schedule{Total: 10, Start: 0, End: 10, Milestones: []stream.Milestone{{Timestamp: 1, Percentage: 101}}}, stream.ErrInvalidMilestones},
		{"milestone decreasing pct", Schedule{Total: 10, Start: 0, End: 10, Milestones: []stream.Milestone{{Timestamp: 1, Percentage: 50}, {Timestamp: 2, Percentage: 40}}}, stream.ErrInvalidMilestones},
		{"milestone decreasing time", Schedule{Total: 10, Start: 0, End: 10, Milestones: []stream.Milestone{{Timestamp: 5, Percentage: 10}, {Timestamp: 2, Percentage: 40}}}, stream.ErrInvalidMilestones},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := Validate(c.s)
			if c.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, c.want)
		})
	}
}

func TestMulDiv(t *testing.T) {
	got, err := MulDiv(math.MaxInt64, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6917529027641081855), got)

	_, err = MulDiv(math.MaxInt64, 4, 3)
	assert.ErrorIs(t, err, stream.ErrArithmeticOverflow)

	_, err = MulDiv(-1, 4, 3)
	assert.ErrorIs(t, err, stream.ErrArithmeticOverflow)
}

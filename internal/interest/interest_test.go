package interest

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

func TestDistribute(t *testing.T) {
	cases := []struct {
		name     string
		total    int64
		strategy uint32
		want     Split
	}{
		{"sender only", 1000, ToSender, Split{Total: 1000, Sender: 1000}},
		{"receiver only", 1000, ToReceiver, Split{Total: 1000, Receiver: 1000}},
		{"protocol only", 1000, ToProtocol, Split{Total: 1000, Protocol: 1000}},
		{"halves odd total", 1001, ToSender | ToReceiver, Split{Total: 1001, Sender: 501, Receiver: 500}},
		{"thirds", 1000, ToSender | ToReceiver | ToProtocol, Split{Total: 1000, Sender: 334, Receiver: 333, Protocol: 333}},
		{"thirds remainder two", 1001, 7, Split{Total: 1001, Sender: 335, Receiver: 333, Protocol: 333}},
		{"sender protocol", 1001, ToSender | ToProtocol, Split{Total: 1001, Sender: 501, Protocol: 500}},
		{"receiver protocol", 1001, ToReceiver | ToProtocol, Split{Total: 1001, Receiver: 501, Protocol: 500}},
		{"empty mask defaults to receiver", 999, 0, Split{Total: 999, Receiver: 999}},
		{"no interest", 0, 7, Split{}},
		{"negative interest", -5, 7, Split{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Distribute(c.total, c.strategy)
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("Distribute(%d, %d) mismatch (-want +got):\n%s", c.total, c.strategy, diff)
			}
		})
	}
}

func TestDistributeConserves(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	properties.Property("shares sum to total", prop.ForAll(
		func(total int64, strategy uint32) bool {
			s := Distribute(total, strategy)
			return s.Sender+s.Receiver+s.Protocol == total &&
				s.Sender >= 0 && s.Receiver >= 0 && s.Protocol >= 0
		},
		gen.Int64Range(1, 1<<50),
		gen.UInt32Range(0, 7),
	))
	properties.TestingRun(t)
}

func TestValidateStrategy(t *testing.T) {
	for s := uint32(0); s <= 7; s++ {
		assert.NoError(t, ValidateStrategy(s))
	}
	assert.ErrorIs(t, ValidateStrategy(8), stream.ErrInvalidStrategy)
}

func TestEarned(t *testing.T) {
	assert.Equal(t, int64(50), Earned(1050, 1000))
	assert.Zero(t, Earned(900, 1000))
	assert.Zero(t, Earned(1000, 1000))
}

func TestProrate(t *testing.T) {
	got, err := Prorate(100, 250, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(25), got)

	got, err = Prorate(100, 333, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(33), got)

	got, err = Prorate(100, 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got, "final withdrawal takes all remaining interest")

	got, err = Prorate(0, 10, 1000)
	require.NoError(t, err)
	assert.Zero(t, got)
}

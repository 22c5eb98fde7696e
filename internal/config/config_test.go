package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

const sample = `
version: "1"
engine:
  custody: escrow
  treasury: treasury
  fee_bps: 25
policy:
  allowed_tokens: [XLM, USDC]
  restricted: [mallory]
  compliance_officers: [officer]
store:
  driver: sqlite
  dsn: /tmp/tokenstream.db
vaults:
  - id: vault-1
    token: USDC
    yield_bps: 50
oracles:
  - id: xlm-usd
    price: "0.1234567"
api:
  dev_mint: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "escrow", cfg.Engine.Custody)
	assert.Equal(t, uint32(25), cfg.Engine.FeeBps)
	assert.Equal(t, []string{"XLM", "USDC"}, cfg.Policy.AllowedTokens)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	require.Len(t, cfg.Vaults, 1)
	assert.Equal(t, uint32(50), cfg.Vaults[0].YieldBps)
	assert.True(t, cfg.API.DevMint)

	// defaults
	assert.Equal(t, 4, cfg.Engine.EventWorkers)
	assert.Equal(t, 1024, cfg.Engine.QueueDepth)
	assert.Equal(t, "tokenstream-events", cfg.Redis.Channel)
	assert.Equal(t, 50.0, cfg.API.RateRPS)
}

func TestParse_Minimal(t *testing.T) {
	cfg, err := Parse([]byte(`version: "1"`))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "custody", cfg.Engine.Custody)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "missing version",
			yaml: `engine: {}`,
			want: []string{"version is required"},
		},
		{
			name: "fee without treasury",
			yaml: "version: \"1\"\nengine:\n  fee_bps: 2000\n",
			want: []string{"fee_bps 2000 exceeds 1000", "treasury is required"},
		},
		{
			name: "unknown driver",
			yaml: "version: \"1\"\nstore:\n  driver: mongo\n",
			want: []string{`store.driver "mongo"`},
		},
		{
			name: "sqlite without dsn",
			yaml: "version: \"1\"\nstore:\n  driver: sqlite\n",
			want: []string{"store.dsn is required"},
		},
		{
			name: "duplicate vaults and bad prices",
			yaml: `
version: "1"
vaults:
  - {id: v, token: XLM}
  - {id: v, token: XLM}
oracles:
  - {id: a, price: "-1"}
  - {id: b, price: abc}
`,
			want: []string{`duplicate vault id "v"`, `oracle a: price "-1"`, `oracle b: price "abc"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, stream.ErrInvalidConfig)
			for _, w := range tt.want {
				assert.ErrorContains(t, err, w)
			}
		})
	}
}

func TestLoader_Reload(t *testing.T) {
	path := writeConfig(t, sample)
	l, err := NewLoader(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(25), l.Config().Engine.FeeBps)

	var seen []*Config
	l.OnChange(func(c *Config) { seen = append(seen, c) })

	require.NoError(t, os.WriteFile(path, []byte("version: \"2\"\nengine:\n  halted: true\n"), 0o644))
	cfg, err := l.Reload()
	require.NoError(t, err)
	assert.True(t, cfg.Engine.Halted)
	require.Len(t, seen, 1)
	assert.Same(t, cfg, seen[0])
	assert.Same(t, cfg, l.Config())

	// a broken file keeps the previous config
	require.NoError(t, os.WriteFile(path, []byte("version: \"3\"\nengine:\n  fee_bps: 5000\n"), 0o644))
	_, err = l.Reload()
	require.Error(t, err)
	assert.Equal(t, "2", l.Config().Version)
	assert.Len(t, seen, 1)
}

func TestNewLoader_MissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

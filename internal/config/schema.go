package config

// Config is the top-level YAML structure.
type Config struct {
	Version string      `yaml:"version"`
	Engine  EngineConf  `yaml:"engine"`
	Policy  PolicyConf  `yaml:"policy"`
	Store   StoreConf   `yaml:"store"`
	Redis   RedisConf   `yaml:"redis"`
	Vaults  []VaultConf `yaml:"vaults"`
	Oracles []FeedConf  `yaml:"oracles"`
	API     APIConf     `yaml:"api"`
}

// EngineConf holds settlement and dispatch settings. Treasury, FeeBps and
// Halted are hot-reloadable.
type EngineConf struct {
	Custody      string `yaml:"custody"`
	Treasury     string `yaml:"treasury"`
	FeeBps       uint32 `yaml:"fee_bps"`
	Halted       bool   `yaml:"halted"`
	EventWorkers int    `yaml:"event_workers"`
	QueueDepth   int    `yaml:"queue_depth"`
}

// PolicyConf restricts who and what may be streamed. Hot-reloadable.
type PolicyConf struct {
	AllowedTokens      []string `yaml:"allowed_tokens"` // empty = any token
	Restricted         []string `yaml:"restricted"`
	ComplianceOfficers []string `yaml:"compliance_officers"`
}

// StoreConf selects the record backend. Changes need a restart.
type StoreConf struct {
	Driver string `yaml:"driver"` // memory | sqlite | postgres
	DSN    string `yaml:"dsn"`
}

// RedisConf enables the pub/sub event sink when Addr is set.
type RedisConf struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// VaultConf registers an approved in-memory yield vault.
type VaultConf struct {
	ID       string `yaml:"id"`
	Token    string `yaml:"token"`
	YieldBps uint32 `yaml:"yield_bps"`
}

// FeedConf registers a static price feed. Price is a decimal string.
type FeedConf struct {
	ID    string `yaml:"id"`
	Price string `yaml:"price"`
}

// APIConf tunes the HTTP surface.
type APIConf struct {
	RateRPS   float64 `yaml:"rate_rps"`
	RateBurst int     `yaml:"rate_burst"`
	// DevMint exposes ledger minting and vault/oracle controls.
	DevMint bool `yaml:"dev_mint"`
}

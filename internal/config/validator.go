package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

// MaxFeeBps caps the protocol fee at 10%.
const MaxFeeBps = 1000

// Validate checks the config for:
//   - Fee bounds and a treasury to receive fees
//   - A known store driver
//   - Duplicate vault and oracle IDs
//   - Parsable, positive oracle prices
//
// Every problem is reported, not just the first.
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return stream.Errorf(stream.CodeInvalidConfig, "version is required")
	}
	var errs []string

	if cfg.Engine.FeeBps > MaxFeeBps {
		errs = append(errs, fmt.Sprintf("engine.fee_bps %d exceeds %d", cfg.Engine.FeeBps, MaxFeeBps))
	}
	if cfg.Engine.FeeBps > 0 && cfg.Engine.Treasury == "" {
		errs = append(errs, "engine.treasury is required when fee_bps is set")
	}
	if cfg.Engine.Treasury != "" && cfg.Engine.Treasury == cfg.Engine.Custody {
		errs = append(errs, "engine.treasury must differ from engine.custody")
	}
	if cfg.Engine.EventWorkers < 0 || cfg.Engine.QueueDepth < 0 {
		errs = append(errs, "engine.event_workers and engine.queue_depth must not be negative")
	}

	switch cfg.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if cfg.Store.DSN == "" {
			errs = append(errs, fmt.Sprintf("store.dsn is required for driver %s", cfg.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of memory, sqlite, postgres", cfg.Store.Driver))
	}

	ids := make(map[string]string) // id → location
	for i, v := range cfg.Vaults {
		loc := fmt.Sprintf("vaults[%d]", i)
		if v.ID == "" || v.Token == "" {
			errs = append(errs, loc+": id and token are required")
			continue
		}
		if v.ID == cfg.Engine.Custody {
			errs = append(errs, fmt.Sprintf("%s: id %q collides with the custody address", loc, v.ID))
		}
		if prev, ok := ids[v.ID]; ok {
			errs = append(errs, fmt.Sprintf("duplicate vault id %q (first seen at %s, again at %s)", v.ID, prev, loc))
		} else {
			ids[v.ID] = loc
		}
	}

	feeds := make(map[string]string)
	for i, o := range cfg.Oracles {
		loc := fmt.Sprintf("oracles[%d]", i)
		if o.ID == "" {
			errs = append(errs, loc+": id is required")
			continue
		}
		if prev, ok := feeds[o.ID]; ok {
			errs = append(errs, fmt.Sprintf("duplicate oracle id %q (first seen at %s, again at %s)", o.ID, prev, loc))
		} else {
			feeds[o.ID] = loc
		}
		if p, err := decimal.NewFromString(o.Price); err != nil || !p.IsPositive() {
			errs = append(errs, fmt.Sprintf("oracle %s: price %q must be a positive decimal", o.ID, o.Price))
		}
	}

	if cfg.API.RateRPS < 0 || cfg.API.RateBurst < 0 {
		errs = append(errs, "api.rate_rps and api.rate_burst must not be negative")
	}

	if len(errs) > 0 {
		return stream.Errorf(stream.CodeInvalidConfig, "config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

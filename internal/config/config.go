// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
)

type Config struct {
	HTTPAddr string `env:"GATEHOUSE_HTTP_ADDR" envDefault:":8080"`

	// Env selects the storage backend: "dev" runs on in-memory stores,
	// "prod" on sqlite. Unknown values fail soft to dev.
	Env    string `env:"GATEHOUSE_ENV" envDefault:"dev"`
	DBPath string `env:"GATEHOUSE_DB_PATH" envDefault:"./data/gatehouse.db"`

	// Devices lists registered door controllers as
	// "device_id|area_id|protocol|address" entries.
	Devices []string `env:"GATEHOUSE_DEVICES" envSeparator:","`

	// ConstraintsFile points at the YAML area-constraint definitions.
	// Empty or missing means no area constraints.
	ConstraintsFile string `env:"GATEHOUSE_CONSTRAINTS_FILE"`

	UnlockOnGrant bool          `env:"GATEHOUSE_UNLOCK_ON_GRANT" envDefault:"false"`
	DeviceTimeout time.Duration `env:"GATEHOUSE_DEVICE_TIMEOUT" envDefault:"5s"`

	PropagatorWorkers int           `env:"GATEHOUSE_PROPAGATOR_WORKERS" envDefault:"4"`
	PropagatorQueue   int           `env:"GATEHOUSE_PROPAGATOR_QUEUE" envDefault:"256"`
	PushMaxAttempts   int           `env:"GATEHOUSE_PUSH_MAX_ATTEMPTS" envDefault:"3"`
	PushRetryBackoff  time.Duration `env:"GATEHOUSE_PUSH_RETRY_BACKOFF" envDefault:"250ms"`
	PushesPerSecond   float64       `env:"GATEHOUSE_PUSHES_PER_SECOND" envDefault:"50"`
	DeviceStaleAfter  time.Duration `env:"GATEHOUSE_DEVICE_STALE_AFTER" envDefault:"15m"`
	WatermarkTTL      time.Duration `env:"GATEHOUSE_WATERMARK_TTL" envDefault:"24h"`

	HeartbeatRetention time.Duration `env:"GATEHOUSE_HEARTBEAT_RETENTION" envDefault:"720h"`
	PruneInterval      time.Duration `env:"GATEHOUSE_PRUNE_INTERVAL" envDefault:"6h"`
}

func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.Env != "dev" && cfg.Env != "prod" {
		cfg.Env = "dev"
	}
	return cfg, nil
}

// DeviceRecords parses the configured device entries. The address field
// may itself contain the separator-unfriendly characters of a URL, which
// is why entries are pipe-delimited.
func (c Config) DeviceRecords() ([]store.DeviceRecord, error) {
	out := make([]store.DeviceRecord, 0, len(c.Devices))
	for _, raw := range c.Devices {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, "|", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("device entry %q: want device_id|area_id|protocol|address", raw)
		}
		rec := store.DeviceRecord{
			DeviceID: strings.TrimSpace(parts[0]),
			AreaID:   strings.TrimSpace(parts[1]),
			Protocol: strings.TrimSpace(parts[2]),
			Address:  strings.TrimSpace(parts[3]),
			Enabled:  true,
		}
		if rec.DeviceID == "" || rec.AreaID == "" || rec.Protocol == "" || rec.Address == "" {
			return nil, fmt.Errorf("device entry %q: empty field", raw)
		}
		out = append(out, rec)
	}
	return out, nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mineworks/scavengerd/internal/domain"
)

// AshParams are the compute engine's ROM and program parameters, forwarded
// verbatim on engine initialization.
type AshParams struct {
	NbLoops       uint32 `json:"nb_loops"`
	NbInstrs      uint32 `json:"nb_instrs"`
	PreSize       uint32 `json:"pre_size"`
	RomSize       uint32 `json:"rom_size"`
	MixingNumbers uint32 `json:"mixing_numbers"`
}

// Config holds the orchestrator's runtime configuration.
type Config struct {
	EngineURL           string    `json:"engine_url"`
	ChainAPIURL         string    `json:"chain_api_url"`
	DBPath              string    `json:"db_path"`
	AddressesPath       string    `json:"addresses_path"`
	ListenAddr          string    `json:"listen_addr"`
	Workers             int       `json:"workers"`
	FeeCadence          int       `json:"fee_cadence"`
	PollIntervalSec     int       `json:"poll_interval_sec"`
	HealthIntervalSec   int       `json:"health_interval_sec"`
	StatsIntervalSec    int       `json:"stats_interval_sec"`
	TransitionBufferSec int       `json:"transition_buffer_sec"`
	MineCeilingSec      int       `json:"mine_ceiling_sec"`
	RetryAttempts       int       `json:"retry_attempts"`
	RetryBaseDelayMs    int       `json:"retry_base_delay_ms"`
	SubmitTimeoutSec    int       `json:"submit_timeout_sec"`
	Ash                 AshParams `json:"ash"`
}

// Load reads a JSON config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9810"
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.FeeCadence == 0 {
		c.FeeCadence = 10
	}
	if c.PollIntervalSec == 0 {
		c.PollIntervalSec = 2
	}
	if c.HealthIntervalSec == 0 {
		c.HealthIntervalSec = 5
	}
	if c.StatsIntervalSec == 0 {
		c.StatsIntervalSec = 10
	}
	if c.TransitionBufferSec == 0 {
		c.TransitionBufferSec = 900
	}
	if c.MineCeilingSec == 0 {
		c.MineCeilingSec = 1800
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBaseDelayMs == 0 {
		c.RetryBaseDelayMs = 500
	}
	if c.SubmitTimeoutSec == 0 {
		c.SubmitTimeoutSec = 15
	}
	if c.Ash.NbLoops == 0 {
		c.Ash.NbLoops = 8
	}
	if c.Ash.NbInstrs == 0 {
		c.Ash.NbInstrs = 256
	}
	if c.Ash.PreSize == 0 {
		c.Ash.PreSize = 1 << 20
	}
	if c.Ash.RomSize == 0 {
		c.Ash.RomSize = 1 << 28
	}
	if c.Ash.MixingNumbers == 0 {
		c.Ash.MixingNumbers = 4
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.EngineURL == "" {
		problems = append(problems, "engine_url is required")
	}
	if c.ChainAPIURL == "" {
		problems = append(problems, "chain_api_url is required")
	}
	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if c.AddressesPath == "" {
		problems = append(problems, "addresses_path is required")
	}
	if c.Workers < 0 {
		problems = append(problems, "workers must not be negative")
	}
	if c.FeeCadence < 0 {
		problems = append(problems, "fee_cadence must not be negative")
	}

	if len(problems) > 0 {
		return &domain.MinerError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}

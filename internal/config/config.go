// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults come from New; file and env layers override them in Load.
// - External errors are wrapped via this package's sentinel kinds.
package config

import "runtime"

// Store backend identifiers.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Trainers merge policies.
const (
	TrainersFlag  = "flag"
	TrainersCount = "count"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the score store backend: sqlite or memory.
	Store string `koanf:"store"`

	// DBPath locates the SQLite database file.
	DBPath string `koanf:"db_path"`

	// SharedToken authenticates name-scheme submissions and the
	// administrative reset. Distinct from per-device HMAC secrets.
	SharedToken string `koanf:"shared_token"`

	// TrainersPolicy fixes whether trainers is a {0,1} flag or an
	// accumulating count.
	TrainersPolicy string `koanf:"trainers_policy"`

	// MaxKOsPerRound bounds kos relative to rounds in set mode.
	MaxKOsPerRound int64 `koanf:"max_kos_per_round"`

	// QueueSize bounds the in-memory bulk submission queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of bulk merge workers.
	WorkerCount int `koanf:"worker_count"`

	// MaxBoardLimit caps GET /board?limit.
	MaxBoardLimit int `koanf:"max_board_limit"`

	// Seed populates an empty name-scheme table with demo rows on start.
	Seed bool `koanf:"seed"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		Addr:           ":9080",
		Store:          StoreSQLite,
		DBPath:         "leaderboard.db",
		SharedToken:    "",
		TrainersPolicy: TrainersFlag,
		MaxKOsPerRound: 3,
		QueueSize:      10_000,
		WorkerCount:    runtime.NumCPU() * 2,
		MaxBoardLimit:  100,
		Seed:           false,
	}
}

// Package exploit models a single exploit's configuration, the explicit
// replacement for the original's decorator-based registration: operators
// build Exploit values via New rather than annotating a function.
package exploit

import "time"

// TargetingStrategy selects which teams an exploit is run against.
type TargetingStrategy string

const (
	Auto     TargetingStrategy = "auto"
	NopTeam  TargetingStrategy = "nop_team"
	OwnTeam  TargetingStrategy = "own_team"
)

// TickScope selects which ticks' flag ids an exploit run is handed.
type TickScope string

const (
	SingleTick TickScope = "single"
	LastNTicks TickScope = "last_n"
)

// Batching controls how targets are grouped into a single exploit
// invocation; Size and Count are mutually exclusive.
type Batching struct {
	Size  int
	Count int
	Gap   time.Duration
}

// Config is an exploit's full configuration, the Go analogue of the
// original's ExploitConfig dataclass.
type Config struct {
	Service  string
	Alias    string
	Targets  TargetingStrategy
	TickScope TickScope
	LastN    int
	Skip     []int
	IsDraft  bool
	Prepare  string
	Cleanup  string
	Command  string
	Env      map[string]string
	Delay    time.Duration
	Batching Batching
	Workers  int
	Timeout  time.Duration
}

// Validate checks the invariants the original enforced at construction:
// Batching.Size and Batching.Count are mutually exclusive, and
// LastNTicks scope requires a positive LastN.
func (c Config) Validate() error {
	if c.Batching.Size > 0 && c.Batching.Count > 0 {
		return errBatchingMutuallyExclusive
	}
	if c.TickScope == LastNTicks && c.LastN <= 0 {
		return errLastNRequired
	}
	return nil
}

// Exploit is a fully constructed, ready-to-schedule exploit.
type Exploit struct {
	Config Config
}

// New builds an Exploit from cfg, applying the same defaults the
// original's dataclass field defaults provided (workers=128, timeout=15s).
func New(cfg Config) (*Exploit, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 128
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Targets == "" {
		cfg.Targets = Auto
	}
	if cfg.TickScope == "" {
		cfg.TickScope = SingleTick
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Exploit{Config: cfg}, nil
}

package program

import (
	"math/rand"
	"time"

	"github.com/nmxmxh/bp-runtime/utils"
)

// Config configures a Program the way the teacher's LoggerConfig
// configures a Logger: a small struct built through functional options
// rather than a constructor with a long positional parameter list.
type Config struct {
	Daemon       bool
	CycleTimeout time.Duration
	Workers      int
	Seed         int64
	Listeners    []Listener
	Logger       *utils.Logger
}

// Option configures a Config via NewConfig.
type Option func(*Config)

// WithDaemon sets the initial daemon mode.
func WithDaemon(daemon bool) Option { return func(c *Config) { c.Daemon = daemon } }

// WithCycleTimeout sets the timeout New passes to the program's resource
// loader, bounding a single LoadResource fetch; zero leaves the loader's
// own 10s default. It does not bound a super-step: the per-cycle
// selection timeout is the cycleTimeout argument of runner.Run.
func WithCycleTimeout(d time.Duration) Option { return func(c *Config) { c.CycleTimeout = d } }

// WithWorkers records a worker-pool size in the Config. No package reads
// it: the arbiter advances the b-threads of a super-step one at a time.
func WithWorkers(n int) Option { return func(c *Config) { c.Workers = n } }

// WithSeed sets the deterministic pseudorandom source's seed, so
// bodies that read bp.Rand() replay identically across runs.
func WithSeed(seed int64) Option { return func(c *Config) { c.Seed = seed } }

// WithListener registers a lifecycle Listener at construction time.
func WithListener(l Listener) Option {
	return func(c *Config) { c.Listeners = append(c.Listeners, l) }
}

// WithLogger overrides the default logger.
func WithLogger(l *utils.Logger) Option { return func(c *Config) { c.Logger = l } }

// NewConfig builds a Config, defaulting to a non-daemon, unbounded,
// single-worker, time-seeded program with no listeners.
func NewConfig(opts ...Option) Config {
	c := Config{
		Workers: 1,
		Seed:    time.Now().UnixNano(),
		Logger:  utils.NewLogger(utils.LoggerConfig{Component: "program"}),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c Config) newRand() *rand.Rand { return rand.New(rand.NewSource(c.Seed)) }

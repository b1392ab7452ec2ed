package runtime

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/shlex"
	"github.com/inhies/go-bytesize"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvVerbose = "YORU_GC_VERBOSE"
	EnvEnable  = "YORU_GC_ENABLE"
	EnvStress  = "YORU_GC_STRESS"
	EnvMaxHeap = "YORU_GC_MAXHEAP"
	EnvFlags   = "YORU_GC_FLAGS"
)

const (
	defaultMaxHeap     = 256 << 20
	defaultInitialHeap = 256 << 10
)

// Size is a byte count that can be written as "64MB" in config files, flags
// and the environment.
type Size uint64

// ParseSize accepts either a plain byte count or a number with a unit suffix.
func ParseSize(s string) (Size, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return Size(n), nil
	}
	b, err := bytesize.Parse(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %q", s)
	}
	return Size(b), nil
}

func (s Size) String() string {
	return bytesize.ByteSize(s).String()
}

// Set implements flag.Value.
func (s *Size) Set(v string) error {
	n, err := ParseSize(v)
	if err != nil {
		return err
	}
	*s = n
	return nil
}

// UnmarshalText is used by the TOML decoder.
func (s *Size) UnmarshalText(text []byte) error {
	return s.Set(string(text))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v string
	if err := unmarshal(&v); err != nil {
		return err
	}
	return s.Set(v)
}

// Config holds the collector settings. It is fixed once a heap is created.
type Config struct {
	// Verbose logs every allocation, every freed object and every cycle.
	Verbose bool `yaml:"verbose" toml:"verbose"`

	// AutoCollect lets the allocator start a collection once enough bytes
	// have been allocated since the previous one.
	AutoCollect bool `yaml:"auto_collect" toml:"auto_collect"`

	// Stress collects before every single allocation. It implies
	// AutoCollect.
	Stress bool `yaml:"stress" toml:"stress"`

	// MaxHeap is the most memory the heap may ever reserve. Allocations
	// that do not fit are fatal.
	MaxHeap Size `yaml:"max_heap" toml:"max_heap"`

	// InitialHeap is how much of MaxHeap is in use at start. The heap
	// doubles from there as needed.
	InitialHeap Size `yaml:"initial_heap" toml:"initial_heap"`
}

// DefaultConfig returns the settings used when nothing else is configured:
// automatic collection off, as in a plain run of a compiled program.
func DefaultConfig() Config {
	return Config{
		MaxHeap:     defaultMaxHeap,
		InitialHeap: defaultInitialHeap,
	}
}

// RegisterFlags registers the config flags on f, using the current values as
// defaults.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	f.BoolVar(&cfg.Verbose, "gc.verbose", cfg.Verbose, "Log every allocation, free and collection cycle.")
	f.BoolVar(&cfg.AutoCollect, "gc.auto-collect", cfg.AutoCollect, "Collect automatically when the allocation threshold is reached.")
	f.BoolVar(&cfg.Stress, "gc.stress", cfg.Stress, "Collect before every allocation. Implies -gc.auto-collect.")
	f.Var(&cfg.MaxHeap, "gc.max-heap", "Maximum heap size, e.g. 64MB.")
	f.Var(&cfg.InitialHeap, "gc.initial-heap", "Initial heap size, e.g. 256KB.")
}

// Validate checks the config for consistency. An initial heap larger than
// the maximum is lowered to the maximum.
func (cfg *Config) Validate() error {
	if cfg.MaxHeap == 0 {
		return errors.New("max heap size must be positive")
	}
	if cfg.InitialHeap == 0 {
		return errors.New("initial heap size must be positive")
	}
	if cfg.InitialHeap > cfg.MaxHeap {
		cfg.InitialHeap = cfg.MaxHeap
	}
	return nil
}

func envEnabled(v string) bool {
	return v == "1" || v == "true"
}

// ConfigFromEnv overrides cfg with the YORU_GC_* environment variables.
// The boolean toggles only ever switch a setting on. YORU_GC_FLAGS holds
// extra command-line style flags, e.g. "-gc.stress -gc.max-heap=8MB".
func ConfigFromEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if envEnabled(getenv(EnvVerbose)) {
		cfg.Verbose = true
	}
	if envEnabled(getenv(EnvEnable)) {
		cfg.AutoCollect = true
	}
	if envEnabled(getenv(EnvStress)) {
		cfg.Stress = true
	}
	if v := getenv(EnvMaxHeap); v != "" {
		if err := cfg.MaxHeap.Set(v); err != nil {
			return errors.Wrap(err, EnvMaxHeap)
		}
	}
	if v := getenv(EnvFlags); v != "" {
		args, err := shlex.Split(v)
		if err != nil {
			return errors.Wrap(err, EnvFlags)
		}
		f := flag.NewFlagSet(EnvFlags, flag.ContinueOnError)
		f.SetOutput(io.Discard)
		cfg.RegisterFlags(f)
		if err := f.Parse(args); err != nil {
			return errors.Wrap(err, EnvFlags)
		}
		if f.NArg() != 0 {
			return errors.Errorf("%s: unexpected argument %q", EnvFlags, f.Arg(0))
		}
	}
	return nil
}

// LoadConfigFile overrides cfg with the settings in a YAML or TOML file,
// chosen by extension.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config file")
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.UnmarshalStrict(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	default:
		return errors.Errorf("unsupported config file extension %q", ext)
	}
	return errors.Wrapf(err, "parse config file %s", path)
}

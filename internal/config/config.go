// Package config loads the miner configuration from JSONC files.
//
// Precedence, highest wins:
//  1. Defaults
//  2. Global user config ($XDG_CONFIG_HOME/rxmine/config.json or
//     ~/.config/rxmine/config.json)
//  3. Project config (rxmine.json in the work directory), or the file given
//     with -c/--config instead
//  4. CLI overrides
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sugawarayuuta/sonnet"
	"github.com/tailscale/hujson"

	"github.com/calvinalkan/rxmine/internal/logging"
	"github.com/calvinalkan/rxmine/pkg/rx"
)

// FileName is the project config file name.
const FileName = "rxmine.json"

// Config holds all configuration options.
type Config struct {
	CPU        CPU     `json:"cpu"`
	RandomX    RandomX `json:"randomx"`
	LogFile    string  `json:"log-file,omitempty"`
	DebugLevel string  `json:"debug-level"`

	// Resolved, not serialized.
	EffectiveCwd string  `json:"-"`
	Sources      Sources `json:"-"`
}

// CPU configures hashing threads and memory.
type CPU struct {
	HugePages bool `json:"huge-pages"`

	// MaxThreadsHint is the percentage of CPUs used for hashing.
	MaxThreadsHint int `json:"max-threads-hint"`
}

// RandomX configures dataset provisioning.
type RandomX struct {
	// Init is the dataset fill thread count per node, -1 for every CPU.
	Init       int    `json:"init"`
	Mode       string `json:"mode"`
	OneGBPages bool   `json:"1gb-pages"`
	NUMA       bool   `json:"numa"`
	Storage    string `json:"storage"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string
	Project string
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		CPU: CPU{HugePages: true, MaxThreadsHint: 100},
		RandomX: RandomX{
			Init:    -1,
			Mode:    rx.ModeAuto.String(),
			NUMA:    true,
			Storage: rx.StorageQueued.String(),
		},
		DebugLevel: "info",
	}
}

// Overrides are CLI flag values. Empty strings mean no override.
type Overrides struct {
	LogFile    string
	DebugLevel string
}

// LoadInput holds the inputs for [Load].
type LoadInput struct {
	WorkDir    string            // -C/--cwd; if empty, os.Getwd() is used
	ConfigPath string            // -c/--config
	Env        map[string]string // environment variables
	Overrides  Overrides
}

// fileConfig mirrors Config with pointers so unset keys can be told apart
// from zero values when merging.
type fileConfig struct {
	CPU *struct {
		HugePages      *bool `json:"huge-pages"`
		MaxThreadsHint *int  `json:"max-threads-hint"`
	} `json:"cpu"`
	RandomX *struct {
		Init       *int    `json:"init"`
		Mode       *string `json:"mode"`
		OneGBPages *bool   `json:"1gb-pages"`
		NUMA       *bool   `json:"numa"`
		Storage    *string `json:"storage"`
	} `json:"randomx"`
	LogFile    *string `json:"log-file"`
	DebugLevel *string `json:"debug-level"`
}

// Load resolves the effective configuration.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDir
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	if path := globalPath(input.Env); path != "" {
		loaded, err := loadFile(path, false, &cfg)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = path
		}
	}

	path, mustExist := filepath.Join(workDir, FileName), false

	if input.ConfigPath != "" {
		path, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}

		_, err := os.Stat(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s", ErrFileNotFound, input.ConfigPath)
		}
	}

	loaded, err := loadFile(path, mustExist, &cfg)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg.Sources.Project = path
	}

	if input.Overrides.LogFile != "" {
		cfg.LogFile = input.Overrides.LogFile
	}

	if input.Overrides.DebugLevel != "" {
		cfg.DebugLevel = input.Overrides.DebugLevel
	}

	if cfg.LogFile != "" && !filepath.IsAbs(cfg.LogFile) {
		cfg.LogFile = filepath.Join(workDir, cfg.LogFile)
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	return cfg, nil
}

// globalPath returns the global config path, or "" if no home is known.
func globalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "rxmine", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "rxmine", "config.json")
	}

	return ""
}

// loadFile merges the file at path into cfg and reports whether it existed.
func loadFile(path string, mustExist bool, cfg *Config) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !mustExist {
			return false, nil
		}

		return false, fmt.Errorf("%w: %s: %w", ErrFileRead, path, err)
	}

	err = parse(data, cfg)
	if err != nil {
		return false, fmt.Errorf("%w %s: %w", ErrInvalid, path, err)
	}

	return true, nil
}

func parse(data []byte, cfg *Config) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid JSONC: %w", err)
	}

	var file fileConfig

	err = sonnet.Unmarshal(standardized, &file)
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return merge(cfg, file)
}

func merge(cfg *Config, f fileConfig) error {
	if c := f.CPU; c != nil {
		setIf(&cfg.CPU.HugePages, c.HugePages)
		setIf(&cfg.CPU.MaxThreadsHint, c.MaxThreadsHint)
	}

	if r := f.RandomX; r != nil {
		setIf(&cfg.RandomX.Init, r.Init)
		setIf(&cfg.RandomX.OneGBPages, r.OneGBPages)
		setIf(&cfg.RandomX.NUMA, r.NUMA)

		err := setString(&cfg.RandomX.Mode, r.Mode, "randomx.mode")
		if err != nil {
			return err
		}

		err = setString(&cfg.RandomX.Storage, r.Storage, "randomx.storage")
		if err != nil {
			return err
		}
	}

	err := setString(&cfg.LogFile, f.LogFile, "log-file")
	if err != nil {
		return err
	}

	return setString(&cfg.DebugLevel, f.DebugLevel, "debug-level")
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string, key string) error {
	if v == nil {
		return nil
	}

	if *v == "" {
		return fmt.Errorf("%s: %w", key, ErrEmptyValue)
	}

	*dst = *v

	return nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if c.CPU.MaxThreadsHint < 1 || c.CPU.MaxThreadsHint > 100 {
		return fmt.Errorf("%w (got %d)", ErrThreadsHint, c.CPU.MaxThreadsHint)
	}

	if c.RandomX.Init == 0 || c.RandomX.Init < -1 {
		return fmt.Errorf("%w (got %d)", ErrInitThreads, c.RandomX.Init)
	}

	_, err := rx.ParseMode(c.RandomX.Mode)
	if err != nil {
		return err
	}

	_, err = c.StorageKind()
	if err != nil {
		return err
	}

	_, err = logging.ParseLevels(c.DebugLevel)
	if err != nil {
		return err
	}

	return nil
}

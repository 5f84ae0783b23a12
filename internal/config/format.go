package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/sugawarayuuta/sonnet"
	"github.com/tailscale/hujson"
)

// Format returns the serializable part of cfg as formatted JSON.
func Format(cfg Config) (string, error) {
	data, err := sonnet.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	pretty, err := hujson.Format(data)
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(bytes.TrimSpace(pretty)), nil
}

// Save writes cfg to path atomically. The result loads back as a project or
// explicit config file.
func Save(path string, cfg Config) error {
	formatted, err := Format(cfg)
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	err = atomic.WriteFile(path, bytes.NewReader([]byte(formatted+"\n")))
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

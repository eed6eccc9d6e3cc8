// Package config loads the shared configuration file.
package config

import (
	"path/filepath"

	errors "github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"

	"github.com/Laisky/synset-tree/library/log"
)

// LoadFromFile loads the YAML configuration at cfgPath into the shared config
// and records its directory under `cfg_dir` so relative paths can be resolved.
func LoadFromFile(cfgPath string) error {
	gconfig.S.Set("cfg_dir", filepath.Dir(cfgPath))
	if err := gconfig.S.LoadFromFile(cfgPath); err != nil {
		return errors.Wrapf(err, "load configuration from %q", cfgPath)
	}

	log.Logger.Info("load configuration", zap.String("config", cfgPath))
	return nil
}

// ResolvePath returns p unchanged when absolute, otherwise joins it to the
// directory of the loaded configuration file.
func ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}

	if dir := gconfig.S.GetString("cfg_dir"); dir != "" {
		return filepath.Join(dir, p)
	}

	return p
}

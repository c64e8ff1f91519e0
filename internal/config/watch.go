package config

import (
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the sweep section whenever the config file is written and
// hands the new settings to onChange. Settings outside Sweeps need a restart.
// It is a no-op when no config file was found.
func (c *Config) Watch(logger *zap.Logger, onChange func(Sweeps)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}

	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		sweeps := loadSweeps(c.v)
		logger.Info("Sweep configuration reloaded", zap.String("file", e.Name))
		onChange(sweeps)
	})
	c.v.WatchConfig()
}

package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"bastion/internal/firewall"
	"bastion/internal/logger"
)

// WatchFirewall hot-reloads the firewall threshold section when the config
// file changes. Only the firewall section is applied live; everything else
// needs a restart. Invalid edits are rejected and the running thresholds
// stay in force.
func WatchFirewall(path string, apply func(firewall.Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	v := viper.New()
	v.SetConfigFile(abs)
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := unmarshal(v)
		if err != nil {
			logger.Warnf("config: reload rejected (%s): %v", e.Name, err)
			return
		}
		logger.Infof("config: firewall thresholds reloaded from %s", e.Name)
		apply(cfg.Firewall)
	})
	v.WatchConfig()
	return nil
}

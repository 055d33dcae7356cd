package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/synchlab/pvlogger/pkg/pathing"
)

var ActiveRecorderConfig *RecorderConfig

func DefaultRecorderConfig() *RecorderConfig {
	return &RecorderConfig{
		PVNames:         []string{},
		DataDir:         pathing.GetDefaultDataDir(),
		PeriodSeconds:   10,
		DurationSeconds: 3600,
		SourceBackend:   "sim",
		SerialDevice:    "/dev/ttyUSB0",
		Baudrate:        115200,
		FeedHost:        "localhost:9039",
		MirrorEnabled:   false,
		ListenAddress:   "",
		ListenPort:      9039,
	}
}

// LoadRecorderConfig reads the TOML config at configPath (the well-known
// path when empty), creating it with defaults when missing.
func LoadRecorderConfig(configPath string) error {
	if configPath == "" {
		configPath = pathing.GetConfigPath()
	}

	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultRecorderConfig()
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return err
		}
		defer cfgFile.Close()
		toml.NewEncoder(cfgFile).Encode(cfg)
		ActiveRecorderConfig = cfg
		return nil
	}

	// Load existing config
	var cfg RecorderConfig
	_, err := toml.DecodeFile(configPath, &cfg)
	if err != nil {
		return err
	}
	ActiveRecorderConfig = &cfg
	return nil
}

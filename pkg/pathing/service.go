package pathing

import (
	"os"
	"path/filepath"
)

func GetConfigDir() string {
	return "/etc/pvlogger"
}

func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "pvlogger.toml")
}

// Default base directory for daily data files.
// NOTE: assumes ~/Documents exists and is writeable!
func GetDefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "pvlogger")
	}
	return filepath.Join(home, "Documents", "pvlogger")
}

func GetSampleDbPath(dataDir string) string {
	return filepath.Join(dataDir, "pvlogger.db")
}

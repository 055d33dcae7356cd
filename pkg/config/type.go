package config

type RecorderConfig struct {
	// Ordered PV names; positional CLI arguments take precedence.
	PVNames []string `toml:"pv_names"`

	DataDir         string  `toml:"data_dir"`
	PeriodSeconds   float64 `toml:"period_seconds"`
	DurationSeconds float64 `toml:"duration_seconds"`

	// sim | serial | feed
	SourceBackend string `toml:"source_backend"`

	SerialDevice string `toml:"serial_device"`
	Baudrate     uint   `toml:"baudrate"`

	// host:port of a running pvlogger live feed (feed backend)
	FeedHost string `toml:"feed_host"`

	// Mirror every sample row into an SQLite database next to the logs.
	MirrorEnabled bool `toml:"mirror_enabled"`

	// Live feed HTTP listener; empty address disables it.
	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`
}

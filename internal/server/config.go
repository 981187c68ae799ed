package server

// Config holds the operations server configuration. An empty Addr disables
// the server.
type Config struct {
	Addr      string  `mapstructure:"addr"`
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{RateLimit: 20, RateBurst: 40}
}

// Enabled reports whether the server should be started.
func (c Config) Enabled() bool { return c.Addr != "" }

package config

import "time"

// Config holds broker configuration values.
type Config struct {
	Addr             string        `mapstructure:"addr" yaml:"addr"`
	OpsAddr          string        `mapstructure:"ops_addr" yaml:"ops_addr"`
	MaxSessions      int           `mapstructure:"max_sessions" yaml:"max_sessions"`
	MaxRooms         int           `mapstructure:"max_rooms" yaml:"max_rooms"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel         string        `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration matching the historical lobby defaults:
// port 12000, 256 session slots, 64 room slots, a 60 second heartbeat
// window swept every second.
func Default() Config {
	return Config{
		Addr:             ":12000",
		OpsAddr:          ":12080",
		MaxSessions:      256,
		MaxRooms:         64,
		HeartbeatTimeout: 60 * time.Second,
		SweepInterval:    time.Second,
		ShutdownTimeout:  5 * time.Second,
		LogLevel:         "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.OpsAddr != "" {
		c.OpsAddr = other.OpsAddr
	}
	if other.MaxSessions != 0 {
		c.MaxSessions = other.MaxSessions
	}
	if other.MaxRooms != 0 {
		c.MaxRooms = other.MaxRooms
	}
	if other.HeartbeatTimeout != 0 {
		c.HeartbeatTimeout = other.HeartbeatTimeout
	}
	if other.SweepInterval != 0 {
		c.SweepInterval = other.SweepInterval
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

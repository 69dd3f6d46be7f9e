package config

import "time"

// SocketConfig holds WebSocket server configuration.
type SocketConfig struct {
	MaxConnections  int `mapstructure:"max_connections"`
	PingInterval    int `mapstructure:"ping_interval_seconds"`
	WriteTimeout    int `mapstructure:"write_timeout_seconds"`
	ReadBufferSize  int `mapstructure:"read_buffer_size"`
	WriteBufferSize int `mapstructure:"write_buffer_size"`
	SendBuffer      int `mapstructure:"send_buffer"`
}

// DefaultSocketConfig returns the default WebSocket configuration.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		MaxConnections:  1000,
		PingInterval:    30,
		WriteTimeout:    10,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
	}
}

// PingEvery returns the server ping interval.
func (c SocketConfig) PingEvery() time.Duration {
	return time.Duration(c.PingInterval) * time.Second
}

// WriteDeadline returns the per-write timeout.
func (c SocketConfig) WriteDeadline() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

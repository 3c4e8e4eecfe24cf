package common

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultQueryTimeout     = 1000 * time.Millisecond
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultReadBufferSize   = 64 * 1024 // 64 KB
	DefaultLogLevel         = "info"
)

// --------------------------------------------------------------------------
// Instance configuration struct
// --------------------------------------------------------------------------

// InstanceConfig holds all parameters of a single instance (primary or secondary)
type InstanceConfig struct {
	// Endpoint is the opaque endpoint name (or socket path) all instances of the application share
	Endpoint string

	// Timeout bounds the handshake of a secondary (connect, write and ack)
	Timeout time.Duration

	// QueryTimeout bounds PrimaryPid and PrimaryUser
	QueryTimeout time.Duration

	// PollInterval is the accept poll interval of the primary, it bounds the stop latency
	PollInterval time.Duration

	// ReadBufferSize is the size of the per connection read buffer
	ReadBufferSize int

	// Logging configuration
	LogLevel string
}

// DefaultInstanceConfig returns a config for the given endpoint with all defaults applied
func DefaultInstanceConfig(endpoint string) InstanceConfig {
	return InstanceConfig{
		Endpoint:       endpoint,
		Timeout:        DefaultHandshakeTimeout,
		QueryTimeout:   DefaultQueryTimeout,
		PollInterval:   DefaultPollInterval,
		ReadBufferSize: DefaultReadBufferSize,
		LogLevel:       DefaultLogLevel,
	}
}

// WithDefaults returns a copy of the config where every unset value is replaced by its default
func (c InstanceConfig) WithDefaults() InstanceConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultHandshakeTimeout
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	return c
}

// String returns a formatted string representation of the configuration
func (c *InstanceConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Instance")
	addField("Endpoint", c.Endpoint)
	addField("Handshake Timeout", c.Timeout.String())
	addField("Query Timeout", c.QueryTimeout.String())

	addSection("Transport")
	addField("Poll Interval", c.PollInterval.String())
	addField("Read Buffer", fmt.Sprintf("%d KB", c.ReadBufferSize/1024))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

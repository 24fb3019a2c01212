package server

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Default values used when the corresponding Config field is zero
const (
	DefaultPort           = 17070
	DefaultMaxRequestSize = 32 << 20 // 32 MiB
	DefaultTimeout        = 15 * time.Second
	DefaultMaxHeaderSize  = http.DefaultMaxHeaderBytes // 1 MiB
)

// Config holds the server configuration.
// A Server copies it at construction time and never modifies it.
type Config struct {
	// Host is the IPv4 address to bind. Empty binds all interfaces.
	Host string

	// Port is the TCP port to bind. 0 picks an ephemeral port.
	Port int

	// MaxRequestSize is the largest request body accepted, in bytes
	MaxRequestSize int64

	// MaxHeaderSize caps the request line plus headers, in bytes
	MaxHeaderSize int64

	// Timeout bounds the whole exchange, from accept until the response has been written
	Timeout time.Duration

	// MimeType is sent as Content-Type on successful responses. Empty sends none.
	MimeType string
}

// DefaultConfig returns a Config populated with the default values.
func DefaultConfig() Config {
	return Config{
		Port:           DefaultPort,
		MaxRequestSize: DefaultMaxRequestSize,
		MaxHeaderSize:  DefaultMaxHeaderSize,
		Timeout:        DefaultTimeout,
	}
}

// ApplyDefaults fills zero size and timeout fields.
// Port is left alone so that 0 keeps meaning "ephemeral".
func (c *Config) ApplyDefaults() {
	if c.MaxRequestSize <= 0 {
		c.MaxRequestSize = DefaultMaxRequestSize
	}
	if c.MaxHeaderSize <= 0 {
		c.MaxHeaderSize = DefaultMaxHeaderSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxRequestSize <= 0 {
		return fmt.Errorf("invalid max request size %d: must be positive", c.MaxRequestSize)
	}
	if c.MaxHeaderSize <= 0 {
		return fmt.Errorf("invalid max header size %d: must be positive", c.MaxHeaderSize)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout %s: must be positive", c.Timeout)
	}
	return nil
}

// Address returns the host:port string the listener binds.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

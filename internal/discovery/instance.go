package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// TXT record keys advertised by a running server
const (
	TxtVersion        = "version"
	TxtMimeType       = "mime"
	TxtMaxRequestSize = "max_request_size"
)

// Instance represents a jpegmirror server found on the network
type Instance struct {
	// Name is the mDNS service instance name (e.g., "jpegmirror-office")
	Name string

	// Hostname is the mDNS hostname of the machine (e.g., "build01.local.")
	Hostname string

	// IP is the address to connect to, IPv4 preferred
	IP string

	// Port is the TCP port the server listens on
	Port int

	// Metadata contains the TXT record data
	// Common fields: "version=1.2.0", "mime=image/jpeg", "max_request_size=33554432"
	Metadata map[string]string

	// DiscoveredAt is when the instance was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the instance
func (i *Instance) String() string {
	return fmt.Sprintf("jpegmirror %s (%s) at %s", i.Name, i.Hostname, i.Address())
}

// Address returns host:port suitable for dialing
func (i *Instance) Address() string {
	return net.JoinHostPort(i.IP, strconv.Itoa(i.Port))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (i *Instance) GetMetadata(key string) string {
	if i.Metadata == nil {
		return ""
	}
	return i.Metadata[key]
}

// MaxRequestSize returns the advertised body limit, or 0 when absent or malformed
func (i *Instance) MaxRequestSize() int64 {
	n, err := strconv.ParseInt(i.GetMetadata(TxtMaxRequestSize), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

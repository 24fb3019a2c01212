package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type jpegmirror servers advertise
	ServiceType = "_jpegmirror._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for discovery
	DefaultScanTimeout = 5 * time.Second
)

// Scanner handles mDNS discovery of running servers
type Scanner struct {
	// Timeout is the maximum time to wait for discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan browses for servers until the timeout (or ctx) expires and returns
// every instance seen, without duplicates.
func (s *Scanner) Scan(ctx context.Context) ([]*Instance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var (
		mu        sync.Mutex
		seen      = make(map[string]bool)
		instances = make([]*Instance, 0)
	)

	err := s.browse(ctx, func(inst *Instance) bool {
		mu.Lock()
		defer mu.Unlock()
		if !seen[inst.Name] {
			seen[inst.Name] = true
			instances = append(instances, inst)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return append([]*Instance(nil), instances...), nil
}

// WaitFor browses until an instance with the given name appears.
func (s *Scanner) WaitFor(ctx context.Context, name string) (*Instance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	found := make(chan *Instance, 1)
	err := s.browse(ctx, func(inst *Instance) bool {
		if inst.Name != name {
			return true
		}
		select {
		case found <- inst:
		default:
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	select {
	case inst := <-found:
		return inst, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("instance %q not found within %s", name, s.Timeout)
	}
}

// browse starts an mDNS browse and calls onFound for every parsed entry
// until it returns false or ctx ends.
func (s *Scanner) browse(ctx context.Context, onFound func(*Instance) bool) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	// zeroconf never closes entries and blocks on send, so keep draining until ctx ends
	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		done := false
		for {
			select {
			case <-ctx.Done():
				return
			case entry := <-entries:
				if done {
					continue
				}
				if inst := parseServiceEntry(entry); inst != nil && !onFound(inst) {
					done = true
				}
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return nil
}

// parseServiceEntry converts a zeroconf service entry to an Instance.
// Returns nil if the entry has no usable address or port.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Instance {
	if entry == nil || entry.Instance == "" || entry.Port == 0 {
		return nil
	}

	// prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	return &Instance{
		Name:         entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     parseTXT(entry.Text),
		DiscoveredAt: time.Now(),
	}
}

// parseTXT turns "key=value" records into a map. A bare key maps to "".
func parseTXT(records []string) map[string]string {
	metadata := make(map[string]string, len(records))
	for _, txt := range records {
		key, value, _ := strings.Cut(txt, "=")
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	return metadata
}

// Discover is a convenience function to scan with a custom timeout
func Discover(ctx context.Context, timeout time.Duration) ([]*Instance, error) {
	scanner := NewScanner()
	if timeout > 0 {
		scanner.Timeout = timeout
	}
	return scanner.Scan(ctx)
}

package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Service is a dictionary server found on the network.
type Service struct {
	// Instance is the advertised instance name (e.g., "lab Dictionary Server")
	Instance string

	// Hostname is the mDNS hostname (e.g., "lab.local.")
	Hostname string

	// IP is the preferred address, IPv4 when one was advertised
	IP string

	// Port is the web server port
	Port int

	// Metadata holds the TXT record, e.g. "version=1", "phidget22=1.0"
	Metadata map[string]string

	// DiscoveredAt is when the service was seen
	DiscoveredAt time.Time
}

// String returns a human-readable description of the service.
func (s *Service) String() string {
	return fmt.Sprintf("%s (%s) at %s", s.Instance, s.Hostname, net.JoinHostPort(s.IP, strconv.Itoa(s.Port)))
}

// BaseURL returns the HTTP base URL of the service.
func (s *Service) BaseURL() string {
	return "http://" + net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
}

// GetMetadata returns a TXT value, or "" if absent.
func (s *Service) GetMetadata(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}

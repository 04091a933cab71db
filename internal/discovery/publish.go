package discovery

import (
	"fmt"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/dictserver/internal/logging"
)

// TXT record keys published with the server.
const (
	TXTVersion  = "version"
	TXTPost     = "POST"
	TXTProtocol = "phidget22"
)

// TXTRecord returns the TXT strings advertised for a dictionary server.
func TXTRecord() []string {
	return []string{
		TXTVersion + "=1",
		TXTPost + "=0",
		TXTProtocol + "=1.0",
	}
}

// Publisher advertises the server until Shutdown.
type Publisher struct {
	servers []*zeroconf.Server
}

// Publish registers instance on port under ServiceType and HTTPServiceType.
// If the second registration fails the first is withdrawn.
func Publish(instance string, port int) (*Publisher, error) {
	p := &Publisher{}
	for _, service := range []string{ServiceType, HTTPServiceType} {
		srv, err := zeroconf.Register(instance, service, ServiceDomain, port, TXTRecord(), nil)
		if err != nil {
			p.Shutdown()
			return nil, fmt.Errorf("failed to publish %s: %w", service, err)
		}
		p.servers = append(p.servers, srv)
		logging.Info("Published mDNS service",
			zap.String("instance", instance),
			zap.String("service", service),
			zap.Int("port", port),
		)
	}
	return p, nil
}

// Shutdown withdraws every registration. It is safe on a nil Publisher.
func (p *Publisher) Shutdown() {
	if p == nil {
		return
	}
	for _, srv := range p.servers {
		srv.Shutdown()
	}
	p.servers = nil
}

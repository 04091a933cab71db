// Package discovery publishes dictionary servers over mDNS and finds them.
//
// A server registers itself under two service types: "_phidget_www._tcp",
// which clients browse for, and the generic "_http._tcp" so that ordinary
// service browsers list the web interface. Both carry the TXT record
//
//	version=1 POST=0 phidget22=1.0
//
// Browsing only reports entries carrying the phidget22 key and at least one
// address. IPv4 is preferred when both families are advertised.
//
// # Usage Example
//
//	pub, err := discovery.Publish("lab Dictionary Server", 8080)
//	if err != nil {
//	    return err
//	}
//	defer pub.Shutdown()
//
//	services, err := discovery.NewScanner().Scan(ctx)
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Servers must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery

package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func entry(instance, host string, port int, v4, v6 []net.IP, txt ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceType, ServiceDomain)
	e.HostName = host
	e.Port = port
	e.AddrIPv4 = v4
	e.AddrIPv6 = v6
	e.Text = txt
	return e
}

func TestParseServiceEntry(t *testing.T) {
	ours := TXTRecord()

	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantIP   string
		wantPort int
	}{
		{
			name:     "ipv4 server",
			entry:    entry("lab", "lab.local.", 8080, []net.IP{net.ParseIP("192.168.4.16")}, nil, ours...),
			wantIP:   "192.168.4.16",
			wantPort: 8080,
		},
		{
			name:     "no port defaults to 80",
			entry:    entry("lab", "lab.local.", 0, []net.IP{net.ParseIP("172.16.0.1")}, nil, ours...),
			wantIP:   "172.16.0.1",
			wantPort: 80,
		},
		{
			name:     "ipv6 only",
			entry:    entry("lab", "lab.local.", 8080, nil, []net.IP{net.ParseIP("fe80::1")}, ours...),
			wantIP:   "fe80::1",
			wantPort: 8080,
		},
		{
			name: "prefers ipv4",
			entry: entry("lab", "lab.local.", 8080,
				[]net.IP{net.ParseIP("192.168.1.50")}, []net.IP{net.ParseIP("fe80::2")}, ours...),
			wantIP:   "192.168.1.50",
			wantPort: 8080,
		},
		{
			name:    "foreign http service",
			entry:   entry("printer", "printer.local.", 80, []net.IP{net.ParseIP("192.168.1.1")}, nil, "path=/"),
			wantNil: true,
		},
		{
			name:    "no address",
			entry:   entry("lab", "lab.local.", 8080, nil, nil, ours...),
			wantNil: true,
		},
		{
			name:    "no instance",
			entry:   entry("", "lab.local.", 8080, []net.IP{net.ParseIP("10.0.0.1")}, nil, ours...),
			wantNil: true,
		},
		{
			name:    "nil entry",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := parseServiceEntry(tt.entry)

			if tt.wantNil {
				if svc != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", svc)
				}
				return
			}
			if svc == nil {
				t.Fatal("parseServiceEntry() = nil, want service")
			}
			if svc.IP != tt.wantIP {
				t.Errorf("svc.IP = %v, want %v", svc.IP, tt.wantIP)
			}
			if svc.Port != tt.wantPort {
				t.Errorf("svc.Port = %v, want %v", svc.Port, tt.wantPort)
			}
			if svc.Instance != tt.entry.Instance {
				t.Errorf("svc.Instance = %v, want %v", svc.Instance, tt.entry.Instance)
			}
			if time.Since(svc.DiscoveredAt) > time.Second {
				t.Errorf("svc.DiscoveredAt is not recent: %v", svc.DiscoveredAt)
			}
		})
	}
}

func TestParseServiceEntryMetadata(t *testing.T) {
	e := entry("lab", "lab.local.", 8080, []net.IP{net.ParseIP("192.168.4.16")}, nil,
		"version=1", "POST=0", "phidget22=1.0", "flag")

	svc := parseServiceEntry(e)
	if svc == nil {
		t.Fatal("parseServiceEntry() = nil, want service")
	}

	want := map[string]string{
		"version":   "1",
		"POST":      "0",
		"phidget22": "1.0",
		"flag":      "",
	}
	if len(svc.Metadata) != len(want) {
		t.Errorf("svc.Metadata has %d entries, want %d", len(svc.Metadata), len(want))
	}
	for k, v := range want {
		if got, ok := svc.Metadata[k]; !ok {
			t.Errorf("svc.Metadata missing key %q", k)
		} else if got != v {
			t.Errorf("svc.Metadata[%q] = %q, want %q", k, got, v)
		}
	}
}

func TestTXTRecord(t *testing.T) {
	want := []string{"version=1", "POST=0", "phidget22=1.0"}
	got := TXTRecord()
	if len(got) != len(want) {
		t.Fatalf("TXTRecord() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TXTRecord()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}

func TestNilPublisherShutdown(t *testing.T) {
	var p *Publisher
	p.Shutdown()
}

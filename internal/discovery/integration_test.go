//go:build integration

package discovery

import (
	"context"
	"testing"
	"time"
)

func TestPublishAndFind(t *testing.T) {
	pub, err := Publish("dictserver integration", 18080)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	defer pub.Shutdown()

	scanner := NewScanner()
	scanner.Timeout = 10 * time.Second
	svc, err := scanner.Find(context.Background(), "dictserver integration")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if svc.Port != 18080 {
		t.Errorf("svc.Port = %d, want 18080", svc.Port)
	}
	if svc.GetMetadata(TXTProtocol) != "1.0" {
		t.Errorf("svc.Metadata = %v", svc.Metadata)
	}
}

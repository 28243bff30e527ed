package netengine

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchServerConfigFileAppliesMaxConnectionCount(t *testing.T) {
	scfg := NewServerConfig(NoopServerCallback{})
	scfg.Port = freeTCPPort(t)
	scfg.MaxConnectionCount = 1
	srv, err := NewTCPServer(scfg)
	if err != nil {
		t.Fatalf("NewTCPServer: %v", err)
	}
	if !srv.Start() {
		t.Fatalf("Start failed: %v", srv.LastError())
	}
	defer srv.Stop()

	path := filepath.Join(t.TempDir(), "netengine.json")
	if err := os.WriteFile(path, []byte(`{"max_connection_count": 1}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	stop, err := WatchServerConfigFile(srv, path)
	if err != nil {
		t.Fatalf("WatchServerConfigFile: %v", err)
	}
	defer stop()

	if err := os.WriteFile(path, []byte(`{"max_connection_count": 5}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		srv.mu.Lock()
		got := srv.cfg.MaxConnectionCount
		srv.mu.Unlock()
		if got == 5 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("MaxConnectionCount = %d after reload, want 5", got)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

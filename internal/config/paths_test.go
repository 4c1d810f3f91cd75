package config

import (
	"os"
	"testing"
	"time"
)

func TestResolvePathsHonorsDataDirOverride(t *testing.T) {
	t.Setenv("AIHISTORY_DATA_DIR", "/tmp/ai-history-test-override")
	paths, err := ResolvePaths()
	if err != nil {
		t.Fatalf("ResolvePaths() error = %v", err)
	}
	if paths.DataDir != "/tmp/ai-history-test-override" {
		t.Fatalf("got DataDir %q, want override honored", paths.DataDir)
	}
	if paths.DBPath != "/tmp/ai-history-test-override/ai-history.sqlite" {
		t.Fatalf("unexpected DBPath: %q", paths.DBPath)
	}
}

func TestBridgeAddrDefaultAndOverride(t *testing.T) {
	os.Unsetenv("AIHISTORY_BRIDGE_ADDR")
	if got := BridgeAddr(); got != "127.0.0.1:48765" {
		t.Fatalf("got default %q", got)
	}
	t.Setenv("AIHISTORY_BRIDGE_ADDR", "127.0.0.1:9999")
	if got := BridgeAddr(); got != "127.0.0.1:9999" {
		t.Fatalf("got %q, want override honored", got)
	}
}

func TestFetchTimeoutDefaultAndOverride(t *testing.T) {
	os.Unsetenv("AIHISTORY_FETCH_TIMEOUT")
	if got := FetchTimeout(); got != 15*time.Second {
		t.Fatalf("got default %v", got)
	}
	t.Setenv("AIHISTORY_FETCH_TIMEOUT", "3s")
	if got := FetchTimeout(); got != 3*time.Second {
		t.Fatalf("got %v, want override honored", got)
	}
}

func TestFetchTimeoutIgnoresGarbageValue(t *testing.T) {
	t.Setenv("AIHISTORY_FETCH_TIMEOUT", "not-a-duration")
	if got := FetchTimeout(); got != 15*time.Second {
		t.Fatalf("got %v, want fallback on unparseable value", got)
	}
}

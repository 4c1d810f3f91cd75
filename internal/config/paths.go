// Package config resolves on-disk locations and tunables from the
// environment, the way the teacher's pkg/fetch/env.go applies env defaults
// over a zero-value Config.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Paths describes every on-disk location the store, cache worker, and
// backup exporter own. AssetsDir and BackupsDir are resolved but not
// created here — each owner creates its directory lazily on first write,
// per spec.md §4.4/§4.6/§4.9.
type Paths struct {
	DataDir    string
	DBPath     string
	AssetsDir  string
	BackupsDir string
}

// ResolvePaths resolves the data directory from AIHISTORY_DATA_DIR, falling
// back to os.UserConfigDir()/ai-history.
func ResolvePaths() (Paths, error) {
	dataDir := os.Getenv("AIHISTORY_DATA_DIR")
	if dataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return Paths{}, err
		}
		dataDir = filepath.Join(base, "ai-history")
	}
	return Paths{
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, "ai-history.sqlite"),
		AssetsDir:  filepath.Join(dataDir, "assets"),
		BackupsDir: filepath.Join(dataDir, "backups"),
	}, nil
}

// BridgeAddr returns the loopback address the bridge server binds to.
func BridgeAddr() string {
	if v := os.Getenv("AIHISTORY_BRIDGE_ADDR"); v != "" {
		return v
	}
	return "127.0.0.1:48765"
}

// SessionTTL returns the bridge session token lifetime.
func SessionTTL() time.Duration {
	return durationEnv("AIHISTORY_SESSION_TTL", 10*time.Minute)
}

// FetchTimeout returns the cache worker's per-request HTTP timeout.
func FetchTimeout() time.Duration {
	return durationEnv("AIHISTORY_FETCH_TIMEOUT", 15*time.Second)
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

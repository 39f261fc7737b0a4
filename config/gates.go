package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rentiq/rentiq_backend/gate"
)

const (
	GateDatabase = "database"
	GateRedis    = "redis"
	GatePubSub   = "pubsub"
	GateStorage  = "storage"
)

var (
	gates   = gate.NewRegistry()
	gatesMu sync.Mutex
)

// Gates returns the process-wide connection gate registry.
func Gates() *gate.Registry {
	return gates
}

// newGate builds and registers a gate whose backoff can be tuned with
// GATE_<NAME>_BACKOFF, GATE_<NAME>_BACKOFF_BASE_MS and GATE_<NAME>_BACKOFF_MAX_MS;
// GATE_<NAME>_PROBE_TIMEOUT takes a Go duration such as 15s.
func newGate(name string, maxAttempts int, probeTimeout time.Duration) *gate.Gate {
	prefix := "GATE_" + strings.ToUpper(name)
	if v := intFromEnv(prefix+"_MAX_ATTEMPTS", -1); v >= 0 {
		maxAttempts = v
	}
	probeTimeout = durationFromEnv(prefix+"_PROBE_TIMEOUT", probeTimeout)
	return gates.Register(gate.New(name, gate.Options{
		Backoff:      gate.BackoffFromEnv(prefix, gate.BackoffFromEnv("GATE", gate.DefaultBackoff())),
		MaxAttempts:  maxAttempts,
		ProbeTimeout: probeTimeout,
		Logger:       logg,
	}))
}

func getGate(name string, maxAttempts int, probeTimeout time.Duration) *gate.Gate {
	gatesMu.Lock()
	defer gatesMu.Unlock()
	if g, ok := gates.Get(name); ok {
		return g
	}
	return newGate(name, maxAttempts, probeTimeout)
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	return def
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getenvTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// EnsureGate returns the registered gate called name, creating it on first use.
func EnsureGate(name string, maxAttempts int, probeTimeout time.Duration) *gate.Gate {
	return getGate(name, maxAttempts, probeTimeout)
}

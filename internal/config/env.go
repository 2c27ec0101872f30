package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Lookup reads one configuration variable. os.Getenv satisfies it.
type Lookup func(key string) string

// env wraps a Lookup with the typed readers used by Load. Invalid values are
// collected rather than silently replaced by defaults.
type env struct {
	lookup  Lookup
	invalid []string
}

func newEnv(lookup Lookup) *env {
	if lookup == nil {
		lookup = os.Getenv
	}
	return &env{lookup: lookup}
}

// Env returns the trimmed value of k, or def when unset.
func (e *env) Env(k, def string) string {
	v := strings.TrimSpace(e.lookup(k))
	if v == "" {
		return def
	}
	return v
}

// BoolEnv reads k as a bool. strconv.ParseBool accepts 1, t, TRUE, 0, f, FALSE
// and friends.
func (e *env) BoolEnv(k string, def bool) bool {
	v := strings.TrimSpace(e.lookup(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.invalid = append(e.invalid, k)
		return def
	}
	return b
}

// IntEnv reads k as a base 10 integer.
func (e *env) IntEnv(k string, def int) int {
	v := strings.TrimSpace(e.lookup(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.invalid = append(e.invalid, k)
		return def
	}
	return n
}

// DurationEnv reads k as a Go duration ("250ms", "10s"). A bare integer is
// taken as milliseconds.
func (e *env) DurationEnv(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.lookup(k))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.invalid = append(e.invalid, k)
		return def
	}
	return d
}

// ListEnv reads k as a comma separated list. Empty items are kept so that
// positions stay aligned with slot indexes.
func (e *env) ListEnv(k string, def []string) []string {
	v := strings.TrimSpace(e.lookup(k))
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Package settings holds the process-wide runtime configuration store.
//
// The store is a lenient name/value map: Set accepts any name and value
// without schema validation, and Get never fails. Handlers read tunables
// (page size, rate limit, analytics flag) from the shared instance.
package settings

import "sync"

// Well-known setting names.
const (
	KeyDefaultPageSize = "DEFAULT_PAGE_SIZE"
	KeyEnableAnalytics = "ENABLE_ANALYTICS"
	KeyRateLimit       = "RATE_LIMIT"
)

func defaults() map[string]any {
	return map[string]any{
		KeyDefaultPageSize: 20,
		KeyEnableAnalytics: true,
		KeyRateLimit:       100,
	}
}

// Descriptions documents the built-in settings for the config endpoint.
func Descriptions() map[string]string {
	return map[string]string{
		KeyDefaultPageSize: "Number of posts per page",
		KeyEnableAnalytics: "Whether analytics logging is enabled",
		KeyRateLimit:       "Maximum requests per hour per user",
	}
}

type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

// New returns a store initialized with the default table. Most callers
// want Shared; New exists for dependency injection and tests.
func New() *Store {
	return &Store{values: defaults()}
}

var (
	sharedOnce sync.Once
	shared     *Store
)

// Shared returns the process-wide store, creating it on first use.
func Shared() *Store {
	sharedOnce.Do(func() {
		shared = New()
	})
	return shared
}

// Get looks up a setting. The second return is false when the name is unset.
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Set stores a value under name unconditionally. Values are not validated
// against any schema; callers own the convention for each name.
func (s *Store) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// All returns a copy of the current settings. Mutating the result does not
// affect the store.
func (s *Store) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Reset replaces all settings with a fresh copy of the default table,
// discarding any keys added since the last reset.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = defaults()
}

// Int reads name as an int, falling back to the built-in default (or zero
// for unknown names) when the value is unset or not an integer.
func (s *Store) Int(name string) int {
	v, ok := s.Get(name)
	if ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			// JSON numbers decode as float64.
			return int(n)
		}
	}
	if d, ok := defaults()[name].(int); ok {
		return d
	}
	return 0
}

// Bool reads name as a bool with the same fallback behavior as Int.
func (s *Store) Bool(name string) bool {
	v, ok := s.Get(name)
	if ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	if d, ok := defaults()[name].(bool); ok {
		return d
	}
	return false
}

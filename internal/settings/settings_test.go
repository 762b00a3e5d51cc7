package settings

import (
	"fmt"
	"sync"
	"testing"
)

func TestSharedReturnsSameInstance(t *testing.T) {
	a := Shared()
	b := Shared()
	if a != b {
		t.Fatalf("expected identical instances, got %p and %p", a, b)
	}
}

func TestSharedState(t *testing.T) {
	Shared().Reset()
	defer Shared().Reset()

	Shared().Set(KeyRateLimit, 500)
	v, ok := Shared().Get(KeyRateLimit)
	if !ok {
		t.Fatalf("expected RATE_LIMIT to be set")
	}
	if v != 500 {
		t.Fatalf("expected 500, got %v", v)
	}
}

func TestGetMissingReturnsAbsent(t *testing.T) {
	s := New()
	if _, ok := s.Get("DOES_NOT_EXIST"); ok {
		t.Fatalf("expected absent result for unknown name")
	}
}

func TestSetAcceptsAnyNameAndValue(t *testing.T) {
	s := New()
	s.Set("NEW_SETTING", "test_value")
	v, ok := s.Get("NEW_SETTING")
	if !ok || v != "test_value" {
		t.Fatalf("expected new setting to round-trip, got %v %v", v, ok)
	}

	s.Set(KeyRateLimit, 200)
	if v, _ := s.Get(KeyRateLimit); v != 200 {
		t.Fatalf("expected updated value 200, got %v", v)
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	s := New()
	s.Set(KeyDefaultPageSize, 100)
	s.Set(KeyEnableAnalytics, false)
	s.Set(KeyRateLimit, 500)
	s.Set("EXTRA", 1)

	s.Reset()

	all := s.All()
	want := map[string]any{
		KeyDefaultPageSize: 20,
		KeyEnableAnalytics: true,
		KeyRateLimit:       100,
	}
	if len(all) != len(want) {
		t.Fatalf("expected exactly the default table, got %v", all)
	}
	for k, v := range want {
		if all[k] != v {
			t.Fatalf("expected %s=%v after reset, got %v", k, v, all[k])
		}
	}
}

func TestAllReturnsCopy(t *testing.T) {
	s := New()
	all := s.All()
	all["INJECTED"] = "x"
	all[KeyRateLimit] = 9999

	if _, ok := s.Get("INJECTED"); ok {
		t.Fatalf("mutating the returned map leaked into the store")
	}
	if v, _ := s.Get(KeyRateLimit); v != 100 {
		t.Fatalf("expected RATE_LIMIT untouched, got %v", v)
	}
}

func TestTypedReaders(t *testing.T) {
	s := New()
	if got := s.Int(KeyDefaultPageSize); got != 20 {
		t.Fatalf("expected 20, got %d", got)
	}
	if !s.Bool(KeyEnableAnalytics) {
		t.Fatalf("expected analytics enabled by default")
	}

	// JSON-decoded numbers arrive as float64.
	s.Set(KeyRateLimit, float64(250))
	if got := s.Int(KeyRateLimit); got != 250 {
		t.Fatalf("expected 250, got %d", got)
	}

	// A mistyped value falls back to the default.
	s.Set(KeyDefaultPageSize, "lots")
	if got := s.Int(KeyDefaultPageSize); got != 20 {
		t.Fatalf("expected fallback to 20, got %d", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Set(fmt.Sprintf("KEY_%d", n), j)
				s.Get(KeyRateLimit)
				s.All()
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		if v, ok := s.Get(fmt.Sprintf("KEY_%d", i)); !ok || v != 99 {
			t.Fatalf("expected KEY_%d=99, got %v %v", i, v, ok)
		}
	}
}

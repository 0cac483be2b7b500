package znuny

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// sessionBackend counts logins and hands out sequential session ids.
func sessionBackend(t *testing.T, logins *atomic.Int64, fail *atomic.Bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail != nil && fail.Load() {
			http.Error(w, "login disabled", http.StatusServiceUnavailable)
			return
		}
		n := logins.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"SessionID": fmt.Sprintf("sess-%d", n)})
	}))
}

func TestSessionCache_OverrideBypassesBackend(t *testing.T) {
	t.Parallel()

	var logins atomic.Int64
	srv := sessionBackend(t, &logins, nil)
	defer srv.Close()

	// TTL of zero would force a refresh on every call, the override must
	// still win.
	cache := NewSessionCache(New(srv.URL, "agent", "secret", nil), 0, "forced-session", nil)

	for range 3 {
		id, err := cache.Get(context.Background())
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if id != "forced-session" {
			t.Errorf("id = %q, want forced-session", id)
		}
	}
	if n := logins.Load(); n != 0 {
		t.Errorf("backend logins = %d, want 0", n)
	}
}

func TestSessionCache_ReusesWithinTTL(t *testing.T) {
	t.Parallel()

	var logins atomic.Int64
	srv := sessionBackend(t, &logins, nil)
	defer srv.Close()

	cache := NewSessionCache(New(srv.URL, "agent", "secret", nil), time.Hour, "", nil)

	first, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first != second {
		t.Errorf("ids differ within TTL: %q vs %q", first, second)
	}
	if n := logins.Load(); n != 1 {
		t.Errorf("backend logins = %d, want 1", n)
	}
}

func TestSessionCache_RefreshAfterExpiry(t *testing.T) {
	t.Parallel()

	var logins atomic.Int64
	srv := sessionBackend(t, &logins, nil)
	defer srv.Close()

	cache := NewSessionCache(New(srv.URL, "agent", "secret", nil), time.Nanosecond, "", nil)

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(time.Millisecond)
	id, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if id != "sess-2" {
		t.Errorf("id = %q, want sess-2 (exactly one re-authentication)", id)
	}
	if n := logins.Load(); n != 2 {
		t.Errorf("backend logins = %d, want 2", n)
	}
}

func TestSessionCache_FailedRefreshKeepsPriorEntry(t *testing.T) {
	t.Parallel()

	var logins atomic.Int64
	var fail atomic.Bool
	srv := sessionBackend(t, &logins, &fail)
	defer srv.Close()

	cache := NewSessionCache(New(srv.URL, "agent", "secret", nil), time.Hour, "", nil)

	first, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	// Expire the entry by hand and make the backend refuse logins.
	cache.mu.Lock()
	cache.obtainedAt = time.Now().Add(-2 * time.Hour)
	cache.mu.Unlock()
	fail.Store(true)

	if _, err := cache.Get(context.Background()); err == nil {
		t.Fatal("expected AuthError when refresh fails")
	} else {
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("err = %v, want *AuthError", err)
		}
	}

	// The prior entry is untouched: once the backend recovers and the
	// clock is rewound, the same value is served again.
	fail.Store(false)
	cache.mu.Lock()
	if cache.id != first {
		t.Errorf("cached id = %q, want %q (failed refresh must not clear)", cache.id, first)
	}
	cache.obtainedAt = time.Now()
	cache.mu.Unlock()

	again, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again != first {
		t.Errorf("id = %q, want %q", again, first)
	}
}

func TestSessionCache_Invalidate(t *testing.T) {
	t.Parallel()

	var logins atomic.Int64
	srv := sessionBackend(t, &logins, nil)
	defer srv.Close()

	cache := NewSessionCache(New(srv.URL, "agent", "secret", nil), time.Hour, "", nil)

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	cache.Invalidate()
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := logins.Load(); n != 2 {
		t.Errorf("backend logins = %d, want 2", n)
	}
}

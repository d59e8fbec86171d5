package ratelimit

import (
	"context"
	"testing"
	"time"
)

var testWindows = Windows{
	Burst:       3,
	BurstWindow: 10 * time.Second,
	PerMinute:   5,
	PerHour:     100,
}

func TestMemoryLimiter_AdmitsUpToLimit(t *testing.T) {
	l := NewMemoryLimiter()
	now := time.Unix(1_700_000_000, 0)

	// Burst is the tightest window here.
	for i := 0; i < testWindows.Burst; i++ {
		result, err := l.Allow(context.Background(), "user:1", testWindows, now)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !result.Allowed {
			t.Fatalf("request %d should be admitted", i)
		}
	}

	result, err := l.Allow(context.Background(), "user:1", testWindows, now)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if result.Allowed {
		t.Fatal("request over burst limit should be rejected")
	}
	if result.Window != WindowBurst {
		t.Fatalf("expected burst window rejection, got %q", result.Window)
	}
	if result.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %d", result.RetryAfter)
	}
	if result.Remaining != 0 {
		t.Fatalf("expected remaining=0 on rejection, got %d", result.Remaining)
	}
}

func TestMemoryLimiter_MinuteWindow(t *testing.T) {
	l := NewMemoryLimiter()
	windows := Windows{PerMinute: 2, PerHour: 100, Burst: 100, BurstWindow: 10 * time.Second}
	base := time.Unix(1_700_000_000, 0).Truncate(time.Minute)

	for i := 0; i < 2; i++ {
		// Spread within the same minute; burst window rolls over in between.
		result, _ := l.Allow(context.Background(), "user:2", windows, base.Add(time.Duration(i)*20*time.Second))
		if !result.Allowed {
			t.Fatalf("request %d should be admitted", i)
		}
	}
	result, _ := l.Allow(context.Background(), "user:2", windows, base.Add(40*time.Second))
	if result.Allowed {
		t.Fatal("third request in the same minute should be rejected")
	}
	if result.Window != WindowMinute {
		t.Fatalf("expected minute rejection, got %q", result.Window)
	}

	// Crossing the minute boundary resets the counter.
	result, _ = l.Allow(context.Background(), "user:2", windows, base.Add(61*time.Second))
	if !result.Allowed {
		t.Fatal("request in the next minute window should be admitted")
	}
}

func TestMemoryLimiter_RejectionDoesNotIncrement(t *testing.T) {
	l := NewMemoryLimiter()
	windows := Windows{Burst: 1, BurstWindow: 10 * time.Second, PerMinute: 10, PerHour: 10}
	now := time.Unix(1_700_000_000, 0)

	if result, _ := l.Allow(context.Background(), "user:3", windows, now); !result.Allowed {
		t.Fatal("first request should be admitted")
	}
	for i := 0; i < 5; i++ {
		if result, _ := l.Allow(context.Background(), "user:3", windows, now); result.Allowed {
			t.Fatal("burst-limited request should be rejected")
		}
	}

	// Rejections above must not have consumed minute/hour budget.
	later := now.Add(11 * time.Second)
	result, _ := l.Allow(context.Background(), "user:3", windows, later)
	if !result.Allowed {
		t.Fatal("request after burst expiry should be admitted")
	}
	if result.Remaining > 8 {
		t.Fatalf("expected minute budget consumed by exactly two admissions, remaining=%d", result.Remaining)
	}
}

func TestMemoryLimiter_IndependentClients(t *testing.T) {
	l := NewMemoryLimiter()
	windows := Windows{Burst: 1, BurstWindow: 10 * time.Second, PerMinute: 10, PerHour: 10}
	now := time.Unix(1_700_000_000, 0)

	if result, _ := l.Allow(context.Background(), "user:a", windows, now); !result.Allowed {
		t.Fatal("first client should be admitted")
	}
	if result, _ := l.Allow(context.Background(), "user:b", windows, now); !result.Allowed {
		t.Fatal("second client must have an independent counter")
	}
}

func TestClientKey(t *testing.T) {
	if got := ClientKey("org-42", "1.2.3.4"); got != "user:org-42" {
		t.Fatalf("authenticated id must take precedence, got %q", got)
	}
	anon := ClientKey("", "1.2.3.4")
	if anon == "" || anon == "ip:1.2.3.4" {
		t.Fatalf("expected hashed ip key, got %q", anon)
	}
	if len(anon) != len("ip:")+ipHashLength {
		t.Fatalf("unexpected key length: %q", anon)
	}
	if ClientKey("", "1.2.3.4") != anon {
		t.Fatal("ip hashing must be deterministic")
	}
	if ClientKey("", "4.3.2.1") == anon {
		t.Fatal("different ips must hash to different keys")
	}
	if ClientKey("", "") != "" {
		t.Fatal("empty identity must produce empty key")
	}
}

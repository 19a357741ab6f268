package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestKeySet(url string, clock func() time.Time) *remoteKeySet {
	return &remoteKeySet{
		url:        url,
		client:     &http.Client{Timeout: 5 * time.Second},
		clock:      clock,
		defaultTTL: time.Minute,
		logger:     zap.NewNop(),
	}
}

func TestRemoteKeySetRefetchesAfterExpiry(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	var requests int32
	server := newJWKSServer(t, privateKey, &requests)

	now := time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)
	keys := newTestKeySet(server.URL, func() time.Time { return now })

	for range 3 {
		if _, err := keys.publicKey(context.Background(), "test-key"); err != nil {
			t.Fatalf("unexpected lookup error: %v", err)
		}
	}
	if got := atomic.LoadInt32(&requests); got != 1 {
		t.Fatalf("expected one fetch while fresh, got %d", got)
	}

	now = now.Add(2 * time.Minute)
	if _, err := keys.publicKey(context.Background(), "test-key"); err != nil {
		t.Fatalf("unexpected lookup error after expiry: %v", err)
	}
	if got := atomic.LoadInt32(&requests); got != 2 {
		t.Fatalf("expected a refetch after expiry, got %d fetches", got)
	}
}

func TestRemoteKeySetUnknownKeyID(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	server := newJWKSServer(t, privateKey, nil)
	keys := newTestKeySet(server.URL, time.Now)

	if _, err := keys.publicKey(context.Background(), "rotated-away"); !errors.Is(err, errKeyNotFound) {
		t.Fatalf("expected key not found, got %v", err)
	}
}

func TestRemoteKeySetConcurrentLookups(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	var requests int32
	server := newJWKSServer(t, privateKey, &requests)
	keys := newTestKeySet(server.URL, time.Now)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := keys.publicKey(context.Background(), "test-key"); err != nil {
				t.Errorf("unexpected lookup error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&requests); got < 1 || got > 8 {
		t.Fatalf("unexpected fetch count %d", got)
	}
}

func TestMaxAge(t *testing.T) {
	cases := []struct {
		header   string
		expected time.Duration
	}{
		{header: "", expected: time.Minute},
		{header: "public, max-age=21600, must-revalidate", expected: 6 * time.Hour},
		{header: "no-cache", expected: time.Minute},
		{header: "max-age=abc", expected: time.Minute},
		{header: "Max-Age=30", expected: 30 * time.Second},
	}
	for _, testCase := range cases {
		if got := maxAge(testCase.header, time.Minute); got != testCase.expected {
			t.Fatalf("header %q: expected %s, got %s", testCase.header, testCase.expected, got)
		}
	}
}

func TestDecodeRSAPublicKeyRejectsBadInput(t *testing.T) {
	if _, err := decodeRSAPublicKey("", "AQAB"); err == nil {
		t.Fatal("expected empty modulus to be rejected")
	}
	if _, err := decodeRSAPublicKey("AQAB", "!!"); err == nil {
		t.Fatal("expected malformed exponent to be rejected")
	}
	key, err := decodeRSAPublicKey("AQAB", "AQAB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.E != 65537 {
		t.Fatalf("expected exponent 65537, got %d", key.E)
	}
}

func TestRemoteKeySetThrottlesUnknownKeyRefetch(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	var requests int32
	server := newJWKSServer(t, privateKey, &requests)

	now := time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)
	keys := newTestKeySet(server.URL, func() time.Time { return now })
	keys.defaultTTL = time.Hour

	for _, keyID := range []string{"forged-1", "forged-2", "forged-3"} {
		if _, err := keys.publicKey(context.Background(), keyID); !errors.Is(err, errKeyNotFound) {
			t.Fatalf("kid %s: expected key not found, got %v", keyID, err)
		}
	}
	if got := atomic.LoadInt32(&requests); got != 1 {
		t.Fatalf("expected unknown kids to share one fetch, got %d", got)
	}

	now = now.Add(minKeyMissRefetch + time.Second)
	if _, err := keys.publicKey(context.Background(), "forged-4"); !errors.Is(err, errKeyNotFound) {
		t.Fatalf("expected key not found, got %v", err)
	}
	if got := atomic.LoadInt32(&requests); got != 2 {
		t.Fatalf("expected a refetch once the gap elapsed, got %d", got)
	}

	if _, err := keys.publicKey(context.Background(), "test-key"); err != nil {
		t.Fatalf("known kid should still resolve: %v", err)
	}
}

func TestRemoteKeySetRefreshIgnoresCanceledCaller(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	server := newJWKSServer(t, privateKey, nil)
	keys := newTestKeySet(server.URL, time.Now)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := keys.publicKey(ctx, "test-key"); err != nil {
		t.Fatalf("expected fetch to complete for a canceled caller, got %v", err)
	}
}

package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// minKeyMissRefetch is the shortest gap between fetches triggered by unknown kids.
	minKeyMissRefetch = 30 * time.Second
	jwksFetchTimeout  = 10 * time.Second
)

var (
	errKeyNotFound  = errors.New("signing key not found in JWKS")
	errNoUsableKeys = errors.New("jwks document contained no usable keys")
)

// remoteKeySet holds the RSA signing keys published at a JWKS endpoint.
// Keys are refetched once they go stale, or when an unknown kid shows up and
// the last fetch is older than minKeyMissRefetch. Concurrent refetches
// collapse into one request that outlives the caller that started it.
type remoteKeySet struct {
	url        string
	client     *http.Client
	clock      func() time.Time
	defaultTTL time.Duration
	logger     *zap.Logger

	refreshes singleflight.Group

	mu         sync.RWMutex
	keys       map[string]*rsa.PublicKey
	fetchedAt  time.Time
	validUntil time.Time
}

func (s *remoteKeySet) publicKey(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	key, fresh := s.cached(keyID)
	if key != nil && fresh {
		return key, nil
	}
	if key == nil && fresh && s.fetchedRecently() {
		return nil, errKeyNotFound
	}

	_, err, _ := s.refreshes.Do(s.url, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jwksFetchTimeout)
		defer cancel()
		return nil, s.refresh(fetchCtx)
	})
	if err != nil {
		return nil, err
	}

	if key, _ := s.cached(keyID); key != nil {
		return key, nil
	}
	return nil, errKeyNotFound
}

func (s *remoteKeySet) cached(keyID string) (*rsa.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[keyID], s.clock().Before(s.validUntil)
}

func (s *remoteKeySet) fetchedRecently() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock().Sub(s.fetchedAt) < minKeyMissRefetch
}

func (s *remoteKeySet) refresh(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return err
	}
	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("jwks fetch: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks fetch: unexpected status %d", response.StatusCode)
	}

	var document struct {
		Keys []struct {
			KeyType string `json:"kty"`
			KeyID   string `json:"kid"`
			Use     string `json:"use"`
			N       string `json:"n"`
			E       string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(response.Body).Decode(&document); err != nil {
		return fmt.Errorf("jwks decode: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(document.Keys))
	for _, entry := range document.Keys {
		if entry.KeyType != "RSA" || entry.KeyID == "" || (entry.Use != "" && entry.Use != "sig") {
			continue
		}
		key, err := decodeRSAPublicKey(entry.N, entry.E)
		if err != nil {
			s.logger.Debug("jwk skipped", zap.String("kid", entry.KeyID), zap.Error(err))
			continue
		}
		keys[entry.KeyID] = key
	}
	if len(keys) == 0 {
		return errNoUsableKeys
	}

	ttl := maxAge(response.Header.Get("Cache-Control"), s.defaultTTL)
	now := s.clock()
	s.mu.Lock()
	s.keys = keys
	s.fetchedAt = now
	s.validUntil = now.Add(ttl)
	s.mu.Unlock()
	return nil
}

// maxAge reads max-age from a Cache-Control header, falling back when absent.
func maxAge(header string, fallback time.Duration) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(name, "max-age") {
			continue
		}
		seconds, err := strconv.Atoi(value)
		if err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func decodeRSAPublicKey(modulus, exponent string) (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(modulus)
	if err != nil || len(n) == 0 {
		return nil, fmt.Errorf("modulus: %w", errors.Join(err, errors.New("invalid encoding")))
	}
	e, err := base64.RawURLEncoding.DecodeString(exponent)
	if err != nil || len(e) == 0 {
		return nil, fmt.Errorf("exponent: %w", errors.Join(err, errors.New("invalid encoding")))
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

package auth

import (
	"context"
	"crypto"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/bookings-auth/internal/testutil/idp"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// testNow is the fixed instant tests verify tokens at.
var testNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubFetcher serves a replaceable key set from memory and counts fetches.
type stubFetcher struct {
	mu      sync.Mutex
	entries []SigningKeyEntry
	err     error
	calls   atomic.Int64
}

func newStubFetcher(keys ...*idp.Key) *stubFetcher {
	f := &stubFetcher{}
	f.publish(keys...)
	return f
}

func (f *stubFetcher) Fetch(_ context.Context) ([]SigningKeyEntry, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]SigningKeyEntry(nil), f.entries...), nil
}

func (f *stubFetcher) publish(keys ...*idp.Key) {
	f.setEntries(entriesFor(keys...)...)
}

func (f *stubFetcher) setEntries(entries ...SigningKeyEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = entries
	f.err = nil
}

func (f *stubFetcher) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *stubFetcher) fetches() int { return int(f.calls.Load()) }

func entriesFor(keys ...*idp.Key) []SigningKeyEntry {
	entries := make([]SigningKeyEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, SigningKeyEntry{KID: k.KID, X5C: []string{k.Certificate()}})
	}
	return entries
}

// newTestVerifier returns a verifier backed by a cache over an in-memory
// fetcher publishing keys, with the clock fixed at testNow.
func newTestVerifier(t *testing.T, keys ...*idp.Key) (*TokenVerifier, *stubFetcher) {
	t.Helper()
	fetcher := newStubFetcher(keys...)
	cache := NewKeySetCache(fetcher, WithCacheLogger(discardLogger()))
	return NewTokenVerifier(cache, WithClock(fixedClock)), fetcher
}

// stubVerifier returns a fixed result and records the tokens it was given.
type stubVerifier struct {
	identity Identity
	err      error

	mu     sync.Mutex
	tokens []string
}

func (v *stubVerifier) Verify(_ context.Context, token string) (Identity, error) {
	v.mu.Lock()
	v.tokens = append(v.tokens, token)
	v.mu.Unlock()
	if v.err != nil {
		return nil, v.err
	}
	return v.identity, nil
}

func (v *stubVerifier) calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.tokens...)
}

// assertSameKey asserts got is the same public key as want.
func assertSameKey(t *testing.T, want, got crypto.PublicKey) {
	t.Helper()
	eq, ok := want.(interface{ Equal(crypto.PublicKey) bool })
	require.True(t, ok, "%T has no Equal method", want)
	assert.True(t, eq.Equal(got), "public keys differ")
}

package auth

import (
	"context"
	"crypto"
	"log/slog"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	sserr "github.com/StricklySoft/bookings-auth/pkg/errors"
)

// refreshKey is the singleflight key shared by all refreshes of one cache.
const refreshKey = "refresh"

// keyGeneration is one immutable snapshot of the published key set.
type keyGeneration struct {
	keys      map[string]crypto.PublicKey
	fetchedAt time.Time
}

// KeySetCache maps key identifiers to public keys and refreshes itself from
// a [KeySetFetcher] when asked for a kid it does not hold.
//
// Each refresh builds a new generation and swaps it in whole, so a reader
// sees either the previous key set or the new one, never a mix, and kids
// dropped by the provider disappear. Concurrent refreshes are coalesced into
// a single fetch.
//
// KeySetCache is safe for concurrent use by multiple goroutines. Create one
// per process and share it.
type KeySetCache struct {
	fetcher KeySetFetcher
	current atomic.Pointer[keyGeneration]
	group   singleflight.Group

	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// CacheOption configures a [KeySetCache].
type CacheOption func(*KeySetCache)

// WithCacheLogger sets the logger. The default is [slog.Default].
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *KeySetCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCacheMetrics records refresh outcomes and key counts on m.
func WithCacheMetrics(m *Metrics) CacheOption {
	return func(c *KeySetCache) { c.metrics = m }
}

// NewKeySetCache creates an empty cache backed by fetcher. The first
// Resolve triggers the first fetch unless [KeySetCache.Prime] is called.
func NewKeySetCache(fetcher KeySetFetcher, opts ...CacheOption) *KeySetCache {
	c := &KeySetCache{
		fetcher: fetcher,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.current.Store(&keyGeneration{keys: map[string]crypto.PublicKey{}})
	return c
}

// Resolve returns the public key for kid. A cached kid is answered without
// I/O. An unknown kid triggers one refresh and one more lookup; if the kid
// is still absent, Resolve returns an error with code
// [sserr.CodeUnknownSigningKey]. A failed refresh is logged by the cache
// and surfaces the same way, with the fetch error as cause.
func (c *KeySetCache) Resolve(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if kid == "" {
		return nil, sserr.New(sserr.CodeUnknownSigningKey, "token has no key identifier")
	}
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}

	refreshErr := c.Refresh(ctx)
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}

	if refreshErr != nil {
		return nil, sserr.Wrapf(refreshErr, sserr.CodeUnknownSigningKey,
			"signing key %q unavailable", kid).WithDetail("kid", kid)
	}
	return nil, sserr.Newf(sserr.CodeUnknownSigningKey,
		"signing key %q not published by the key provider", kid).WithDetail("kid", kid)
}

// Refresh fetches the key set and replaces the current generation. On
// failure the previous generation stays in place and the error carries code
// [sserr.CodeUnavailableKeyProvider]. Callers arriving while a refresh is
// in flight wait for it instead of starting another. The fetch itself is
// not cancelled when ctx is; ctx only bounds how long this caller waits.
func (c *KeySetCache) Refresh(ctx context.Context) error {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return nil, c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return sserr.Wrap(ctx.Err(), sserr.CodeTimeout, "gave up waiting for key set refresh")
	}
}

// Prime performs an initial refresh so the first requests do not pay for
// the fetch. Failure is logged and returned; the cache still works and will
// retry on the first unknown kid.
func (c *KeySetCache) Prime(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		c.logger.WarnContext(ctx, "auth: key set warm-up failed, will fetch on first request",
			"error", err)
		return err
	}
	return nil
}

// Keys returns a copy of the current generation.
func (c *KeySetCache) Keys() map[string]crypto.PublicKey {
	return maps.Clone(c.current.Load().keys)
}

// KeyIDs returns the kids of the current generation in sorted order.
func (c *KeySetCache) KeyIDs() []string {
	return slices.Sorted(maps.Keys(c.current.Load().keys))
}

// LastRefresh returns when the current generation was fetched, or the zero
// time if no refresh has succeeded.
func (c *KeySetCache) LastRefresh() time.Time {
	return c.current.Load().fetchedAt
}

func (c *KeySetCache) lookup(kid string) (crypto.PublicKey, bool) {
	key, ok := c.current.Load().keys[kid]
	return key, ok
}

// refresh runs one fetch and swap. Only one runs at a time per cache.
func (c *KeySetCache) refresh(ctx context.Context) (err error) {
	ctx, span := startSpan(ctx, c.tracer, "auth.RefreshKeySet")
	start := time.Now()
	keyCount := 0
	defer func() {
		c.metrics.observeRefresh(err, keyCount, time.Since(start))
		finishSpan(span, err)
		span.End()
	}()

	entries, err := c.fetcher.Fetch(ctx)
	if err != nil {
		if _, ok := sserr.AsError(err); !ok {
			err = sserr.Wrap(err, sserr.CodeUnavailableKeyProvider, "key set fetch failed")
		}
		c.logger.WarnContext(ctx, "auth: key provider unreachable, keeping previous key set",
			"error", err,
			"cached_keys", len(c.current.Load().keys),
		)
		return err
	}

	keys := make(map[string]crypto.PublicKey, len(entries))
	for _, entry := range entries {
		if entry.KID == "" || len(entry.X5C) == 0 {
			c.logger.WarnContext(ctx, "auth: skipping key set entry without kid or certificate",
				"kid", entry.KID)
			continue
		}
		if _, dup := keys[entry.KID]; dup {
			c.logger.WarnContext(ctx, "auth: skipping duplicate key set entry", "kid", entry.KID)
			continue
		}
		pub, decodeErr := DecodeCertificate(entry.X5C[0])
		if decodeErr != nil {
			c.logger.WarnContext(ctx, "auth: skipping undecodable signing certificate",
				"kid", entry.KID,
				"error", decodeErr,
			)
			continue
		}
		keys[entry.KID] = pub
	}

	c.current.Store(&keyGeneration{keys: keys, fetchedAt: c.now()})
	keyCount = len(keys)

	span.SetAttributes(attribute.Int("auth.keys", keyCount))
	c.logger.InfoContext(ctx, "auth: signing key set refreshed",
		"keys", keyCount,
		"published", len(entries),
	)
	return nil
}

package espn

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/cache"
	"github.com/fortuna/pythia/internal/logging"
)

const (
	staticRefTTL = 6 * time.Hour
	liveRefTTL   = 10 * time.Minute
)

// Resolver follows core API $ref links, caching each response.
type Resolver struct {
	client *Client
	cache  cache.Store
	logger *zap.SugaredLogger
}

// NewResolver creates a resolver. A nil store caches in process.
func NewResolver(client *Client, store cache.Store, logger *zap.Logger) *Resolver {
	if store == nil {
		store = cache.NewMemoryCache()
	}
	return &Resolver{
		client: client,
		cache:  store,
		logger: logging.OrNop(logger).Named("espn-resolver").Sugar(),
	}
}

// Resolve returns v itself when it is an object without $ref, the fetched
// object when it carries one, and nil when the link is missing or broken.
func (r *Resolver) Resolve(ctx context.Context, v interface{}) map[string]interface{} {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	ref := extractString(obj, "$ref")
	if ref == "" {
		return obj
	}
	out, err := r.Fetch(ctx, ref)
	if err != nil {
		r.logger.Warnf("⚠️  unresolved $ref %s: %v", ref, err)
		return nil
	}
	return out
}

// Fetch loads a $ref URL through the cache.
func (r *Resolver) Fetch(ctx context.Context, ref string) (map[string]interface{}, error) {
	ref = secureRef(ref)
	key := "espn:ref:" + ref

	var out map[string]interface{}
	if found, err := cache.GetJSON(ctx, r.cache, key, &out); err == nil && found {
		return out, nil
	} else if err != nil {
		r.logger.Debugf("cache read %s: %v", key, err)
	}

	out, err := r.client.GetJSON(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, r.cache, key, out, refTTL(ref)); err != nil {
		r.logger.Debugf("cache write %s: %v", key, err)
	}
	return out, nil
}

// refTTL keeps slow-changing objects (teams, venues) longer than lines and crews.
func refTTL(ref string) time.Duration {
	path := ref
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	switch {
	case strings.Contains(path, "/odds"),
		strings.Contains(path, "/officials"),
		strings.Contains(path, "/status"),
		strings.Contains(path, "/score"):
		return liveRefTTL
	case strings.Contains(path, "/teams/"),
		strings.Contains(path, "/venues/"):
		return staticRefTTL
	}
	return liveRefTTL
}

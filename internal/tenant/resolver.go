package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"portal-data/internal/domain"
	"portal-data/internal/store"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var ErrUnknownTenant = errors.New("unknown tenant")

// Resolver maps a request subdomain to its tenant descriptor.
type Resolver interface {
	ResolveSubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error)
}

// PostgresResolver reads the platform-level tenants table (not row-level secured).
type PostgresResolver struct {
	db *sqlx.DB
}

func NewPostgresResolver(db *sqlx.DB) *PostgresResolver {
	return &PostgresResolver{db: db}
}

type tenantRow struct {
	ID                 string    `db:"id"`
	Subdomain          string    `db:"subdomain"`
	Name               string    `db:"name"`
	ConsciousnessLevel float64   `db:"consciousness_level"`
	FeatureFlags       []byte    `db:"feature_flags"`
	CreatedAt          time.Time `db:"created_at"`
}

func (r *PostgresResolver) ResolveSubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error) {
	var row tenantRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id::text AS id, subdomain, name, consciousness_level, feature_flags, created_at
		 FROM tenants WHERE subdomain = $1`, strings.ToLower(subdomain))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, subdomain)
		}
		return nil, fmt.Errorf("failed to resolve tenant: %w", err)
	}

	t := &domain.Tenant{
		ID:                 row.ID,
		Subdomain:          row.Subdomain,
		Name:               row.Name,
		ConsciousnessLevel: row.ConsciousnessLevel,
		CreatedAt:          row.CreatedAt,
	}
	if len(row.FeatureFlags) > 0 {
		if err := json.Unmarshal(row.FeatureFlags, &t.FeatureFlags); err != nil {
			return nil, fmt.Errorf("failed to decode feature_flags: %w", err)
		}
	}
	return t, nil
}

// MemoryResolver serves tenants registered in process (mock data source, tests).
type MemoryResolver struct {
	mu      sync.RWMutex
	tenants map[string]domain.Tenant // subdomain -> tenant
}

func NewMemoryResolver(tenants ...domain.Tenant) *MemoryResolver {
	r := &MemoryResolver{tenants: map[string]domain.Tenant{}}
	for _, t := range tenants {
		r.Put(t)
	}
	return r
}

func (r *MemoryResolver) Put(t domain.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[strings.ToLower(t.Subdomain)] = t
}

func (r *MemoryResolver) ResolveSubdomain(_ context.Context, subdomain string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[strings.ToLower(subdomain)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, subdomain)
	}
	return &t, nil
}

// CachedResolver keeps resolved descriptors in a KV store. Unknown subdomains
// are not cached.
type CachedResolver struct {
	next   Resolver
	kv     store.KV
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedResolver(next Resolver, kv store.KV, ttl time.Duration, logger *zap.Logger) *CachedResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedResolver{next: next, kv: kv, ttl: ttl, logger: logger}
}

func cacheKey(subdomain string) string {
	return "portal:tenant:" + strings.ToLower(subdomain)
}

func (r *CachedResolver) ResolveSubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error) {
	key := cacheKey(subdomain)
	if raw, err := r.kv.Get(ctx, key); err == nil {
		var t domain.Tenant
		if err := json.Unmarshal([]byte(raw), &t); err == nil && t.Valid() {
			return &t, nil
		}
		r.logger.Warn("dropping corrupt tenant cache entry", zap.String("key", key))
	} else if !errors.Is(err, store.ErrMiss) {
		r.logger.Warn("tenant cache read failed", zap.String("key", key), zap.Error(err))
	}

	t, err := r.next.ResolveSubdomain(ctx, subdomain)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(t); err == nil {
		if err := r.kv.Set(ctx, key, string(b), r.ttl); err != nil {
			r.logger.Warn("tenant cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return t, nil
}

// Invalidate drops a cached descriptor, e.g. after feature flags change.
func (r *CachedResolver) Invalidate(ctx context.Context, subdomain string) error {
	return r.kv.Del(ctx, cacheKey(subdomain))
}

// SubdomainFromHost extracts the tenant label from a request host. With a base
// domain the host must be exactly <label>.<base>; without one the first label
// of a host with at least three labels is used.
func SubdomainFromHost(host, baseDomain string) (string, bool) {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	host = strings.TrimSuffix(host, ".")
	baseDomain = strings.ToLower(strings.Trim(baseDomain, ". "))

	if baseDomain != "" {
		suffix := "." + baseDomain
		if !strings.HasSuffix(host, suffix) {
			return "", false
		}
		label := strings.TrimSuffix(host, suffix)
		if label == "" || strings.Contains(label, ".") {
			return "", false
		}
		return label, true
	}

	labels := strings.Split(host, ".")
	if len(labels) < 3 || labels[0] == "" || labels[0] == "www" {
		return "", false
	}
	return labels[0], true
}

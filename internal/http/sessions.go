package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"portal-data/internal/dataset"
	"portal-data/internal/events"
	"portal-data/internal/query"
	"portal-data/internal/tenant"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// HeaderTenantSubdomain overrides the Host based tenant lookup.
const HeaderTenantSubdomain = "X-Tenant-Subdomain"

// Sessions keeps one Surface per tenant subdomain. A surface is created and
// loaded on the first request for its tenant, and resolved again once it is
// older than ttl or blocked by a failed isolation check.
type Sessions struct {
	store      query.Store
	checker    tenant.IsolationChecker
	resolver   tenant.Resolver
	publisher  events.Publisher
	baseDomain string
	ttl        time.Duration
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.RWMutex
	surfaces map[string]session
	group    singleflight.Group
}

type session struct {
	surface *dataset.Surface
	opened  time.Time
}

// NewSessions returns an empty session table. A ttl of zero keeps healthy
// sessions until they are dropped.
func NewSessions(store query.Store, checker tenant.IsolationChecker, resolver tenant.Resolver,
	publisher events.Publisher, baseDomain string, ttl time.Duration, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{
		store:      store,
		checker:    checker,
		resolver:   resolver,
		publisher:  publisher,
		baseDomain: baseDomain,
		ttl:        ttl,
		logger:     logger,
		now:        time.Now,
		surfaces:   map[string]session{},
	}
}

// SubdomainOf returns the tenant subdomain a request addresses.
func (s *Sessions) SubdomainOf(r *http.Request) (string, bool) {
	if sub := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderTenantSubdomain))); sub != "" {
		return sub, true
	}
	return tenant.SubdomainFromHost(r.Host, s.baseDomain)
}

// Get returns the surface for the request's tenant, resolving and loading it
// on first use and whenever the cached session is stale. Unknown subdomains
// are not remembered.
func (s *Sessions) Get(ctx context.Context, r *http.Request) (*dataset.Surface, error) {
	sub, ok := s.SubdomainOf(r)
	if !ok {
		return nil, query.ErrTenantNotResolved
	}

	if sess, ok := s.lookup(sub); ok && s.fresh(sess) {
		return sess.surface, nil
	}

	v, err, _ := s.group.Do(sub, func() (any, error) {
		prev, reopen := s.lookup(sub)
		if reopen && s.fresh(prev) {
			return prev.surface, nil
		}

		logger := s.logger.With(zap.String("subdomain", sub))
		surface, err := s.open(ctx, sub, logger)
		if err != nil {
			if reopen {
				s.Drop(sub)
				logger.Info("tenant session closed", zap.Error(err))
			}
			return nil, err
		}

		s.mu.Lock()
		s.surfaces[sub] = session{surface: surface, opened: s.now()}
		s.mu.Unlock()
		if reopen {
			logger.Info("tenant session re-resolved",
				zap.String("tenant_id", surface.Tenant().CurrentTenant().ID),
				zap.Bool("was_blocked", prev.surface.Tenant().Blocked()))
		} else {
			logger.Info("tenant session opened", zap.String("tenant_id", surface.Tenant().CurrentTenant().ID))
		}
		return surface, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*dataset.Surface), nil
}

func (s *Sessions) lookup(sub string) (session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.surfaces[sub]
	return sess, ok
}

// fresh reports whether sess can be served without resolving its tenant again.
func (s *Sessions) fresh(sess session) bool {
	if sess.surface.Tenant().Blocked() {
		return false
	}
	return s.ttl <= 0 || s.now().Sub(sess.opened) < s.ttl
}

// open resolves sub into a new surface and loads it.
func (s *Sessions) open(ctx context.Context, sub string, logger *zap.Logger) (*dataset.Surface, error) {
	surface := dataset.New(tenant.NewContext(s.store, s.checker, logger), s.publisher, logger)
	err := surface.ResolveAndLoad(ctx, s.resolver, sub)
	if surface.Tenant().CurrentTenant() == nil {
		if err == nil {
			err = query.ErrTenantNotResolved
		}
		return nil, err
	}
	if err != nil {
		// partial loads and blocked sessions are kept; the view reports them
		var agg *dataset.AggregateError
		if !errors.As(err, &agg) && !errors.Is(err, query.ErrIsolationCheckFailed) {
			logger.Warn("initial load failed", zap.Error(err))
		}
	}
	return surface, nil
}

// Drop forgets the session of sub, so the next request resolves it again.
func (s *Sessions) Drop(sub string) {
	s.mu.Lock()
	delete(s.surfaces, strings.ToLower(sub))
	s.mu.Unlock()
}

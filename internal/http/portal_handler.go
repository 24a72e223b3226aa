package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"portal-data/internal/dataset"
	"portal-data/internal/deploy"
	"portal-data/internal/export"
	"portal-data/internal/query"

	"go.uber.org/zap"
)

// BundlePublisher lists a tenant bundle on the template marketplace.
type BundlePublisher interface {
	Publish(ctx context.Context, b deploy.Bundle) (*deploy.Listing, error)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// PortalHandler serves the consumption surface of the tenant addressed by
// each request.
type PortalHandler struct {
	sessions  *Sessions
	publisher BundlePublisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewPortalHandler(sessions *Sessions, publisher BundlePublisher, logger *zap.Logger) *PortalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PortalHandler{
		sessions:  sessions,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (p *PortalHandler) surface(w http.ResponseWriter, r *http.Request) (*dataset.Surface, bool) {
	s, err := p.sessions.Get(r.Context(), r)
	if err != nil {
		p.fail(w, r, err)
		return nil, false
	}
	return s, true
}

func (p *PortalHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		p.logger.Error("portal request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		p.logger.Debug("portal request rejected",
			zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeError(w, err)
}

// written answers a write. A RefetchError means the write is stored, so it is
// answered with status and a warning; repeating the request would apply it twice.
func written[T any](p *PortalHandler, w http.ResponseWriter, r *http.Request, status int, out T, err error) {
	var re *dataset.RefetchError
	switch {
	case err == nil:
		writeJSON(w, status, Ok(out))
	case errors.As(err, &re):
		p.logger.Warn("write stored but reload failed",
			zap.String("path", r.URL.Path), zap.String("family", string(re.Family)), zap.Error(re.Err))
		writeJSON(w, status, Warn(out, re.Error()))
	default:
		p.fail(w, r, err)
	}
}

// GetSurface returns the current view. ?refresh=true reloads every family first.
func (p *PortalHandler) GetSurface(w http.ResponseWriter, r *http.Request) {
	s, ok := p.surface(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("refresh") == "true" {
		var agg *dataset.AggregateError
		if err := s.Load(r.Context()); err != nil && !errors.As(err, &agg) {
			p.fail(w, r, err)
			return
		}
	}
	v := s.View()
	if v.Blocked {
		writeJSON(w, http.StatusForbidden, Result[dataset.View]{
			Code: ResultError, Type: "error", Message: v.Error, Result: v,
		})
		return
	}
	writeJSON(w, http.StatusOK, Ok(v))
}

func (p *PortalHandler) Refetch(w http.ResponseWriter, r *http.Request, family dataset.Family) {
	s, ok := p.surface(w, r)
	if !ok {
		return
	}
	if err := s.RefetchFamily(r.Context(), family); err != nil {
		p.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(s.View()))
}

func (p *PortalHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	s, ok := p.surface(w, r)
	if !ok {
		return
	}
	orders, err := s.FetchOrders(r.Context())
	if err != nil {
		p.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(orders))
}

func (p *PortalHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := p.surface(w, r)
	if !ok {
		return
	}
	var in dataset.OrderInput
	if err := readBodyJSON(r, maxBodyBytes, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
		return
	}
	order, err := s.CreateOrder(r.Context(), in)
	written(p, w, r, http.StatusCreated, order, err)
}

func (p *PortalHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := p.surface(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil || body.Status == "" {
		writeJSON(w, http.StatusBadRequest, Fail("status is required"))
		return
	}
	order, err := s.UpdateOrderStatus(r.Context(), id, body.Status)
	written(p, w, r, http.StatusOK, order, err)
}

func (p *PortalHandler) DeleteOrder(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := p.surface(w, r)
	if !ok {
		return
	}
	err := s.DeleteOrder(r.Context(), id)
	written[any](p, w, r, http.StatusOK, nil, err)
}

func (p *PortalHandler) AdjustInventory(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := p.surface(w, r)
	if !ok {
		return
	}
	var body struct {
		Delta int64 `json:"delta"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
		return
	}
	batch, err := s.AdjustInventory(r.Context(), id, body.Delta)
	written(p, w, r, http.StatusOK, batch, err)
}

// Export streams the orders or inventory workbook of the tenant.
func (p *PortalHandler) Export(w http.ResponseWriter, r *http.Request, kind string) {
	if kind != "orders" && kind != "inventory" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s, ok := p.surface(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	products, err := s.FetchProducts(ctx)
	if err != nil {
		p.fail(w, r, err)
		return
	}
	names := export.ProductNames(products)

	var data []byte
	switch kind {
	case "orders":
		orders, ferr := s.FetchOrders(ctx)
		if ferr != nil {
			p.fail(w, r, ferr)
			return
		}
		data, err = export.OrdersWorkbook(orders, names)
	default:
		batches, ferr := s.FetchInventoryBatches(ctx)
		if ferr != nil {
			p.fail(w, r, ferr)
			return
		}
		data, err = export.InventoryWorkbook(batches, names)
	}
	if err != nil {
		p.fail(w, r, err)
		return
	}

	t := s.Tenant().CurrentTenant()
	filename := fmt.Sprintf("%s_%s_%s.xlsx", t.Subdomain, kind, p.now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Deploy packages the tenant configuration and lists it on the marketplace.
func (p *PortalHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	s, ok := p.surface(w, r)
	if !ok {
		return
	}
	t := s.Tenant().CurrentTenant()
	if t == nil {
		p.fail(w, r, query.ErrTenantNotResolved)
		return
	}
	if !t.Feature(deploy.FeatureFlag) {
		p.fail(w, r, fmt.Errorf("%w: %s", errForbidden, deploy.FeatureFlag))
		return
	}
	if p.publisher == nil {
		p.fail(w, r, deploy.ErrNotConfigured)
		return
	}

	ctx := r.Context()
	if _, err := s.FetchProducts(ctx); err != nil {
		p.fail(w, r, err)
		return
	}
	if _, err := s.FetchTerritories(ctx); err != nil {
		p.fail(w, r, err)
		return
	}
	bundle := deploy.BuildBundle(*t, s.View(), p.now())
	listing, err := p.publisher.Publish(ctx, bundle)
	if err != nil {
		p.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, Ok(listing))
}

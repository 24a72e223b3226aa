package httpapi

import (
	"context"
	"net/http"
	"strings"

	"portal-data/internal/dataset"
	"portal-data/internal/domain"
	"portal-data/internal/query"

	"go.uber.org/zap"
)

const apiPrefix = "/portal/api/v1"

// Router wraps http.ServeMux.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterPortalRoutes mounts the consumption surface under /portal/api/v1.
func (r *Router) RegisterPortalRoutes(p *PortalHandler) {
	r.Handle(apiPrefix+"/surface", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.GetSurface(w, req)
	})

	r.Handle(apiPrefix+"/refetch/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		family := strings.TrimPrefix(req.URL.Path, apiPrefix+"/refetch/")
		if family == "" || strings.Contains(family, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		p.Refetch(w, req, dataset.Family(family))
	})

	registerFamily(r, p, "products", crud[domain.Product]{
		list:   (*dataset.Surface).FetchProducts,
		create: (*dataset.Surface).CreateProduct,
		update: (*dataset.Surface).UpdateProduct,
		remove: (*dataset.Surface).DeleteProduct,
	})
	registerFamily(r, p, "distributors", crud[domain.Distributor]{
		list:   (*dataset.Surface).FetchDistributors,
		create: (*dataset.Surface).CreateDistributor,
		update: (*dataset.Surface).UpdateDistributor,
		remove: (*dataset.Surface).DeleteDistributor,
	})
	registerFamily(r, p, "territories", crud[domain.Territory]{
		list:   (*dataset.Surface).FetchTerritories,
		create: (*dataset.Surface).CreateTerritory,
		update: (*dataset.Surface).UpdateTerritory,
		remove: (*dataset.Surface).DeleteTerritory,
	})
	registerFamily(r, p, "shipments", crud[domain.Shipment]{
		list:   (*dataset.Surface).FetchShipments,
		create: (*dataset.Surface).CreateShipment,
		update: (*dataset.Surface).UpdateShipment,
		remove: (*dataset.Surface).DeleteShipment,
	})
	registerFamily(r, p, "performance-metrics", crud[domain.PerformanceMetric]{
		list:   (*dataset.Surface).FetchPerformanceMetrics,
		create: (*dataset.Surface).CreateMetric,
	})
	registerFamily(r, p, "inventory-batches", crud[domain.InventoryBatch]{
		list:   (*dataset.Surface).FetchInventoryBatches,
		create: (*dataset.Surface).CreateInventoryBatch,
		update: (*dataset.Surface).UpdateInventoryBatch,
		remove: (*dataset.Surface).DeleteInventoryBatch,
		actions: map[string]action{
			"adjust": {http.MethodPost, p.AdjustInventory},
		},
	})

	// orders take an OrderInput rather than the stored entity
	r.Handle(apiPrefix+"/orders", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			p.ListOrders(w, req)
		case http.MethodPost:
			p.CreateOrder(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle(apiPrefix+"/orders/", itemHandler(apiPrefix+"/orders/", map[string]action{
		"":       {http.MethodDelete, p.DeleteOrder},
		"status": {http.MethodPut, p.UpdateOrderStatus},
	}))

	r.Handle(apiPrefix+"/export/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.Export(w, req, strings.TrimPrefix(req.URL.Path, apiPrefix+"/export/"))
	})

	r.Handle(apiPrefix+"/deployments", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.Deploy(w, req)
	})
}

// action handles /<family>/{id}[/<name>]; an empty method accepts any.
type action struct {
	method string
	fn     func(w http.ResponseWriter, req *http.Request, id string)
}

// itemHandler dispatches /{id} and /{id}/<name> paths below prefix. The
// action keyed "" serves the bare id path.
func itemHandler(prefix string, actions map[string]action) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, prefix)
		id, name, _ := strings.Cut(rest, "/")
		if id == "" || strings.Contains(name, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		a, ok := actions[name]
		if !ok {
			if name == "" {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if a.method != "" && req.Method != a.method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		a.fn(w, req, id)
	}
}

// crud binds the surface operations of one family. Nil operations are not routed.
type crud[T any] struct {
	list    func(*dataset.Surface, context.Context) ([]T, error)
	create  func(*dataset.Surface, context.Context, T) (T, error)
	update  func(*dataset.Surface, context.Context, string, query.Record) (T, error)
	remove  func(*dataset.Surface, context.Context, string) error
	actions map[string]action
}

func registerFamily[T any](r *Router, p *PortalHandler, path string, c crud[T]) {
	base := apiPrefix + "/" + path
	r.Handle(base, func(w http.ResponseWriter, req *http.Request) {
		switch {
		case req.Method == http.MethodGet && c.list != nil:
			s, ok := p.surface(w, req)
			if !ok {
				return
			}
			items, err := c.list(s, req.Context())
			if err != nil {
				p.fail(w, req, err)
				return
			}
			writeJSON(w, http.StatusOK, Ok(items))
		case req.Method == http.MethodPost && c.create != nil:
			s, ok := p.surface(w, req)
			if !ok {
				return
			}
			var in T
			if err := readBodyJSON(req, maxBodyBytes, &in); err != nil {
				writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
				return
			}
			out, err := c.create(s, req.Context(), in)
			written(p, w, req, http.StatusCreated, out, err)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	actions := map[string]action{}
	for name, a := range c.actions {
		actions[name] = a
	}
	if c.update != nil || c.remove != nil {
		actions[""] = action{fn: func(w http.ResponseWriter, req *http.Request, id string) {
			switch {
			case (req.Method == http.MethodPut || req.Method == http.MethodPatch) && c.update != nil:
				s, ok := p.surface(w, req)
				if !ok {
					return
				}
				patch := query.Record{}
				if err := readBodyJSON(req, maxBodyBytes, &patch); err != nil {
					writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
					return
				}
				out, err := c.update(s, req.Context(), id, patch)
				written(p, w, req, http.StatusOK, out, err)
			case req.Method == http.MethodDelete && c.remove != nil:
				s, ok := p.surface(w, req)
				if !ok {
					return
				}
				err := c.remove(s, req.Context(), id)
				written[any](p, w, req, http.StatusOK, nil, err)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		}}
	}
	r.Handle(base+"/", itemHandler(base+"/", actions))
}

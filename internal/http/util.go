package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"portal-data/internal/dataset"
	"portal-data/internal/deploy"
	"portal-data/internal/domain"
	"portal-data/internal/query"
	"portal-data/internal/tenant"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

var errForbidden = errors.New("feature not enabled for tenant")

// statusFor maps data layer errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		ve *domain.ValidationError
		pe *dataset.PartialWriteError
		re *dataset.RefetchError
	)
	switch {
	case errors.As(err, &re):
		// stored; only the reload failed
		return http.StatusAccepted
	case errors.Is(err, query.ErrIsolationCheckFailed), errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, tenant.ErrUnknownTenant), errors.Is(err, dataset.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &pe):
		return http.StatusInternalServerError
	case errors.As(err, &ve),
		errors.Is(err, query.ErrTenantNotResolved),
		errors.Is(err, query.ErrUnknownColumn),
		errors.Is(err, query.ErrTenantColumn),
		errors.Is(err, query.ErrInvalidFilter),
		errors.Is(err, dataset.ErrUnknownFamily):
		return http.StatusBadRequest
	case errors.Is(err, dataset.ErrConflict), errors.Is(err, dataset.ErrStale), query.IsUniqueViolation(err):
		return http.StatusConflict
	case errors.Is(err, deploy.ErrNotConfigured):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), Fail(err.Error()))
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"opsdash/internal/analytics"
	"opsdash/internal/domain"
)

type validator interface {
	Validate() error
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	kind, ok := domain.ParseKind(r.PathValue("kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var (
		rec any
		err error
	)
	switch kind {
	case domain.KindManufacturing:
		rec, err = create(w, r, s.store.CreateManufacturing)
	case domain.KindTesting:
		rec, err = create(w, r, s.store.CreateTesting)
	case domain.KindField:
		rec, err = create(w, r, s.store.CreateField)
	case domain.KindSales:
		rec, err = create(w, r, s.store.CreateSales)
	}
	if err != nil {
		var bad *badRequest
		var invalid *domain.ValidationError
		switch {
		case errors.As(err, &bad):
			writeError(w, http.StatusBadRequest, bad.msg)
		case errors.As(err, &invalid):
			writeError(w, http.StatusBadRequest, invalid.Error())
		default:
			s.log.Error("create record failed", zap.String("kind", string(kind)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.opts.Metrics.RecordCreated(string(kind))
	writeData(w, http.StatusCreated, rec)
}

type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

// create decodes and validates the body before the store sees it.
func create[In validator, Out any](w http.ResponseWriter, r *http.Request, insert func(context.Context, In) (Out, error)) (any, error) {
	var in In
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		return nil, &badRequest{msg: fmt.Sprintf("invalid JSON body: %v", err)}
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return insert(r.Context(), in)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	kind, ok := domain.ParseKind(r.PathValue("kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	limit := domain.MaxListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = domain.ClampLimit(n)
	}

	var (
		rows any
		err  error
	)
	ctx := r.Context()
	switch kind {
	case domain.KindManufacturing:
		rows, err = s.store.ListManufacturing(ctx, limit)
	case domain.KindTesting:
		rows, err = s.store.ListTesting(ctx, limit)
	case domain.KindField:
		rows, err = s.store.ListField(ctx, limit)
	case domain.KindSales:
		rows, err = s.store.ListSales(ctx, limit)
	}
	if err != nil {
		s.log.Error("list records failed", zap.String("kind", string(kind)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusOK, rows)
}

// viewResponse pairs a dashboard view with the values its filters offer.
type viewResponse struct {
	View    any                 `json:"view"`
	Options map[string][]string `json:"options"`
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	kind, ok := domain.ParseKind(r.PathValue("kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	q := r.URL.Query()
	f := analytics.Filter{Now: s.opts.Clock(), Location: s.opts.Location}
	if v := q.Get("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		f.Days = days
	}

	resp, err := s.view(r.Context(), kind, f, q)
	if err != nil {
		s.log.Error("build view failed", zap.String("kind", string(kind)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusOK, resp)
}

func selections(fields []string, q map[string][]string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, name := range fields {
		if vs, ok := q[name]; ok && len(vs) > 0 {
			out[name] = vs[0]
		}
	}
	return out
}

func (s *Server) view(ctx context.Context, kind domain.Kind, f analytics.Filter, q map[string][]string) (viewResponse, error) {
	limit := domain.MaxListLimit
	switch kind {
	case domain.KindManufacturing:
		rows, err := s.store.ListManufacturing(ctx, limit)
		if err != nil {
			return viewResponse{}, err
		}
		f.Selections = selections(analytics.ManufacturingFilterFields(), q)
		return viewResponse{View: analytics.Manufacturing(rows, f), Options: analytics.ManufacturingOptions(rows)}, nil
	case domain.KindTesting:
		rows, err := s.store.ListTesting(ctx, limit)
		if err != nil {
			return viewResponse{}, err
		}
		f.Selections = selections(analytics.TestingFilterFields(), q)
		return viewResponse{View: analytics.Testing(rows, f), Options: analytics.TestingOptions(rows)}, nil
	case domain.KindField:
		rows, err := s.store.ListField(ctx, limit)
		if err != nil {
			return viewResponse{}, err
		}
		f.Selections = selections(analytics.FieldFilterFields(), q)
		return viewResponse{View: analytics.Field(rows, f), Options: analytics.FieldOptions(rows)}, nil
	case domain.KindSales:
		rows, err := s.store.ListSales(ctx, limit)
		if err != nil {
			return viewResponse{}, err
		}
		f.Selections = selections(analytics.SalesFilterFields(), q)
		return viewResponse{View: analytics.Sales(rows, f, s.opts.UnitPrice), Options: analytics.SalesOptions(rows)}, nil
	}
	return viewResponse{}, fmt.Errorf("unknown kind %q", kind)
}

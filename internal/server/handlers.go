package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/competitor-intel/internal/discovery"
	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/store"
)

// reconcileRequest carries the claimed values for one field.
type reconcileRequest struct {
	Sources []model.SourceRecord `json:"sources" validate:"required,dive"`
}

// discoverRequest narrows a discovery run.
type discoverRequest struct {
	Priority  string `json:"priority" validate:"omitempty,oneof=P0 P1 P2 P3 p0 p1 p2 p3"`
	MaxFields int    `json:"max_fields" validate:"gte=0"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(r.Context()); err != nil {
			zap.L().Warn("server: health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Discoverer == nil {
		writeError(w, http.StatusServiceUnavailable, "discovery is not configured")
		return
	}
	rep, err := s.deps.Discoverer.Coverage(r.Context())
	if err != nil {
		zap.L().Error("server: coverage", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "coverage report failed")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// competitor loads the {id} competitor, answering 404 or 500 itself.
func (s *Server) competitor(w http.ResponseWriter, r *http.Request) (*model.Competitor, bool) {
	id := chi.URLParam(r, "id")
	c, err := s.deps.Store.GetCompetitor(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "competitor not found")
		return nil, false
	case err != nil:
		zap.L().Error("server: load competitor", zap.String("entity_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load competitor")
		return nil, false
	}
	return c, true
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	c, ok := s.competitor(w, r)
	if !ok {
		return
	}
	var fields []string
	if raw := r.URL.Query().Get("fields"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
	}
	uc := s.deps.Unified.GetUnifiedContext(r.Context(), c.ID, c.Name, r.URL.Query().Get("query"), fields)
	writeJSON(w, http.StatusOK, uc)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	c, ok := s.competitor(w, r)
	if !ok {
		return
	}
	entries, err := s.deps.Store.ListChangeLog(r.Context(), c.ID)
	if err != nil {
		zap.L().Error("server: list changes", zap.String("entity_id", c.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list changes")
		return
	}
	if entries == nil {
		entries = []model.ChangeLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	field := chi.URLParam(r, "field")

	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for i := range req.Sources {
		if req.Sources[i].Field == "" {
			req.Sources[i].Field = field
		}
		// Missing or unrecognized types rank as unknown rather than failing.
		req.Sources[i].SourceType = model.ParseSourceType(string(req.Sources[i].SourceType))
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	for _, src := range req.Sources {
		if src.Field != field {
			writeError(w, http.StatusBadRequest, "source field does not match path field")
			return
		}
	}
	writeJSON(w, http.StatusOK, s.deps.Reconciler.ReconcileField(id, field, req.Sources))
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if s.deps.Discoverer == nil {
		writeError(w, http.StatusServiceUnavailable, "discovery is not configured")
		return
	}
	c, ok := s.competitor(w, r)
	if !ok {
		return
	}

	var req discoverRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	opts := discovery.Options{MaxFields: req.MaxFields}
	if req.Priority != "" {
		tier, err := model.ParseTier(req.Priority)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.Priority = &tier
	}

	res := s.deps.Discoverer.DiscoverSources(r.Context(), c.ID, opts)
	status := http.StatusOK
	if res.Aborted {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if s.deps.Verifier == nil {
		writeError(w, http.StatusServiceUnavailable, "verification is not configured")
		return
	}
	c, ok := s.competitor(w, r)
	if !ok {
		return
	}
	sum := s.deps.Verifier.VerifyAndCorrect(r.Context(), c.ID)
	status := http.StatusOK
	if sum.Aborted {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, sum)
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return err.Error()
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fe.Namespace()+" failed "+fe.Tag())
	}
	return strings.Join(msgs, "; ")
}

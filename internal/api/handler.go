// Package api implements the admin HTTP surface of the aggregator service.
//
// When an admin token is configured every route except /health requires it
// in the x-admin-token header.
//
// Routes:
//
//	GET  /health                   → liveness
//	POST /sync                     → sync one source          {source, incremental, sinceDays, maxJobs}
//	POST /sync/all?mode=           → sync every source        mode = incremental (default) | full
//	POST /sync/top                 → incremental sync of the top sources
//	POST /loads                    → start an Apify load      {actor, input}
//	GET  /loads?status=            → list live load statuses, optionally by status
//	GET  /loads/{runId}            → one load status
//	POST /maintenance/stale?days=  → mark old jobs stale
//	POST /maintenance/cleanup?days= → delete expired, unreferenced jobs
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"jobmate/aggregator-service/internal/apify"
	"jobmate/aggregator-service/internal/config"
	"jobmate/aggregator-service/internal/model"
	"jobmate/aggregator-service/internal/syncer"
)

// ─── Dependencies ─────────────────────────────────────────────────────────────

// SyncRunner is implemented by *syncer.Syncer.
type SyncRunner interface {
	SyncSource(ctx context.Context, opts syncer.Options) model.SyncResult
	SyncAllSources(ctx context.Context, incremental bool) []model.SyncResult
	SyncTopSources(ctx context.Context) []model.SyncResult
}

// LoadRunner is implemented by *apify.Loader.
type LoadRunner interface {
	StartLoad(ctx context.Context, actorName string, q apify.Query) (string, error)
	Status(ctx context.Context, runID string) (apify.LoadStatus, error)
	List(ctx context.Context) ([]apify.LoadStatus, error)
}

// Maintainer is implemented by *batch.Processor.
type Maintainer interface {
	MarkStaleJobs(ctx context.Context, days int) (int64, error)
	CleanupExpiredJobs(ctx context.Context, days int) (int64, error)
}

// ─── Request types ────────────────────────────────────────────────────────────

// LoadRequest is the body of POST /loads.
type LoadRequest struct {
	Actor string      `json:"actor" validate:"required"`
	Input apify.Query `json:"input"`
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies. loads may be nil when Apify is not
// configured; the /loads routes then answer 503.
type Handler struct {
	syncs      SyncRunner
	loads      LoadRunner
	maint      Maintainer
	adminToken string
	version    string
	log        logrus.FieldLogger
	validate   *validator.Validate
}

// NewHandler returns a configured Handler.
func NewHandler(syncs SyncRunner, loads LoadRunner, maint Maintainer, adminToken, version string, log logrus.FieldLogger) *Handler {
	return &Handler{
		syncs:      syncs,
		loads:      loads,
		maint:      maint,
		adminToken: adminToken,
		version:    version,
		log:        log.WithField("component", "api"),
		validate:   validator.New(),
	}
}

// Routes returns the full handler chain: request logging, admin auth and
// the route table.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.health)
	mux.HandleFunc("/sync", h.admin(h.syncOne))
	mux.HandleFunc("/sync/all", h.admin(h.syncAll))
	mux.HandleFunc("/sync/top", h.admin(h.syncTop))
	mux.HandleFunc("/loads", h.admin(h.handleLoads))
	mux.HandleFunc("/loads/", h.admin(h.loadStatus))
	mux.HandleFunc("/maintenance/", h.admin(h.maintenance))
	return RequestLogger(h.log, mux)
}

// admin enforces the x-admin-token header when a token is configured.
func (h *Handler) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken != "" {
			got := r.Header.Get("x-admin-token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.adminToken)) != 1 {
				jsonError(w, "missing or invalid x-admin-token header", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

// ─── Individual handlers ──────────────────────────────────────────────────────

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]string{
		"status":  "ok",
		"service": "aggregator-service",
		"version": h.version,
	})
}

// syncOne handles POST /sync
func (h *Handler) syncOne(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var opts syncer.Options
	if !h.decode(w, r, &opts) {
		return
	}
	jsonOK(w, h.syncs.SyncSource(r.Context(), opts))
}

// syncAll handles POST /sync/all?mode=incremental|full
func (h *Handler) syncAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var incremental bool
	switch mode := r.URL.Query().Get("mode"); mode {
	case "", "incremental":
		incremental = true
	case "full":
		incremental = false
	default:
		jsonError(w, "mode must be incremental or full", http.StatusBadRequest)
		return
	}
	jsonOK(w, h.syncs.SyncAllSources(r.Context(), incremental))
}

// syncTop handles POST /sync/top
func (h *Handler) syncTop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonOK(w, h.syncs.SyncTopSources(r.Context()))
}

// handleLoads handles POST /loads and GET /loads
func (h *Handler) handleLoads(w http.ResponseWriter, r *http.Request) {
	if h.loads == nil {
		jsonError(w, "apify is not configured", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.listLoads(w, r)
	case http.MethodPost:
		h.startLoad(w, r)
	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// listLoads handles GET /loads?status=
func (h *Handler) listLoads(w http.ResponseWriter, r *http.Request) {
	var want apify.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := apify.ParseStatus(raw)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		want = st
	}
	list, err := h.loads.List(r.Context())
	if err != nil {
		h.log.WithError(err).Error("list loads failed")
		jsonError(w, "status store error", http.StatusInternalServerError)
		return
	}
	out := make([]apify.LoadStatus, 0, len(list))
	for _, st := range list {
		if want == "" || st.Status == want {
			out = append(out, st)
		}
	}
	jsonOK(w, out)
}

func (h *Handler) startLoad(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if !h.decode(w, r, &req) {
		return
	}
	runID, err := h.loads.StartLoad(r.Context(), req.Actor, req.Input)
	if errors.Is(err, apify.ErrUnknownActor) {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("actor", req.Actor).Error("start load failed")
		jsonError(w, "could not start actor run", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}

// loadStatus handles GET /loads/{runId}
func (h *Handler) loadStatus(w http.ResponseWriter, r *http.Request) {
	if h.loads == nil {
		jsonError(w, "apify is not configured", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	runID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/loads/"), "/")
	if runID == "" || strings.Contains(runID, "/") {
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}
	st, err := h.loads.Status(r.Context(), runID)
	if errors.Is(err, apify.ErrNotFound) {
		jsonError(w, "load not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("runId", runID).Error("load status failed")
		jsonError(w, "status store error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, st)
}

// maintenance handles POST /maintenance/stale|cleanup?days=
func (h *Handler) maintenance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	days := 0
	if s := r.URL.Query().Get("days"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			jsonError(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = v
	}

	var (
		n   int64
		err error
		key string
	)
	switch strings.Trim(strings.TrimPrefix(r.URL.Path, "/maintenance/"), "/") {
	case "stale":
		n, err = h.maint.MarkStaleJobs(r.Context(), days)
		key = "marked"
	case "cleanup":
		n, err = h.maint.CleanupExpiredJobs(r.Context(), days)
		key = "deleted"
	default:
		jsonError(w, "unknown maintenance action", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.WithError(err).Error("maintenance failed")
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, map[string]int64{key: n})
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		jsonError(w, strings.Join(config.FormatValidationErrors(err), "; "), http.StatusBadRequest)
		return false
	}
	return true
}

func jsonOK(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"fmt"
	"github.com/go-chi/chi/v5"
	middlewares "github.com/eventfuse/eventfuse/internal/middleware"

	"github.com/eventfuse/eventfuse/internal/dispatcher"
	"github.com/eventfuse/eventfuse/internal/logger"
	"github.com/eventfuse/eventfuse/internal/models"
	"github.com/eventfuse/eventfuse/internal/queue"
	"github.com/eventfuse/eventfuse/internal/store"
)

// Handler handles HTTP requests for the API
type Handler struct {
	store      store.Store
	dlq        queue.DLQ
	dispatcher *dispatcher.Dispatcher
	version    string
	buildTime  string
	gitCommit  string
	startTime  time.Time
	tokenHash  string
}

// NewHandler creates a new API handler
func NewHandler(store store.Store, dlq queue.DLQ, disp *dispatcher.Dispatcher, adminTokenHash, version, buildTime, gitCommit string) *Handler {
	return &Handler{
		store:      store,
		dlq:        dlq,
		dispatcher: disp,
		version:    version,
		buildTime:  buildTime,
		gitCommit:  gitCommit,
		startTime:  time.Now(),
		tokenHash:  adminTokenHash,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/v1", func(r chi.Router) {
		// Health check endpoints
		r.Get("/health", h.healthHandler)
		r.Get("/health/ready", h.readinessHandler)
		r.Get("/health/live", h.livenessHandler)

		// API endpoints
		r.Get("/events", h.getEventsHandler)
		r.Get("/events/{postKey}", h.getEventHandler)
		r.Get("/fused-events", h.getFusedEventsHandler)

		// System info
		r.Get("/version", h.versionHandler)
	})

	// Admin routes (protected by token middleware)
	r.Route("/v1/admin", func(r chi.Router) {
		r.With(middlewares.AdminToken(h.tokenHash)).Group(func(r chi.Router) {
			r.Get("/sources", h.adminListSources)
			r.Put("/sources/{id}", h.adminPutSource)
			r.Get("/sources/{id}", h.adminGetSource)
			r.Delete("/sources/{id}", h.adminDeleteSource)

			r.Get("/rules", h.adminListRules)
			r.Put("/rules/{id}", h.adminPutRule)
			r.Delete("/rules/{id}", h.adminDeleteRule)

			r.Post("/dispatch", h.adminDispatch)
			r.Get("/dlq/{topic}", h.adminDLQDepth)
		})
	})

	// Root health check
	r.Get("/health", h.healthHandler)
}

// healthHandler provides basic health check
func (h *Handler) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   h.version,
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// readinessHandler checks if the application is ready to serve traffic
func (h *Handler) readinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := map[string]string{
		"store": "ok",
	}

	statusCode := http.StatusOK

	// Check store health
	if err := h.store.Health(ctx); err != nil {
		checks["store"] = "error: " + err.Error()
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	}

	h.writeJSONResponse(w, statusCode, response)
}

// livenessHandler checks if the application is alive
func (h *Handler) livenessHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// versionHandler returns version information
func (h *Handler) versionHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"version":    h.version,
		"build_time": h.buildTime,
		"git_commit": h.gitCommit,
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// getEventsHandler handles GET /events
func (h *Handler) getEventsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q, err := h.parseEventQuery(r)
	if err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.store.QueryEvents(ctx, q)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to query events", "error", err)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	response := map[string]interface{}{
		"data":      events,
		"count":     len(events),
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Cache-Control", "public, max-age=60")
	h.writeJSONResponse(w, http.StatusOK, response)
}

// getEventHandler handles GET /events/{postKey}
func (h *Handler) getEventHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	postKey := chi.URLParam(r, "postKey")

	if postKey == "" {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "post key is required")
		return
	}

	event, err := h.store.GetEvent(ctx, postKey)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to get event", "error", err, "post_key", postKey)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	if event == nil {
		h.writeErrorResponse(w, r, http.StatusNotFound, "Event not found")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	h.writeJSONResponse(w, http.StatusOK, event)
}

// getFusedEventsHandler handles GET /fused-events
func (h *Handler) getFusedEventsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "tenant is required")
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 || n > 1000 {
			h.writeErrorResponse(w, r, http.StatusBadRequest, fmt.Sprintf("invalid limit: %s", limitStr))
			return
		}
		limit = n
	}

	fused, err := h.store.QueryFusedEvents(ctx, tenantID, limit)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to query fused events", "error", err, "tenant_id", tenantID)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	response := map[string]interface{}{
		"data":      fused,
		"count":     len(fused),
		"timestamp": time.Now().UTC(),
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// adminListSources handles GET /admin/sources
func (h *Handler) adminListSources(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sources, err := h.store.ListEnabledSources(ctx)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to list sources", "error", err)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	response := map[string]interface{}{
		"data":  sources,
		"count": len(sources),
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// adminPutSource handles PUT /admin/sources/{id}
func (h *Handler) adminPutSource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var src models.Source
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "invalid source payload: "+err.Error())
		return
	}
	src.ID = id

	if src.TenantID == "" || src.Platform == "" {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "tenant_id and platform are required")
		return
	}
	if src.Mode == "" {
		src.Mode = models.ModePoll
	}

	if err := h.store.PutSource(ctx, src); err != nil {
		logger.WithContext(ctx).Error("Failed to put source", "error", err, "source_id", id)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, src)
}

// adminGetSource handles GET /admin/sources/{id}
func (h *Handler) adminGetSource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	src, err := h.store.GetSource(ctx, id)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to get source", "error", err, "source_id", id)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	if src == nil {
		h.writeErrorResponse(w, r, http.StatusNotFound, "Source not found")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, src)
}

// adminDeleteSource handles DELETE /admin/sources/{id}
func (h *Handler) adminDeleteSource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteSource(ctx, id); err != nil {
		logger.WithContext(ctx).Error("Failed to delete source", "error", err, "source_id", id)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]string{"deleted": id})
}

// adminListRules handles GET /admin/rules?tenant=
func (h *Handler) adminListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "tenant is required")
		return
	}

	rules, err := h.store.ListRules(ctx, tenantID)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to list rules", "error", err, "tenant_id", tenantID)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	response := map[string]interface{}{
		"data":  rules,
		"count": len(rules),
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// adminPutRule handles PUT /admin/rules/{id}
func (h *Handler) adminPutRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var rule models.NotificationRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "invalid rule payload: "+err.Error())
		return
	}
	rule.ID = id

	if rule.TenantID == "" || rule.Channel == "" {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "tenant_id and channel are required")
		return
	}

	if err := h.store.PutRule(ctx, rule); err != nil {
		logger.WithContext(ctx).Error("Failed to put rule", "error", err, "rule_id", id)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, rule)
}

// adminDeleteRule handles DELETE /admin/rules/{id}
func (h *Handler) adminDeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteRule(ctx, id); err != nil {
		logger.WithContext(ctx).Error("Failed to delete rule", "error", err, "rule_id", id)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]string{"deleted": id})
}

// adminDispatch handles POST /admin/dispatch, running one fan-out cycle
// synchronously and returning its summary.
func (h *Handler) adminDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	summary, err := h.dispatcher.Run(ctx)
	if err != nil {
		logger.WithContext(ctx).Error("Dispatch cycle failed", "error", err)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, summary)
}

// adminDLQDepth handles GET /admin/dlq/{topic}
func (h *Handler) adminDLQDepth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	topic := chi.URLParam(r, "topic")

	depth, err := h.dlq.Depth(ctx, queue.DLQTopic(topic))
	if err != nil {
		logger.WithContext(ctx).Error("Failed to read DLQ depth", "error", err, "topic", topic)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	response := map[string]interface{}{
		"topic": queue.DLQTopic(topic),
		"depth": depth,
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// parseEventQuery parses query parameters into EventQuery
func (h *Handler) parseEventQuery(r *http.Request) (models.EventQuery, error) {
	q := models.EventQuery{}

	q.TenantID = r.URL.Query().Get("tenant")

	// Parse limit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return q, fmt.Errorf("invalid limit: %s", limitStr)
		}
		if limit < 0 || limit > 1000 {
			return q, fmt.Errorf("limit must be between 0 and 1000")
		}
		q.Limit = limit
	}

	// Parse offset
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return q, fmt.Errorf("invalid offset: %s", offsetStr)
		}
		if offset < 0 {
			return q, fmt.Errorf("offset must be non-negative")
		}
		q.Offset = offset
	}

	// Parse time filters
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			return q, fmt.Errorf("invalid since format: %s", sinceStr)
		}
		q.Since = since
	}

	if untilStr := r.URL.Query().Get("until"); untilStr != "" {
		until, err := time.Parse(time.RFC3339, untilStr)
		if err != nil {
			return q, fmt.Errorf("invalid until format: %s", untilStr)
		}
		q.Until = until
	}

	// Parse array filters
	q.SourceIDs = r.URL.Query()["source"]
	q.Platforms = r.URL.Query()["platform"]
	q.Domains = r.URL.Query()["domain"]

	return q, nil
}

// writeJSONResponse writes a JSON response
func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeErrorResponse writes a standardized error response
func (h *Handler) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	response := ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   message,
		Timestamp: time.Now().UTC(),
		RequestID: r.Header.Get("X-Request-ID"),
	}

	h.writeJSONResponse(w, statusCode, response)
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

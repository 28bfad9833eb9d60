package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"navtree/api/internal/logging"
	"navtree/api/internal/search"
	"navtree/api/internal/store"
)

// TenantHeader carries the opaque tenant key. Absent means the default tenant.
const TenantHeader = "X-Tenant-ID"

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        logrus.FieldLogger
}

func NewHTTPServer(service *Service, corsOrigin string, log logrus.FieldLogger) *HTTPServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, log: log}
}

func (s *HTTPServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestLogger)

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/api/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	menus := r.PathPrefix("/api/menus").Subrouter()
	menus.HandleFunc("", s.handleList).Methods(http.MethodGet)
	menus.HandleFunc("", s.handleCreate).Methods(http.MethodPost)
	menus.HandleFunc("/tree", s.handleTree).Methods(http.MethodGet)
	menus.HandleFunc("/nested", s.handleNested).Methods(http.MethodGet)
	menus.HandleFunc("/parent-options", s.handleParentOptions).Methods(http.MethodGet)
	menus.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	menus.HandleFunc("/snapshots", s.handleSnapshot).Methods(http.MethodPost)
	menus.HandleFunc("/bulk-delete", s.handleBulkDelete).Methods(http.MethodPost)
	menus.HandleFunc("/{id:[0-9]+}", s.handleGet).Methods(http.MethodGet)
	menus.HandleFunc("/{id:[0-9]+}", s.handleUpdate).Methods(http.MethodPut)
	menus.HandleFunc("/{id:[0-9]+}", s.handleDelete).Methods(http.MethodDelete)
	menus.HandleFunc("/{id:[0-9]+}/active", s.handleSetActive).Methods(http.MethodPatch)
	menus.HandleFunc("/{id:[0-9]+}/move-up", s.handleMoveUp).Methods(http.MethodPost)
	menus.HandleFunc("/{id:[0-9]+}/move-down", s.handleMoveDown).Methods(http.MethodPost)
	menus.HandleFunc("/{id:[0-9]+}/availability", s.handleAvailability).Methods(http.MethodGet)
	menus.HandleFunc("/{id:[0-9]+}/depth", s.handleDepth).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return cors.New(cors.Options{
		AllowedOrigins: []string{s.corsOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID", TenantHeader},
		ExposedHeaders: []string{"X-Request-ID"},
	}).Handler(r)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleTree(w http.ResponseWriter, r *http.Request) {
	forest, err := s.service.GetTree(r.Context(), tenantOf(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tree": forest})
}

func (s *HTTPServer) handleNested(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	forest, err := s.service.GetNested(r.Context(), tenantOf(r), location)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tree": forest, "location": location})
}

func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.Filter{TenantID: tenantOf(r)}
	if raw := query.Get("parentId"); raw != "" {
		parentID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", "parentId must be an integer", nil)
			return
		}
		filter.ParentID = &parentID
	}
	filter.RootOnly = queryBool(query.Get("root"))
	filter.ActiveOnly = queryBool(query.Get("active"))

	items, err := s.service.Query(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleParentOptions(w http.ResponseWriter, r *http.Request) {
	var exclude int64
	if raw := r.URL.Query().Get("exclude"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", "exclude must be an integer", nil)
			return
		}
		exclude = parsed
	}
	options, err := s.service.ParentOptions(r.Context(), tenantOf(r), exclude)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"options": options})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	text := strings.TrimSpace(query.Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "q is required", nil)
		return
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	if limit > 100 {
		limit = 100
	}
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), search.Query{
		Text:     text,
		TenantID: tenantOf(r),
		Limit:    limit,
		Offset:   offset,
	}))
}

func (s *HTTPServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.ExportSnapshot(r.Context(), tenantOf(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input MenuInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	item, err := s.service.Create(r.Context(), tenantOf(r), input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.Get(r.Context(), tenantOf(r), pathID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var input MenuInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	item, err := s.service.Update(r.Context(), tenantOf(r), pathID(r), input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsActive *bool `json:"isActive"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.IsActive == nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Validation failed", map[string]string{"isActive": "is required"})
		return
	}
	item, err := s.service.SetActive(r.Context(), tenantOf(r), pathID(r), *body.IsActive)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	removed, err := s.service.Delete(r.Context(), tenantOf(r), pathID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": removed})
}

func (s *HTTPServer) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []int64 `json:"ids"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	removed, err := s.service.DeleteMany(r.Context(), tenantOf(r), body.IDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": removed})
}

func (s *HTTPServer) handleMoveUp(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.MoveUp(r.Context(), tenantOf(r), pathID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleMoveDown(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.MoveDown(r.Context(), tenantOf(r), pathID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	availability, err := s.service.Availability(r.Context(), tenantOf(r), pathID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availability)
}

func (s *HTTPServer) handleDepth(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	depth, err := s.service.Depth(r.Context(), tenantOf(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "depth": depth})
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context(), s.log).WithError(err).Error("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		entry := s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
		})
		if tenant := tenantOf(r); tenant != "" {
			entry = entry.WithField("tenant", tenant)
		}
		r = r.WithContext(logging.WithLogger(r.Context(), entry))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)
		writer.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(writer, r)

		entry.WithFields(logrus.Fields{
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("request completed")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func tenantOf(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(TenantHeader))
}

// pathID reads the {id} route variable. The route pattern guarantees digits.
func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func queryBool(value string) bool {
	parsed, err := strconv.ParseBool(value)
	return err == nil && parsed
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

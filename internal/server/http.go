package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/parsemed/internal/async"
	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/documents"
	"github.com/joseph-ayodele/parsemed/internal/editor"
	"github.com/joseph-ayodele/parsemed/internal/export"
	"github.com/joseph-ayodele/parsemed/internal/pipeline"
	"github.com/joseph-ayodele/parsemed/internal/repository"
	"github.com/joseph-ayodele/parsemed/internal/templates"
)

const (
	defaultMaxUploadBytes = 50 << 20
	maxJSONBodyBytes      = 10 << 20
	requestIDHeader       = "X-Request-ID"
)

// Deps are the services the HTTP API is built from. Queue may be nil, in
// which case every upload is processed inline.
type Deps struct {
	Processor      *pipeline.Processor
	Jobs           repository.ExtractJobRepository
	Queue          async.Queue
	Sessions       *editor.Store
	Documents      *documents.Service
	Templates      *templates.Service
	Exporter       *export.Service
	Ping           func(ctx context.Context) error
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type API struct {
	deps   Deps
	logger *slog.Logger
}

func NewAPI(deps Deps) *API {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &API{deps: deps, logger: deps.Logger}
}

// Handler returns the routed API wrapped in the standard middleware.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.health)

	// upload pipeline
	mux.HandleFunc("POST /pdf-to-markdown", a.pdfToMarkdown)
	mux.HandleFunc("POST /extract-pdf", a.extractPDF)
	mux.HandleFunc("POST /markdown-to-json", a.markdownToJSON)
	mux.HandleFunc("GET /jobs/{id}", a.getJob)

	// editing sessions
	mux.HandleFunc("POST /sessions", a.createSession)
	mux.HandleFunc("GET /sessions/{id}", a.getSession)
	mux.HandleFunc("DELETE /sessions/{id}", a.deleteSession)
	mux.HandleFunc("POST /sessions/{id}/ops", a.applyOps)
	mux.HandleFunc("POST /sessions/{id}/save", a.saveSession)

	// saved documents
	mux.HandleFunc("POST /finalize-extracted-details", a.finalize)
	mux.HandleFunc("GET /get-saved-tables", a.listSaved)
	mux.HandleFunc("GET /saved-tables/{id}", a.getSaved)
	mux.HandleFunc("GET /saved-tables/{id}/export.xlsx", a.exportSaved)

	// configuration templates
	mux.HandleFunc("POST /save-configuration", a.saveConfiguration)
	mux.HandleFunc("PUT /update-configuration/{id}", a.updateConfiguration)
	mux.HandleFunc("GET /get-configurations", a.listConfigurations)
	mux.HandleFunc("GET /configurations/{id}", a.getConfiguration)
	mux.HandleFunc("DELETE /configurations/{id}", a.deleteConfiguration)

	return a.withRequestID(a.withLogging(a.withRecover(withCORS(mux))))
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if a.deps.Ping != nil {
		if err := a.deps.Ping(r.Context()); err != nil {
			a.logger.Warn("http.health.degraded", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	body := map[string]any{"status": "ok"}
	if sq, ok := a.deps.Queue.(interface{ Stats() async.Stats }); ok {
		body["queue"] = sq.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

// middleware

func (a *API) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(common.WithRequestID(r.Context(), id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (a *API) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= 500 {
			level = slog.LevelError
		} else if r.URL.Path == "/healthz" {
			level = slog.LevelDebug
		}
		common.LoggerFrom(r.Context(), a.logger).Log(r.Context(), level, "http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (a *API) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				common.LoggerFrom(r.Context(), a.logger).Error("http.panic", "panic", v, "stack", string(debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
		h.Set("Access-Control-Expose-Headers", requestIDHeader+", Content-Disposition")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responses

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to an HTTP status through its gRPC code and writes
// {"error": message}.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	st, _ := status.FromError(common.ToStatus(err))
	code := httpStatus(st.Code())
	log := common.LoggerFrom(r.Context(), a.logger)
	if code >= 500 {
		log.Error("http.error", "path", r.URL.Path, "code", st.Code().String(), "error", err)
	} else {
		log.Warn("http.error", "path", r.URL.Path, "code", st.Code().String(), "error", st.Message())
	}
	writeJSON(w, code, errorBody{Error: st.Message()})
}

func httpStatus(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.FailedPrecondition:
		return http.StatusUnprocessableEntity
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusBadGateway
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON request body into v, rejecting trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return status.Errorf(codes.InvalidArgument, "request body exceeds %d bytes", tooBig.Limit)
		}
		if errors.Is(err, io.EOF) {
			return status.Error(codes.InvalidArgument, "request body is required")
		}
		return status.Errorf(codes.InvalidArgument, "invalid JSON body: %v", err)
	}
	if dec.More() {
		return status.Error(codes.InvalidArgument, "invalid JSON body: trailing data")
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, fmt.Sprintf("%s must be a UUID", name))
	}
	return id, nil
}

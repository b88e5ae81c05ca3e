// Package httpapi exposes the session relay over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/editor-relay/internal/application"
	"github.com/bnema/editor-relay/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxBodyBytes int64 = 1 << 20

	tracerName = "github.com/bnema/editor-relay/internal/adapters/httpapi"
)

// SessionRelay is the part of the relay the router dispatches to.
type SessionRelay interface {
	CreateSession(ctx context.Context, content string) (domain.SessionID, error)
	Fetch(ctx context.Context, id domain.SessionID) (string, error)
	Overwrite(ctx context.Context, id domain.SessionID, content string) error
	Wait(ctx context.Context, id domain.SessionID) (string, error)
	Destroy(ctx context.Context, id domain.SessionID) error
	Stats() application.Stats
}

type Options struct {
	Logger         *slog.Logger
	MaxBodyBytes   int64
	TracerProvider trace.TracerProvider
}

// Router maps the relay's URL space onto SessionRelay calls. It keeps no
// session state.
type Router struct {
	relay   SessionRelay
	logger  *slog.Logger
	tracer  trace.Tracer
	maxBody int64
}

var _ http.Handler = (*Router)(nil)

func NewRouter(relay SessionRelay, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	provider := opts.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}

	return &Router{
		relay:   relay,
		logger:  logger,
		tracer:  provider.Tracer(tracerName),
		maxBody: maxBody,
	}
}

func (h *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w.Header())

	rt := matchRoute(r.URL.Path)
	h.observe(w, r, rt, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.dispatch(w, r, rt)
	})
}

func (h *Router) dispatch(w http.ResponseWriter, r *http.Request, rt route) {
	switch rt.kind {
	case routeHealth:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, "GET, OPTIONS")
			return
		}
		h.handleHealth(w)
	case routeCreate:
		if r.Method != http.MethodPost {
			methodNotAllowed(w, "POST, OPTIONS")
			return
		}
		h.handleCreate(w, r)
	case routeSession, routeSessionSubpath, routeWait:
		h.dispatchSession(w, r, rt)
	default:
		writeText(w, http.StatusNotFound, "Not Found")
	}
}

// dispatchSession handles /session/{id} and anything below it. DELETE only
// applies to the exact session path; the wait suffix only applies to GET.
func (h *Router) dispatchSession(w http.ResponseWriter, r *http.Request, rt route) {
	switch {
	case r.Method == http.MethodDelete && rt.kind == routeSession:
		h.handleDelete(w, r, rt.id)
	case r.Method == http.MethodGet && rt.kind == routeWait:
		h.handleWait(w, r, rt.id)
	case r.Method == http.MethodGet:
		h.handleFetch(w, r, rt.id)
	case r.Method == http.MethodPost:
		h.handleOverwrite(w, r, rt.id)
	case rt.kind == routeSession:
		methodNotAllowed(w, "GET, POST, DELETE, OPTIONS")
	default:
		methodNotAllowed(w, "GET, POST, OPTIONS")
	}
}

type createResponse struct {
	SessionID string `json:"sessionId"`
}

func (h *Router) handleCreate(w http.ResponseWriter, r *http.Request) {
	content, err := h.readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	id, err := h.relay.CreateSession(r.Context(), content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, createResponse{SessionID: string(id)})
}

func (h *Router) handleFetch(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	content, err := h.relay.Fetch(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeText(w, http.StatusOK, content)
}

func (h *Router) handleOverwrite(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	content, err := h.readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.relay.Overwrite(r.Context(), id, content); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeText(w, http.StatusOK, "OK")
}

func (h *Router) handleWait(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	content, err := h.relay.Wait(r.Context(), id)
	if errors.Is(err, domain.ErrNoContentYet) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeText(w, http.StatusOK, content)
}

func (h *Router) handleDelete(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	if err := h.relay.Destroy(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeText(w, http.StatusOK, "Deleted")
}

// Health is the /healthz payload. It never carries session identifiers.
type Health struct {
	Sessions           int     `json:"sessions"`
	Waiters            int     `json:"waiters"`
	OldestIdleSeconds  float64 `json:"oldestIdleSeconds"`
	IdleTimeoutSeconds float64 `json:"idleTimeoutSeconds"`
	UptimeSeconds      float64 `json:"uptimeSeconds"`
}

func HealthFromStats(stats application.Stats) Health {
	return Health{
		Sessions:           stats.Sessions,
		Waiters:            stats.Waiters,
		OldestIdleSeconds:  stats.OldestIdle.Seconds(),
		IdleTimeoutSeconds: stats.IdleTimeout.Seconds(),
		UptimeSeconds:      stats.Uptime.Seconds(),
	}
}

// Stats converts the payload back into relay stats.
func (h Health) Stats() application.Stats {
	return application.Stats{
		Sessions:    h.Sessions,
		Waiters:     h.Waiters,
		OldestIdle:  seconds(h.OldestIdleSeconds),
		IdleTimeout: seconds(h.IdleTimeoutSeconds),
		Uptime:      seconds(h.UptimeSeconds),
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func (h *Router) handleHealth(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, HealthFromStats(h.relay.Stats()))
}

func (h *Router) readBody(w http.ResponseWriter, r *http.Request) (string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// writeError maps relay outcomes onto status codes. Nothing is written when
// the client has already gone away.
func (h *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		h.logger.Debug("client went away", "method", r.Method, "error", err)
		return
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		writeText(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, domain.ErrInvalidSessionID):
		writeText(w, http.StatusNotFound, "Not Found")
	case errors.Is(err, domain.ErrWaitConflict):
		writeText(w, http.StatusConflict, "Wait already pending")
	case errors.Is(err, domain.ErrNoContentYet):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrIDSpaceExhausted), errors.Is(err, application.ErrRelayClosed):
		writeText(w, http.StatusServiceUnavailable, "Service unavailable")
	case errors.As(err, &tooLarge):
		writeText(w, http.StatusRequestEntityTooLarge, "Request body too large")
	default:
		h.logger.Error("relay request failed", "method", r.Method, "error", err)
		writeText(w, http.StatusInternalServerError, "Internal server error")
	}
}

func setCORSHeaders(header http.Header) {
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type")
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeText(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		writeText(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

type routeKind int

const (
	routeUnknown routeKind = iota
	routeHealth
	routeCreate
	routeSession
	routeSessionSubpath
	routeWait
)

type route struct {
	kind routeKind
	id   domain.SessionID
	// name is the path template, safe to log and to put on spans.
	name string
}

func matchRoute(path string) route {
	path = strings.TrimRight(path, "/")

	switch path {
	case "/healthz":
		return route{kind: routeHealth, name: "/healthz"}
	case "/session":
		return route{kind: routeCreate, name: "/session"}
	}

	rest, ok := strings.CutPrefix(path, "/session/")
	if !ok {
		return route{kind: routeUnknown, name: "unmatched"}
	}

	raw, subpath, _ := strings.Cut(rest, "/")
	id, err := domain.ParseSessionID(raw)
	if err != nil {
		return route{kind: routeUnknown, name: "unmatched"}
	}

	switch {
	case subpath == "":
		return route{kind: routeSession, id: id, name: "/session/{id}"}
	case strings.HasSuffix(path, "/wait"):
		return route{kind: routeWait, id: id, name: "/session/{id}/wait"}
	default:
		return route{kind: routeSessionSubpath, id: id, name: "/session/{id}/*"}
	}
}

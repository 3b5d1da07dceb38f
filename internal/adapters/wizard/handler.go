// Package wizard exposes the registration wizard, sync status and camp
// catalog as a JSON HTTP API for the interface layer.
package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"campreg/internal/catalog"
	"campreg/internal/core"
	"campreg/internal/platform/logger"
	"campreg/pkg/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Wizard is the controller surface the handler drives.
type Wizard interface {
	View() core.WizardView
	Apply(partial domain.PartialRecord) (domain.RegistrationRecord, error)
	SetCamp(name string, selected bool) (domain.RegistrationRecord, error)
	Advance() error
	Retreat() error
	Reset()
	Submit(ctx context.Context) (core.SubmitResult, error)
	Resync(ctx context.Context) (core.SyncOutcome, bool, error)
}

// Catalog provides read-only camp and terms content.
type Catalog interface {
	Camps() []catalog.Camp
	Terms() []catalog.Term
}

// Handler serves the wizard API.
type Handler struct {
	wizard   Wizard
	catalog  Catalog
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	router   chi.Router
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithGatherer exposes metrics from g at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = g }
}

// NewHandler builds the router.
func NewHandler(w Wizard, c Catalog, opts ...Option) *Handler {
	h := &Handler{wizard: w, catalog: c}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Discard()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/catalog", h.handleCatalog)
		r.Get("/sync", h.handleSyncStatus)
		r.Post("/sync", h.handleResync)
		r.Route("/wizard", func(r chi.Router) {
			r.Get("/", h.handleView)
			r.Patch("/record", h.handleApply)
			r.Put("/camps/{name}", h.handleSetCamp)
			r.Post("/advance", h.step(h.wizard.Advance))
			r.Post("/retreat", h.step(h.wizard.Retreat))
			r.Post("/reset", h.handleReset)
			r.Post("/submit", h.handleSubmit)
		})
	})
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		l := h.logger.With("request_id", middleware.GetReqID(r.Context()), "method", r.Method, "path", r.URL.Path)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logger.WithLogger(r.Context(), l)))
		l.DebugContext(r.Context(), "request served", "status", ww.Status(), "duration", time.Since(start))
	})
}

func (h *Handler) handleView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.wizard.View())
}

// applyRequest mirrors domain.PartialRecord but accepts any JSON scalar as a
// personal-info value.
type applyRequest struct {
	Email         *string         `json:"email"`
	GuardianName  *string         `json:"guardianName"`
	Consent       *bool           `json:"consent"`
	SelectedCamps map[string]bool `json:"selectedCamps"`
	PersonalInfo  map[string]any  `json:"personalInfo"`
}

func (req applyRequest) partial() (domain.PartialRecord, error) {
	p := domain.PartialRecord{
		Email:         req.Email,
		GuardianName:  req.GuardianName,
		Consent:       req.Consent,
		SelectedCamps: req.SelectedCamps,
	}
	if req.PersonalInfo == nil {
		return p, nil
	}
	p.PersonalInfo = make(map[string]string, len(req.PersonalInfo))
	for k, v := range req.PersonalInfo {
		switch val := v.(type) {
		case nil:
			p.PersonalInfo[k] = ""
		case string:
			p.PersonalInfo[k] = val
		case json.Number:
			p.PersonalInfo[k] = val.String()
		case bool:
			p.PersonalInfo[k] = strconv.FormatBool(val)
		default:
			return domain.PartialRecord{}, fmt.Errorf("personalInfo.%s must be a string, number, boolean or null", k)
		}
	}
	return p, nil
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	partial, err := req.partial()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.wizard.Apply(partial); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.wizard.View())
}

type setCampRequest struct {
	Selected bool `json:"selected"`
}

func (h *Handler) handleSetCamp(w http.ResponseWriter, r *http.Request) {
	var req setCampRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := h.wizard.SetCamp(chi.URLParam(r, "name"), req.Selected); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.wizard.View())
}

func (h *Handler) step(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, h.wizard.View())
	}
}

func (h *Handler) handleReset(w http.ResponseWriter, _ *http.Request) {
	h.wizard.Reset()
	writeJSON(w, http.StatusOK, h.wizard.View())
}

type submitResponse struct {
	Result core.SubmitResult `json:"result"`
	Saved  bool              `json:"saved"`
	Synced bool              `json:"synced"`
	Error  string            `json:"error,omitempty"`
	View   core.WizardView   `json:"view"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	res, err := h.wizard.Submit(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	resp := submitResponse{Result: res, Saved: true, Synced: res.Sync.Succeeded(), View: h.wizard.View()}
	status := http.StatusOK
	if !resp.Synced {
		// saved locally but not yet sent
		status = http.StatusAccepted
		if res.Sync.Err != nil {
			resp.Error = res.Sync.Err.Error()
		}
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.wizard.View().Sync)
}

func (h *Handler) handleResync(w http.ResponseWriter, r *http.Request) {
	out, found, err := h.wizard.Resync(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no staged registration")
		return
	}
	status := http.StatusOK
	body := map[string]any{"outcome": out}
	if !out.Succeeded() {
		status = http.StatusAccepted
		if out.Err != nil {
			body["error"] = out.Err.Error()
		}
	}
	writeJSON(w, status, body)
}

func (h *Handler) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	if h.catalog == nil {
		writeError(w, http.StatusNotFound, "catalog not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"camps": h.catalog.Camps(),
		"terms": h.catalog.Terms(),
	})
}

// StatusFor maps a domain error kind to an HTTP status.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindStepIncomplete:
		return http.StatusUnprocessableEntity
	case domain.KindInvalidStep:
		return http.StatusConflict
	case domain.KindSubmissionInProgress:
		return http.StatusConflict
	case domain.KindCampUnavailable:
		return http.StatusUnprocessableEntity
	case domain.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindNetworkUnavailable, domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindRemoteRejected:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	l := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "request failed", "error", err)
	} else {
		l.WarnContext(r.Context(), "request refused", "error", err)
	}
	body := map[string]any{"error": err.Error()}
	var de *domain.Error
	if errors.As(err, &de) {
		body["kind"] = de.Kind
		body["retryable"] = de.Retryable()
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

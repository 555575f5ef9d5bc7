package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"go-chi-calculator/internal/arithmetic"
	"go-chi-calculator/internal/calculator"
	"go-chi-calculator/internal/handlers"
	"go-chi-calculator/internal/observability"
	"go-chi-calculator/internal/storage"
)

var tracer = otel.Tracer("session")

const maxBodyBytes = 64 << 10

// Handler serves the session API.
type Handler struct {
	registry *Registry
	prefs    storage.Store
}

// NewHandler serves sessions from registry and keeps preferences in prefs.
func NewHandler(registry *Registry, prefs storage.Store) *Handler {
	if prefs == nil {
		prefs = storage.NewMemoryStore()
	}
	return &Handler{registry: registry, prefs: prefs}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrLimited):
		return http.StatusTooManyRequests
	}
	return arithmetic.StatusFor(err)
}

// request opens the span and logger shared by every session handler.
type request struct {
	w      http.ResponseWriter
	r      *http.Request
	span   trace.Span
	logger *zap.Logger
	op     string
}

func (h *Handler) begin(w http.ResponseWriter, r *http.Request, op string) *request {
	ctx := r.Context()
	logger := observability.LoggerWithTrace(ctx)

	ctx, span := tracer.Start(ctx, "session."+op,
		trace.WithAttributes(
			attribute.String("session.operation", op),
			attribute.String("request.id", observability.RequestIDFromContext(ctx)),
		),
	)
	if id := chi.URLParam(r, "id"); id != "" {
		ctx = observability.ContextWithSessionID(ctx, id)
		span.SetAttributes(attribute.String("session.id", id))
	}
	return &request{w: w, r: r.WithContext(ctx), span: span, logger: logger, op: op}
}

func (q *request) fail(msg string, err error) {
	status := statusFor(err)
	if msg == "" {
		msg = arithmetic.ErrorMessage(err)
	}
	if kind, ok := calculator.KindOf(err); ok {
		q.span.SetAttributes(attribute.String("calculator.error.kind", string(kind)))
	}
	observability.RecordError(q.r.Context(), q.span, q.logger, errorCounter, q.op, msg, err, status, q.w)
}

func (q *request) ok(status int, v any) {
	q.span.SetStatus(codes.Ok, "")
	handlers.WriteJSON(q.w, status, v)
}

func (q *request) decode(dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(q.w, q.r.Body, maxBodyBytes)).Decode(dst)
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	observability.RecordError(q.r.Context(), q.span, q.logger, errorCounter, q.op, "invalid request body", err, http.StatusBadRequest, q.w)
	return false
}

// withSession looks the session up and runs fn behind its busy gate.
func (h *Handler) withSession(q *request, fn func(*calculator.Session) error) (*Entry, bool) {
	entry, err := h.registry.Get(chi.URLParam(q.r, "id"))
	if err != nil {
		q.fail("session not found", err)
		return nil, false
	}
	if err := entry.Do(fn); err != nil {
		if errors.Is(err, calculator.ErrBusy) {
			q.fail("session is busy", err)
		} else {
			q.fail("", err)
		}
		return nil, false
	}
	return entry, true
}

// Create handles POST /sessions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	q := h.begin(w, r, "create")
	defer q.span.End()

	var req CreateRequest
	if !q.decode(&req) {
		return
	}

	entry, err := h.registry.Create("")
	if err != nil {
		q.fail("", err)
		return
	}

	var view calculator.View
	err = entry.Do(func(s *calculator.Session) error {
		if req.Keypad != "" {
			if err := s.SetKeypad(req.Keypad); err != nil {
				return err
			}
		}
		view = s.View()
		return nil
	})
	if err != nil {
		_ = h.registry.Delete(entry.ID)
		q.fail("", err)
		return
	}

	q.span.SetAttributes(attribute.String("session.id", entry.ID))
	q.logger.Info("session opened", zap.String("session_id", entry.ID))
	q.ok(http.StatusCreated, Response{ID: entry.ID, View: view})
}

// Get handles GET /sessions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	q := h.begin(w, r, "get")
	defer q.span.End()

	var view calculator.View
	entry, ok := h.withSession(q, func(s *calculator.Session) error {
		view = s.View()
		return nil
	})
	if !ok {
		return
	}
	q.ok(http.StatusOK, Response{ID: entry.ID, View: view})
}

// Delete handles DELETE /sessions/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	q := h.begin(w, r, "delete")
	defer q.span.End()

	if err := h.registry.Delete(chi.URLParam(r, "id")); err != nil {
		q.fail("session not found", err)
		return
	}
	q.span.SetStatus(codes.Ok, "")
	w.WriteHeader(http.StatusNoContent)
}

// Keys handles POST /sessions/{id}/keys. Calculation errors show on the
// returned view; an unknown key stops the batch with 400.
func (h *Handler) Keys(w http.ResponseWriter, r *http.Request) {
	q := h.begin(w, r, "keys")
	defer q.span.End()

	var req KeysRequest
	if !q.decode(&req) {
		return
	}
	if len(req.Keys) == 0 || len(req.Keys) > MaxKeysPerRequest {
		observability.RecordError(q.r.Context(), q.span, q.logger, errorCounter, q.op, "invalid key count",
			fmt.Errorf("got %d keys, want 1..%d", len(req.Keys), MaxKeysPerRequest), http.StatusBadRequest, w)
		return
	}
	q.span.SetAttributes(attribute.Int("session.keys_count", len(req.Keys)))

	var view calculator.View
	entry, ok := h.withSession(q, func(s *calculator.Session) error {
		err := s.PressAll(q.r.Context(), req.Keys)
		view = s.View()
		return err
	})
	if !ok {
		keyPresses.WithLabelValues("rejected").Add(float64(len(req.Keys)))
		return
	}

	outcome := "ok"
	if view.Error != "" {
		outcome = "error"
	}
	keyPresses.WithLabelValues(outcome).Add(float64(len(req.Keys)))

	q.logger.Debug("keys pressed",
		zap.String("session_id", entry.ID),
		zap.Strings("keys", req.Keys),
		zap.String("display", view.Display),
		zap.String("state", view.State),
	)
	q.ok(http.StatusOK, Response{ID: entry.ID, View: view})
}

// History handles GET /sessions/{id}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := h.begin(w, r, "history")
	defer q.span.End()

	var entries []calculator.HistoryEntry
	if _, ok := h.withSession(q, func(s *calculator.Session) error {
		entries = s.History()
		return nil
	}); !ok {
		return
	}

	items := make([]HistoryItem, len(entries))
	for i, e := range entries {
		items[i] = HistoryItem{HistoryEntry: e, Text: e.String()}
	}
	q.ok(http.StatusOK, HistoryResponse{Entries: items})
}

// ClearHistory handles DELETE /sessions/{id}/history.
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	q := h.begin(w, r, "clear_history")
	defer q.span.End()

	if _, ok := h.withSession(q, func(s *calculator.Session) error {
		return s.ClearHistory()
	}); !ok {
		return
	}
	q.span.SetStatus(codes.Ok, "")
	w.WriteHeader(http.StatusNoContent)
}

// Restore handles POST /sessions/{id}/history/{index}/restore.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	q := h.begin(w, r, "restore")
	defer q.span.End()

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		observability.RecordError(q.r.Context(), q.span, q.logger, errorCounter, q.op, "invalid history index", err, http.StatusBadRequest, w)
		return
	}

	var view calculator.View
	entry, ok := h.withSession(q, func(s *calculator.Session) error {
		if err := s.Restore(index); err != nil {
			return err
		}
		view = s.View()
		return nil
	})
	if !ok {
		return
	}
	q.ok(http.StatusOK, Response{ID: entry.ID, View: view})
}

// ToggleAngle handles POST /sessions/{id}/angle.
func (h *Handler) ToggleAngle(w http.ResponseWriter, r *http.Request) {
	q := h.begin(w, r, "angle")
	defer q.span.End()

	var view calculator.View
	entry, ok := h.withSession(q, func(s *calculator.Session) error {
		if err := s.ToggleAngleMode(); err != nil {
			return err
		}
		view = s.View()
		return nil
	})
	if !ok {
		return
	}
	q.ok(http.StatusOK, Response{ID: entry.ID, View: view})
}

// SetKeypad handles PUT /sessions/{id}/keypad.
func (h *Handler) SetKeypad(w http.ResponseWriter, r *http.Request) {
	q := h.begin(w, r, "keypad")
	defer q.span.End()

	var req KeypadRequest
	if !q.decode(&req) {
		return
	}

	var view calculator.View
	entry, ok := h.withSession(q, func(s *calculator.Session) error {
		if err := s.SetKeypad(req.Keypad); err != nil {
			return err
		}
		view = s.View()
		return nil
	})
	if !ok {
		return
	}
	q.ok(http.StatusOK, Response{ID: entry.ID, View: view})
}

// GetTheme handles GET /preferences/theme.
func (h *Handler) GetTheme(w http.ResponseWriter, r *http.Request) {
	q := h.begin(w, r, "get_theme")
	defer q.span.End()

	theme, err := storage.LoadTheme(h.prefs)
	if err != nil {
		observability.RecordError(q.r.Context(), q.span, q.logger, errorCounter, q.op, "loading theme failed", err, http.StatusInternalServerError, w)
		return
	}
	q.ok(http.StatusOK, ThemeBody{Theme: theme})
}

// PutTheme handles PUT /preferences/theme.
func (h *Handler) PutTheme(w http.ResponseWriter, r *http.Request) {
	q := h.begin(w, r, "put_theme")
	defer q.span.End()

	var req ThemeBody
	if !q.decode(&req) {
		return
	}
	if req.Theme != storage.ThemeLight && req.Theme != storage.ThemeDark {
		observability.RecordError(q.r.Context(), q.span, q.logger, errorCounter, q.op, "unknown theme",
			fmt.Errorf("theme %q", req.Theme), http.StatusBadRequest, w)
		return
	}
	if err := storage.SaveTheme(h.prefs, req.Theme); err != nil {
		observability.RecordError(q.r.Context(), q.span, q.logger, errorCounter, q.op, "saving theme failed", err, http.StatusInternalServerError, w)
		return
	}

	q.logger.Info("theme changed", zap.String("theme", string(req.Theme)))
	q.ok(http.StatusOK, req)
}

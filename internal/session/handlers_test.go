package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"go-chi-calculator/internal/storage"
	"go-chi-calculator/internal/testutil"
)

type apiFixture struct {
	t        *testing.T
	router   http.Handler
	registry *Registry
}

func newAPI(t *testing.T, cfg Config) *apiFixture {
	t.Helper()
	if cfg.TTL == 0 {
		cfg.TTL = time.Minute
	}
	cfg.CleanupInterval = time.Hour
	if cfg.Store == nil {
		cfg.Store = storage.NewMemoryStore()
	}

	reg := NewRegistry(cfg)
	t.Cleanup(func() { _ = reg.Close() })

	r := chi.NewRouter()
	NewHandler(reg, storage.NewMemoryStore()).RegisterRoutes(r)
	return &apiFixture{t: t, router: r, registry: reg}
}

func (f *apiFixture) do(method, path, body string) *httptest.ResponseRecorder {
	f.t.Helper()
	return testutil.ExecuteRequest(testutil.NewJSONRequest(method, path, body), f.router)
}

func (f *apiFixture) create() string {
	f.t.Helper()
	w := f.do(http.MethodPost, "/sessions", "")
	testutil.CheckResponseCode(f.t, http.StatusCreated, w.Code)

	var resp Response
	testutil.DecodeJSONBody(f.t, w.Body, &resp)
	if resp.ID == "" {
		f.t.Fatal("expected session id")
	}
	return resp.ID
}

func (f *apiFixture) keys(id string, keys ...string) Response {
	f.t.Helper()
	body := `{"keys":["` + strings.Join(keys, `","`) + `"]}`
	w := f.do(http.MethodPost, "/sessions/"+id+"/keys", body)
	testutil.CheckResponseCode(f.t, http.StatusOK, w.Code)

	var resp Response
	testutil.DecodeJSONBody(f.t, w.Body, &resp)
	return resp
}

func TestCreateSession(t *testing.T) {
	f := newAPI(t, Config{})

	w := f.do(http.MethodPost, "/sessions", `{"keypad":"scientific"}`)
	testutil.CheckResponseCode(t, http.StatusCreated, w.Code)

	var resp Response
	testutil.DecodeJSONBody(t, w.Body, &resp)
	if resp.View.Display != "0" || resp.View.State != "start" {
		t.Fatalf("unexpected initial view %+v", resp.View)
	}
	if resp.View.Keypad != "scientific" {
		t.Fatalf("expected scientific keypad, got %q", resp.View.Keypad)
	}

	w = f.do(http.MethodGet, "/sessions/"+resp.ID, "")
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)
}

func TestCreateSessionRejectsUnknownKeypad(t *testing.T) {
	f := newAPI(t, Config{})

	w := f.do(http.MethodPost, "/sessions", `{"keypad":"hex"}`)
	testutil.CheckResponseCode(t, http.StatusBadRequest, w.Code)
	if f.registry.Len() != 0 {
		t.Fatalf("expected failed session to be dropped, got %d", f.registry.Len())
	}
}

func TestCreateSessionRateLimited(t *testing.T) {
	f := newAPI(t, Config{CreateRate: 0.001, CreateBurst: 1})
	f.create()

	w := f.do(http.MethodPost, "/sessions", "")
	testutil.CheckResponseCode(t, http.StatusTooManyRequests, w.Code)
	if msg := testutil.ErrorMessage(t, w.Body); msg != ErrLimited.Error() {
		t.Fatalf("expected %q, got %q", ErrLimited.Error(), msg)
	}
}

func TestKeysComputeAndRecordHistory(t *testing.T) {
	f := newAPI(t, Config{})
	id := f.create()

	resp := f.keys(id, "1", "2", "+", "3")
	if resp.View.Calculation != "12 + 3" {
		t.Fatalf("expected calculation line %q, got %q", "12 + 3", resp.View.Calculation)
	}

	resp = f.keys(id, "=")
	if resp.View.Display != "15" || resp.View.State != "complete" {
		t.Fatalf("unexpected view %+v", resp.View)
	}

	w := f.do(http.MethodGet, "/sessions/"+id+"/history", "")
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)

	var hist HistoryResponse
	testutil.DecodeJSONBody(t, w.Body, &hist)
	if len(hist.Entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(hist.Entries))
	}
	if hist.Entries[0].Text != "12 + 3 = 15" || hist.Entries[0].Result != 15 {
		t.Fatalf("unexpected entry %+v", hist.Entries[0])
	}
}

func TestKeysCalculationErrorIsShownNotFailed(t *testing.T) {
	f := newAPI(t, Config{})
	id := f.create()

	resp := f.keys(id, "1", "/", ".", "0", "=")
	if resp.View.Error != "Can't divide by zero" {
		t.Fatalf("expected divide-by-zero indicator, got %+v", resp.View)
	}

	resp = f.keys(id, "4", "=")
	if resp.View.Error != "" || resp.View.Display != "0.25" {
		t.Fatalf("expected recovery to 0.25, got %+v", resp.View)
	}
}

func TestKeysExpressionMode(t *testing.T) {
	f := newAPI(t, Config{})
	id := f.create()

	resp := f.keys(id, "(", "2", "+", "3", ")", "*", "4")
	if !resp.View.ExpressionMode || resp.View.Display != "(2+3)*4" {
		t.Fatalf("unexpected expression view %+v", resp.View)
	}

	resp = f.keys(id, "=")
	if resp.View.ExpressionMode || resp.View.Display != "20" {
		t.Fatalf("unexpected result view %+v", resp.View)
	}
}

func TestKeysBadRequests(t *testing.T) {
	f := newAPI(t, Config{})
	id := f.create()

	tests := map[string]string{
		"unknown key":  `{"keys":["7","mod"]}`,
		"no keys":      `{"keys":[]}`,
		"invalid json": `{"keys":`,
		"too many":     `{"keys":["1"` + strings.Repeat(`,"1"`, MaxKeysPerRequest) + `]}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/sessions/"+id+"/keys", body)
			testutil.CheckResponseCode(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestUnknownSessionReturnsNotFound(t *testing.T) {
	f := newAPI(t, Config{})

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/sessions/missing", ""},
		{http.MethodDelete, "/sessions/missing", ""},
		{http.MethodPost, "/sessions/missing/keys", `{"keys":["1"]}`},
		{http.MethodGet, "/sessions/missing/history", ""},
		{http.MethodPost, "/sessions/missing/angle", ""},
	} {
		w := f.do(tc.method, tc.path, tc.body)
		testutil.CheckResponseCode(t, http.StatusNotFound, w.Code)
	}
}

func TestRestoreHistoryEntry(t *testing.T) {
	f := newAPI(t, Config{})
	id := f.create()
	f.keys(id, "6", "*", "7", "=", "C")

	w := f.do(http.MethodPost, "/sessions/"+id+"/history/0/restore", "")
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)

	var resp Response
	testutil.DecodeJSONBody(t, w.Body, &resp)
	if resp.View.Display != "42" || resp.View.State != "complete" {
		t.Fatalf("unexpected view %+v", resp.View)
	}

	w = f.do(http.MethodPost, "/sessions/"+id+"/history/3/restore", "")
	testutil.CheckResponseCode(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/sessions/"+id+"/history/first/restore", "")
	testutil.CheckResponseCode(t, http.StatusBadRequest, w.Code)
}

func TestClearHistory(t *testing.T) {
	f := newAPI(t, Config{})
	id := f.create()
	f.keys(id, "1", "+", "1", "=")

	w := f.do(http.MethodDelete, "/sessions/"+id+"/history", "")
	testutil.CheckResponseCode(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodGet, "/sessions/"+id+"/history", "")
	var hist HistoryResponse
	testutil.DecodeJSONBody(t, w.Body, &hist)
	if len(hist.Entries) != 0 {
		t.Fatalf("expected empty history, got %+v", hist.Entries)
	}
}

func TestToggleAngleAndKeypad(t *testing.T) {
	f := newAPI(t, Config{})
	id := f.create()

	w := f.do(http.MethodPost, "/sessions/"+id+"/angle", "")
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)
	var resp Response
	testutil.DecodeJSONBody(t, w.Body, &resp)
	if resp.View.Angle != "rad" {
		t.Fatalf("expected rad, got %q", resp.View.Angle)
	}

	w = f.do(http.MethodPut, "/sessions/"+id+"/keypad", `{"keypad":"scientific"}`)
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)
	testutil.DecodeJSONBody(t, w.Body, &resp)
	if resp.View.Keypad != "scientific" {
		t.Fatalf("expected scientific keypad, got %q", resp.View.Keypad)
	}

	w = f.do(http.MethodPut, "/sessions/"+id+"/keypad", `{"keypad":"hex"}`)
	testutil.CheckResponseCode(t, http.StatusBadRequest, w.Code)
	if msg := testutil.ErrorMessage(t, w.Body); msg == "" {
		t.Fatal("expected an error message")
	}
}

func TestDeleteSession(t *testing.T) {
	f := newAPI(t, Config{})
	id := f.create()

	w := f.do(http.MethodDelete, "/sessions/"+id, "")
	testutil.CheckResponseCode(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodGet, "/sessions/"+id, "")
	testutil.CheckResponseCode(t, http.StatusNotFound, w.Code)
}

func TestBusySessionReturnsConflict(t *testing.T) {
	power := &blockingPower{started: make(chan struct{}), release: make(chan struct{})}
	f := newAPI(t, Config{Power: power})
	id := f.create()
	f.keys(id, "2", "^", "3")

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := testutil.NewJSONRequest(http.MethodPost, "/sessions/"+id+"/keys", `{"keys":["="]}`)
		done <- testutil.ExecuteRequest(req, f.router)
	}()

	<-power.started
	w := f.do(http.MethodPost, "/sessions/"+id+"/keys", `{"keys":["1"]}`)
	testutil.CheckResponseCode(t, http.StatusConflict, w.Code)

	close(power.release)
	first := <-done
	testutil.CheckResponseCode(t, http.StatusOK, first.Code)

	var resp Response
	testutil.DecodeJSONBody(t, first.Body, &resp)
	if resp.View.Display != "8" {
		t.Fatalf("expected 8, got %q", resp.View.Display)
	}
}

func TestThemePreference(t *testing.T) {
	f := newAPI(t, Config{})

	w := f.do(http.MethodGet, "/preferences/theme", "")
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)
	var body ThemeBody
	testutil.DecodeJSONBody(t, w.Body, &body)
	if body.Theme != storage.ThemeLight {
		t.Fatalf("expected light, got %q", body.Theme)
	}

	w = f.do(http.MethodPut, "/preferences/theme", `{"theme":"dark"}`)
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/preferences/theme", "")
	testutil.DecodeJSONBody(t, w.Body, &body)
	if body.Theme != storage.ThemeDark {
		t.Fatalf("expected dark, got %q", body.Theme)
	}

	w = f.do(http.MethodPut, "/preferences/theme", `{"theme":"neon"}`)
	testutil.CheckResponseCode(t, http.StatusBadRequest, w.Code)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-companion/internal/clock"
	"github.com/celerix-dev/celerix-companion/internal/engage"
	"github.com/celerix-dev/celerix-companion/internal/llm"
	"github.com/celerix-dev/celerix-companion/internal/persona"
	"github.com/celerix-dev/celerix-companion/pkg/schema"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type neverHook struct{}

func (neverHook) Float64() float64 { return 0.99 }
func (neverHook) IntN(int) int     { return 0 }

type testEnv struct {
	router *gin.Engine
	clock  *clock.Fake
	genErr error
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog, err := persona.Default()
	if err != nil {
		t.Fatalf("Default personas: %v", err)
	}

	env := &testEnv{clock: clock.NewFake(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))}
	gen := llm.GeneratorFunc(func(_ context.Context, req llm.Request) (string, error) {
		if env.genErr != nil {
			return "", env.genErr
		}
		return "Merhaba, ben buradayım!", nil
	})

	e, err := engage.New(engage.Config{DailyLimit: 3}, engage.Deps{
		Personas:  catalog,
		Generator: gen,
		Clock:     env.clock,
		Zone:      clock.FixedZone("Europe/Istanbul", 180),
		Rand:      neverHook{},
	})
	if err != nil {
		t.Fatalf("engage.New: %v", err)
	}

	h := &Handler{Engine: e, Log: zap.NewNop()}
	env.router = NewRouter(h, NewClientLimiter(1000, 1000))
	return env
}

func postChat(r http.Handler, body any, headers map[string]string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", "/chat", bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t)

	req, _ := http.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Body.String() != `{"ok":true}` {
		t.Errorf("Unexpected body: %s", w.Body.String())
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected a request id header")
	}
}

func TestChat_Reply(t *testing.T) {
	env := setupTestRouter(t)

	w := postChat(env.router, schema.ChatRequest{Message: "selam", Character: "lina", ClientKey: "k1"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp schema.ChatResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.OK || resp.Reply != "Merhaba, ben buradayim!" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if resp.Remaining != 2 || resp.LockedUntilMs != 0 || resp.Silent {
		t.Errorf("Unexpected metadata: %+v", resp)
	}
	if resp.Phase != "tanisma" {
		t.Errorf("Expected phase tanisma, got %q", resp.Phase)
	}
}

func TestChat_ClientKeyFromHeader(t *testing.T) {
	env := setupTestRouter(t)

	w := postChat(env.router, schema.ChatRequest{Message: "selam"}, map[string]string{ClientKeyHeader: "hdr"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	req, _ := http.NewRequest("GET", "/status?clientKey=hdr&character=lina", nil)
	sw := httptest.NewRecorder()
	env.router.ServeHTTP(sw, req)

	var st schema.StatusResponse
	json.Unmarshal(sw.Body.Bytes(), &st)
	if st.Remaining != 2 {
		t.Errorf("Expected 2 remaining for header client, got %d", st.Remaining)
	}
}

func TestChat_Exhausted(t *testing.T) {
	env := setupTestRouter(t)
	for i := 0; i < 3; i++ {
		postChat(env.router, schema.ChatRequest{Message: "selam", ClientKey: "k2"}, nil)
	}

	w := postChat(env.router, schema.ChatRequest{Message: "selam", ClientKey: "k2"}, nil)
	var resp schema.ChatResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Remaining != 0 || resp.Reply != engage.ExhaustedLine {
		t.Errorf("Expected exhausted response, got %+v", resp)
	}
}

func TestChat_ProviderFailure(t *testing.T) {
	env := setupTestRouter(t)
	env.genErr = errors.New("provider down")

	w := postChat(env.router, schema.ChatRequest{Message: "selam", ClientKey: "k3"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on provider failure, got %d", w.Code)
	}
	var resp schema.ChatResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.OK || resp.Reply != engage.FallbackLine || resp.Remaining != 3 {
		t.Errorf("Expected fallback with untouched quota, got %+v", resp)
	}
}

func TestChat_Validation(t *testing.T) {
	env := setupTestRouter(t)

	tests := []struct {
		name string
		body any
		want string
	}{
		{"empty message", schema.ChatRequest{ClientKey: "k"}, "Mesaj bos olamaz."},
		{"missing client key", schema.ChatRequest{Message: "selam"}, engage.ErrMissingClientKey.Error()},
		{"unknown persona", schema.ChatRequest{Message: "selam", ClientKey: "k", Character: "nobody"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postChat(env.router, tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", w.Code)
			}
			var resp schema.ErrorResponse
			json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.OK || resp.Error == "" {
				t.Errorf("Unexpected error body: %+v", resp)
			}
			if tt.want != "" && resp.Error != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, resp.Error)
			}
		})
	}
}

func TestChat_InvalidJSON(t *testing.T) {
	env := setupTestRouter(t)

	req, _ := http.NewRequest("POST", "/chat", bytes.NewBufferString("invalid"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestStatus_RequiresClientKey(t *testing.T) {
	env := setupTestRouter(t)

	req, _ := http.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestGetPersonas(t *testing.T) {
	env := setupTestRouter(t)

	req, _ := http.NewRequest("GET", "/api/personas", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	var list []schema.PersonaSummary
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 3 || list[1].ID != "lina" || list[1].Hour != 21 {
		t.Errorf("Unexpected personas: %+v", list)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestRouter(t)

	req, _ := http.NewRequest("OPTIONS", "/chat", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS header")
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/limited", RateLimit(NewClientLimiter(0.001, 2)), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := []int{}
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest("GET", "/limited", nil)
		req.Header.Set(ClientKeyHeader, "spammer")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected [200 200 429], got %v", codes)
	}

	req, _ := http.NewRequest("GET", "/limited", nil)
	req.Header.Set(ClientKeyHeader, "someone-else")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Other clients must not share a bucket, got %d", w.Code)
	}
}

func TestClientLimiter_Prune(t *testing.T) {
	l := NewClientLimiter(1, 1)
	l.pruneAt = 2
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("b")
	now = now.Add(time.Hour)
	l.Allow("c")

	if len(l.clients) != 1 {
		t.Errorf("Expected idle buckets pruned, have %d", len(l.clients))
	}
}

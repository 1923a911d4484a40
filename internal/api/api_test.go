package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/iskan70/my-logistic-bot/internal/messaging"
	"github.com/iskan70/my-logistic-bot/internal/models"
	"github.com/iskan70/my-logistic-bot/internal/store"
	"github.com/iskan70/my-logistic-bot/internal/twiliowhatsapp"
)

// decodeEnvelope parses the JSON envelope and returns its result as a generic map.
func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) (models.APIResponse, map[string]interface{}) {
	t.Helper()
	var env models.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	result, _ := env.Result.(map[string]interface{})
	return env, result
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	rr := doRequest(t, NewServer().Handler(), http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	env, _ := decodeEnvelope(t, rr)
	if env.Status != "ok" {
		t.Errorf("expected status ok, got %q", env.Status)
	}
}

func TestCalcHandler(t *testing.T) {
	h := NewServer().Handler()

	tests := []struct {
		name  string
		body  string
		code  int
		total string
		vat   string
	}{
		{"explicit vat", `{"price":"100","duty_percent":"5","vat_percent":"16"}`, http.StatusOK, "21.80", "16.80"},
		{"region", `{"price":"1000","duty_percent":"12,5","region":"ru"}`, http.StatusOK, "372.50", "247.50"},
		{"unknown region", `{"price":"1000","duty_percent":"5","region":"mars"}`, http.StatusBadRequest, "", ""},
		{"bad price", `{"price":"-1","duty_percent":"5","vat_percent":"16"}`, http.StatusBadRequest, "", ""},
		{"no vat", `{"price":"100","duty_percent":"5"}`, http.StatusBadRequest, "", ""},
		{"bad json", `{`, http.StatusBadRequest, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, h, http.MethodPost, "/api/customs/calc", tt.body)
			if rr.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, rr.Code, rr.Body.String())
			}
			env, result := decodeEnvelope(t, rr)
			if tt.code != http.StatusOK {
				if env.Status != "error" || env.Message == "" {
					t.Errorf("expected an error envelope, got %+v", env)
				}
				return
			}
			if result["total"] != tt.total || result["vat"] != tt.vat {
				t.Errorf("unexpected result %v", result)
			}
		})
	}
}

func TestCalcHandlerMethodNotAllowed(t *testing.T) {
	rr := doRequest(t, NewServer().Handler(), http.MethodGet, "/api/customs/calc", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func TestStatsHandler(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	for i, kind := range []string{"ЗАКАЗ", "ЗАКАЗ", "AI_АНАЛИЗ"} {
		if err := st.AddSubmission(ctx, store.Submission{ID: string(rune('a' + i)), Kind: kind, Columns: []string{kind}, CreatedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}

	rr := doRequest(t, NewServer(WithStats(st)).Handler(), http.MethodGet, "/api/stats", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	_, result := decodeEnvelope(t, rr)
	if result["total_submissions"] != float64(3) {
		t.Errorf("expected 3 submissions, got %v", result["total_submissions"])
	}
	byKind, _ := result["submissions_by_kind"].(map[string]interface{})
	if byKind["ЗАКАЗ"] != float64(2) || byKind["AI_АНАЛИЗ"] != float64(1) {
		t.Errorf("unexpected counts %v", byKind)
	}
	recent, _ := result["recent_submissions"].([]interface{})
	if len(recent) != 3 {
		t.Fatalf("expected 3 recent submissions, got %v", result["recent_submissions"])
	}
	if first, _ := recent[0].(map[string]interface{}); first["kind"] != "AI_АНАЛИЗ" {
		t.Errorf("expected the newest record first, got %v", recent[0])
	}

	rr = doRequest(t, NewServer(WithStats(st)).Handler(), http.MethodGet, "/api/stats?recent=1", "")
	_, result = decodeEnvelope(t, rr)
	if recent, _ := result["recent_submissions"].([]interface{}); len(recent) != 1 {
		t.Errorf("expected 1 recent submission, got %v", result["recent_submissions"])
	}

	rr = doRequest(t, NewServer(WithStats(st)).Handler(), http.MethodGet, "/api/stats?recent=0", "")
	_, result = decodeEnvelope(t, rr)
	if recent, ok := result["recent_submissions"].([]interface{}); !ok || len(recent) != 0 {
		t.Errorf("expected an empty list, got %v", result["recent_submissions"])
	}

	for _, q := range []string{"x", "-1", "101"} {
		rr = doRequest(t, NewServer(WithStats(st)).Handler(), http.MethodGet, "/api/stats?recent="+q, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("recent=%s: expected 400, got %d", q, rr.Code)
		}
	}
}

func TestStatsNotMountedWithoutStore(t *testing.T) {
	rr := doRequest(t, NewServer().Handler(), http.MethodGet, "/api/stats", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rr := doRequest(t, NewServer().Handler(), http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Error("expected Prometheus exposition output")
	}
}

func TestTwilioWebhookRoute(t *testing.T) {
	svc := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	h := NewServer(WithTwilioWebhook(svc.TwilioWebhookHandler)).Handler()

	form := url.Values{"From": {"whatsapp:+77011234567"}, "Body": {"/start"}, "MessageSid": {"SM1"}}
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	select {
	case resp := <-svc.Responses():
		if resp.Body != "/start" || resp.MessageID != "SM1" {
			t.Errorf("unexpected response %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook did not emit a response")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewServer(WithAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(ShutdownTimeout):
		t.Fatal("server did not stop")
	}
}

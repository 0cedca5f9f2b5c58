package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	"github.com/khanhnv2901/secprobe/internal/probe"
)

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *JobManager) {
	t.Helper()
	runner := newTestRunner(t)
	jobs := NewJobManager(runner, zaptest.NewLogger(t))
	cfg := Config{Runner: runner, Jobs: jobs, Logger: zaptest.NewLogger(t)}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := NewServer(cfg)
	t.Cleanup(func() {
		srv.Close()
		_ = jobs.Close(context.Background())
	})
	return srv, jobs
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusCreated, map[string]string{"status": "ok"})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected application/json content-type, got %s", got)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestWriteErrorInternal(t *testing.T) {
	s := &Server{cfg: Config{Logger: zaptest.NewLogger(t)}}

	rr := httptest.NewRecorder()
	s.writeError(rr, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusInternalServerError, errors.New("boom"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "internal server error") || strings.Contains(rr.Body.String(), "boom") {
		t.Fatalf("expected sanitized message, got %s", rr.Body.String())
	}
}

func TestWriteErrorClient(t *testing.T) {
	s := &Server{}
	rr := httptest.NewRecorder()
	s.writeError(rr, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusBadRequest, errors.New("bad input"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "bad input") {
		t.Fatalf("expected original error message, got %s", rr.Body.String())
	}
}

func TestWriteStreamChunk(t *testing.T) {
	s := &Server{}
	rr := httptest.NewRecorder()
	if !s.writeStreamChunk(rr, []byte("hello")) {
		t.Fatal("expected writeStreamChunk to succeed")
	}
	if rr.Body.String() != "hello" {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}

	if s.writeStreamChunk(&failingWriter{}, []byte("fail")) {
		t.Fatalf("expected writeStreamChunk to fail")
	}
}

type failingWriter struct{}

func (f *failingWriter) Header() http.Header { return http.Header{} }
func (f *failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("write failed")
}
func (f *failingWriter) WriteHeader(statusCode int) {}

func TestHealthAndRequestID(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := do(t, srv, http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health response %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}

	rr = do(t, srv, http.MethodPost, "/api/health", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestListProbes(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := do(t, srv, http.MethodGet, "/api/security/probes", "")
	var items []ProbeInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 3 || items[0].Name != "alpha" || items[2].Batch {
		t.Fatalf("unexpected probe listing %+v", items)
	}
}

func TestRunSingleProbe(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := do(t, srv, http.MethodPost, "/api/security/test/alpha", `{"targetUrl":"https://vuln.example.com"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var rep report.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.TestName != "alpha test" || rep.Status != report.StatusVulnerable || len(rep.Findings) != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if !strings.Contains(rr.Body.String(), `"vulnerabilities"`) {
		t.Fatalf("expected vulnerabilities key, got %s", rr.Body.String())
	}
}

func TestRunSingleProbeErrors(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	if rr := do(t, srv, http.MethodPost, "/api/security/test/nope", `{}`); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown probe, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/api/security/test/alpha", `{not json`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/security/test/alpha", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}

	// Input errors are carried in the report, not the HTTP status.
	rr := do(t, srv, http.MethodPost, "/api/security/test/alpha", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var rep report.Report
	_ = json.Unmarshal(rr.Body.Bytes(), &rep)
	if rep.Status != report.StatusError || !strings.Contains(rep.Error, "target URL") {
		t.Fatalf("expected error report, got %s / %q", rep.Status, rep.Error)
	}

	big := `{"targetUrl":"` + strings.Repeat("a", 2<<20) + `"}`
	if rr := do(t, srv, http.MethodPost, "/api/security/test/alpha", big); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", rr.Code)
	}
}

func TestRunAllEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := do(t, srv, http.MethodPost, "/api/security/run-all", `{"targetUrl":"https://ok.example.com"}`)
	var reports []report.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &reports); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 batch reports, got %d", len(reports))
	}
	for _, r := range reports {
		if r.Status != report.StatusProtected {
			t.Fatalf("expected protected, got %s", r.Status)
		}
	}
}

func TestJobEndpoints(t *testing.T) {
	srv, jobs := newTestServer(t, nil)

	rr := do(t, srv, http.MethodPost, "/api/jobs", `{"type":"run-all","params":{"targetUrl":"https://ok.example.com"}}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var job Job
	if err := json.Unmarshal(rr.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	waitForJob(t, jobs, job.ID, JobDone)

	rr = do(t, srv, http.MethodGet, "/api/jobs/"+job.ID, "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"done"`) {
		t.Fatalf("unexpected job response %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/api/jobs?limit=5", "")
	var list []Job
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("expected one job, got %d (%v)", len(list), err)
	}

	if rr := do(t, srv, http.MethodGet, "/api/jobs/missing", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/api/jobs", `{"type":"nope"}`); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job type, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/api/jobs", `{}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing job type, got %d", rr.Code)
	}
}

func TestJobStream(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/jobs-stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %s", ct)
	}

	post, err := http.Post(ts.URL+"/api/jobs", "application/json",
		strings.NewReader(`{"type":"gamma","params":{"targetUrl":"https://ok.example.com"}}`))
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	post.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "data: ") {
			var job Job
			if err := json.Unmarshal([]byte(strings.TrimPrefix(scanner.Text(), "data: ")), &job); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			if job.Type != "gamma" {
				t.Fatalf("unexpected job event %+v", job)
			}
			return
		}
	}
	t.Fatalf("stream ended without an event: %v", scanner.Err())
}

func TestAuthToken(t *testing.T) {
	srv, _ := newTestServer(t, func(c *Config) { c.AuthToken = "s3cret" })

	if rr := do(t, srv, http.MethodGet, "/api/health", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/health", "", "X-Auth-Token", "wrong"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/health", "", "X-Auth-Token", "s3cret"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, func(c *Config) {
		c.RateLimit = 1
		c.RateBurst = 1
	})

	if rr := do(t, srv, http.MethodGet, "/api/health", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/health", ""); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/health", "", "X-Forwarded-For", "203.0.113.9, 10.0.0.1"); rr.Code != http.StatusOK {
		t.Fatalf("expected a separate bucket per client, got %d", rr.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote    string
		forwarded string
		want      string
	}{
		{remote: "192.0.2.1:1234", want: "192.0.2.1"},
		{remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{remote: "192.0.2.1:1234", forwarded: "203.0.113.9, 10.0.0.1", want: "203.0.113.9"},
		{remote: "192.0.2.1:1234", forwarded: "198.51.100.7", want: "198.51.100.7"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remote
		if tt.forwarded != "" {
			r.Header.Set("X-Forwarded-For", tt.forwarded)
		}
		if got := clientIP(r); got != tt.want {
			t.Errorf("clientIP(%q, %q) = %q, want %q", tt.remote, tt.forwarded, got, tt.want)
		}
	}
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, func(c *Config) { c.CORSOrigins = []string{"https://ui.example.com"} })

	rr := do(t, srv, http.MethodOptions, "/api/security/run-all", "", "Origin", "https://ui.example.com")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://ui.example.com" {
		t.Fatalf("expected allowed origin, got %q", got)
	}

	rr = do(t, srv, http.MethodOptions, "/api/security/run-all", "", "Origin", "https://evil.example.com")
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin for untrusted origin, got %q", got)
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("secprobe_probe_runs_total 1\n"))
	})
	srv, _ := newTestServer(t, func(c *Config) { c.Metrics = metrics })

	rr := do(t, srv, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "secprobe_probe_runs_total") {
		t.Fatalf("unexpected metrics response %d %s", rr.Code, rr.Body.String())
	}

	plain, _ := newTestServer(t, nil)
	if rr := do(t, plain, http.MethodGet, "/metrics", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics, got %d", rr.Code)
	}
}

func TestStatusFor(t *testing.T) {
	_, err := newTestRunner(t).RunOne(context.Background(), "nope", probe.Params{})
	if statusFor(err) != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown probe, got %d", statusFor(err))
	}
	if statusFor(errors.New("other")) != http.StatusInternalServerError {
		t.Fatal("expected 500 for unclassified errors")
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/covenant/pkg/config"
	"mercator-hq/covenant/pkg/evidence"
	"mercator-hq/covenant/pkg/evidence/recorder"
	"mercator-hq/covenant/pkg/policy/engine"
	"mercator-hq/covenant/pkg/telemetry/health"
	"mercator-hq/covenant/pkg/telemetry/logging"
	"mercator-hq/covenant/pkg/telemetry/metrics"
)

const encryptionPolicy = "Customer data must be encrypted at rest using AES-256 encryption."

type testServer struct {
	srv      *Server
	engine   *engine.Engine
	recorder *recorder.Recorder
	metrics  *metrics.Collector
}

func newTestServer(t *testing.T, mutate func(*config.ServerConfig)) *testServer {
	t.Helper()
	cfg := config.Default().Server
	if mutate != nil {
		mutate(&cfg)
	}
	rec := recorder.New(nil, nil, logging.Discard())
	col := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, nil)
	eng, err := engine.New(nil, rec, engine.WithLogger(logging.Discard()), engine.WithObserver(col))
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	srv, err := New(&cfg, Dependencies{
		Engine:   eng,
		Recorder: rec,
		Metrics:  col,
		Version:  health.NewVersionInfo("test", "none", "unknown"),
	}, logging.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testServer{srv: srv, engine: eng, recorder: rec, metrics: col}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	case []byte:
		r = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (ts *testServer) loadPolicy(t *testing.T) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/policies", PolicyUpload{Source: "security.txt", Text: encryptionPolicy})
	if rec.Code != http.StatusOK {
		t.Fatalf("upload code = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	cfg := config.Default().Server
	rec := recorder.New(nil, nil, logging.Discard())
	eng, err := engine.New(nil, rec, engine.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatal(err)
	}

	badTLS := cfg
	badTLS.TLS = config.TLSConfig{Enabled: true, CertFile: "server.crt"}

	tests := []struct {
		name string
		cfg  *config.ServerConfig
		deps Dependencies
	}{
		{"nil config", nil, Dependencies{Engine: eng, Recorder: rec}},
		{"nil engine", &cfg, Dependencies{Recorder: rec}},
		{"nil recorder", &cfg, Dependencies{Engine: eng}},
		{"tls without key", &badTLS, Dependencies{Engine: eng, Recorder: rec}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, tt.deps, nil); err == nil {
				t.Error("New() succeeded, want error")
			}
		})
	}
}

func TestEnforce(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.loadPolicy(t)

	tests := []struct {
		name     string
		body     string
		code     int
		approved bool
		status   string
	}{
		{
			name:     "approved",
			body:     `{"user_id":"alice","action":"process customer data","parameters":{"encryption_enabled":true}}`,
			code:     http.StatusOK,
			approved: true,
			status:   evidence.StatusApproved,
		},
		{
			name:   "blocked",
			body:   `{"user_id":"alice","action":"process customer data","parameters":{"encryption_enabled":false}}`,
			code:   http.StatusOK,
			status: evidence.StatusBlocked,
		},
		{
			name: "nested parameter",
			body: `{"user_id":"alice","action":"process customer data","parameters":{"encryption_enabled":{"v":true}}}`,
			code: http.StatusBadRequest,
		},
		{
			name: "unknown field",
			body: `{"user":"alice","action":"x"}`,
			code: http.StatusBadRequest,
		},
		{
			name: "not json",
			body: `approve me`,
			code: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/v1/enforce", tt.body)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d (body %s)", rec.Code, tt.code, rec.Body.String())
			}
			if tt.code != http.StatusOK {
				body := decode[ErrorBody](t, rec)
				if body.Error.Code != codeBadRequest {
					t.Errorf("error code = %q, want %q", body.Error.Code, codeBadRequest)
				}
				return
			}
			d := decode[engine.Decision](t, rec)
			if d.Approved != tt.approved || d.Status != tt.status {
				t.Errorf("decision = approved %v status %q, want %v %q", d.Approved, d.Status, tt.approved, tt.status)
			}
			if d.AuditEntry == nil || d.AuditEntry.RequestID != d.RequestID {
				t.Errorf("audit entry %+v does not match request %s", d.AuditEntry, d.RequestID)
			}
		})
	}

	if got := ts.recorder.Len(); got != 2 {
		t.Errorf("audit entries = %d, want 2", got)
	}
}

type failingTrail struct{}

func (failingTrail) Append(context.Context, *evidence.AuditEntry) error {
	return errors.New("disk full")
}

func (failingTrail) Snapshot() []evidence.AuditEntry { return nil }

func TestEnforceFailureIsNeverApproved(t *testing.T) {
	cfg := config.Default().Server
	eng, err := engine.New(nil, failingTrail{}, engine.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New(&cfg, Dependencies{Engine: eng, Recorder: recorder.New(nil, nil, logging.Discard())}, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/enforce",
		strings.NewReader(`{"user_id":"bob","action":"read"}`)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want 500", rec.Code)
	}
	body := decode[EnforcementFailure](t, rec)
	if body.Approved {
		t.Error("failed enforcement reported approved")
	}
	if body.Error.Code != codeEnforcement || !strings.Contains(body.Error.Message, "disk full") {
		t.Errorf("error = %+v", body.Error)
	}
	if body.DecisionID == "" || body.State == "" {
		t.Errorf("missing decision id or state: %+v", body)
	}
}

func TestPolicyLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/v1/policies", PolicyUpload{Text: encryptionPolicy})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("upload without source code = %d, want 400", rec.Code)
	}

	ts.loadPolicy(t)

	list := decode[PolicyList](t, ts.do(t, http.MethodGet, "/v1/policies", nil))
	if len(list.Sources) != 1 || list.Sources[0] != "security.txt" {
		t.Errorf("sources = %v, want [security.txt]", list.Sources)
	}
	if list.Summary.TotalRules != 1 || list.Version == "" {
		t.Errorf("list = %+v", list)
	}

	rules := decode[RuleList](t, ts.do(t, http.MethodGet, "/v1/rules?compliance_level=mandatory", nil))
	if rules.Total != 1 {
		t.Errorf("mandatory rules = %d, want 1", rules.Total)
	}
	rules = decode[RuleList](t, ts.do(t, http.MethodGet, "/v1/rules?source=other.txt", nil))
	if rules.Total != 0 {
		t.Errorf("rules of unknown source = %d, want 0", rules.Total)
	}

	if rec := ts.do(t, http.MethodDelete, "/v1/policies/security.txt", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete code = %d, want 204", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, "/v1/policies/security.txt", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete code = %d, want 404", rec.Code)
	}
	if got := len(ts.engine.Rules()); got != 0 {
		t.Errorf("rules after delete = %d, want 0", got)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.loadPolicy(t)
	version := ts.engine.Version()

	exported := ts.do(t, http.MethodGet, "/v1/rules/export", nil)
	if exported.Code != http.StatusOK {
		t.Fatalf("export code = %d", exported.Code)
	}
	doc := exported.Body.Bytes()

	yamlRec := ts.do(t, http.MethodGet, "/v1/rules/export?format=yaml", nil)
	if ct := yamlRec.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("yaml content type = %q", ct)
	}
	if rec := ts.do(t, http.MethodGet, "/v1/rules/export?format=xml", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("xml export code = %d, want 400", rec.Code)
	}

	artifactRec := ts.do(t, http.MethodGet, "/v1/rules/artifact", nil)
	if artifactRec.Code != http.StatusOK || !strings.Contains(artifactRec.Body.String(), "package ") {
		t.Errorf("artifact code = %d body %q", artifactRec.Code, artifactRec.Body.String())
	}

	if _, err := ts.engine.RemovePolicy("security.txt"); err != nil {
		t.Fatal(err)
	}

	imported := ts.do(t, http.MethodPost, "/v1/rules/import", doc)
	if imported.Code != http.StatusOK {
		t.Fatalf("import code = %d body %s", imported.Code, imported.Body.String())
	}
	res := decode[ImportResult](t, imported)
	if res.Imported != 1 || res.Version != version {
		t.Errorf("import = %+v, want 1 rule at version %s", res, version)
	}

	bad := ts.do(t, http.MethodPost, "/v1/rules/import", `{"format_version":"1.0.0"}`)
	if bad.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid document code = %d, want 422", bad.Code)
	}
}

func TestAuditEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.loadPolicy(t)
	for _, enabled := range []bool{true, false, false} {
		body := fmt.Sprintf(`{"user_id":"alice","action":"process customer data","parameters":{"encryption_enabled":%t}}`, enabled)
		if rec := ts.do(t, http.MethodPost, "/v1/enforce", body); rec.Code != http.StatusOK {
			t.Fatalf("enforce code = %d", rec.Code)
		}
	}

	page := decode[AuditPage](t, ts.do(t, http.MethodGet, "/v1/audit?approved=false&limit=1", nil))
	if page.Total != 2 || len(page.Entries) != 1 {
		t.Errorf("page = total %d entries %d, want 2 and 1", page.Total, len(page.Entries))
	}
	if rec := ts.do(t, http.MethodGet, "/v1/audit?limit=abc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit code = %d, want 400", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/v1/audit?order=sideways", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad order code = %d, want 400", rec.Code)
	}

	stats := decode[evidence.Stats](t, ts.do(t, http.MethodGet, "/v1/audit/stats", nil))
	if stats.Total != 3 || stats.Approved != 1 || stats.Blocked != 2 {
		t.Errorf("stats = %+v", stats)
	}

	verify := decode[VerifyResult](t, ts.do(t, http.MethodGet, "/v1/audit/verify", nil))
	if !verify.Valid || verify.Entries != 3 {
		t.Errorf("verify = %+v", verify)
	}

	csvRec := ts.do(t, http.MethodGet, "/v1/audit/export?format=csv", nil)
	if csvRec.Code != http.StatusOK || csvRec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("csv export code = %d type %q", csvRec.Code, csvRec.Header().Get("Content-Type"))
	}
	if lines := strings.Count(strings.TrimSpace(csvRec.Body.String()), "\n"); lines != 3 {
		t.Errorf("csv rows = %d, want 3 plus header", lines)
	}
	if rec := ts.do(t, http.MethodGet, "/v1/audit/export?format=pdf", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("pdf export code = %d, want 400", rec.Code)
	}
}

func TestProbesAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	if rec := ts.do(t, http.MethodGet, health.LivenessPath, nil); rec.Code != http.StatusOK {
		t.Errorf("liveness = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, health.ReadinessPath, nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness before load = %d, want 503", rec.Code)
	}
	ts.loadPolicy(t)
	if rec := ts.do(t, http.MethodGet, health.ReadinessPath, nil); rec.Code != http.StatusOK {
		t.Errorf("readiness after load = %d, want 200", rec.Code)
	}

	rec := ts.do(t, http.MethodGet, config.DefaultMetricsPath, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_http_requests_total") {
		t.Errorf("metrics missing http_requests_total:\n%s", rec.Body.String())
	}
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/v1/rules", nil)
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/rules", nil)
	req.Header.Set(RequestIDHeader, "client-id-1")
	rec = httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "client-id-1" {
		t.Errorf("request id = %q, want client-id-1", got)
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *config.ServerConfig) {
		c.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 2}
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, ts.do(t, http.MethodGet, "/v1/rules", nil).Code)
	}
	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}
	if rec := ts.do(t, http.MethodGet, health.LivenessPath, nil); rec.Code != http.StatusOK {
		t.Errorf("liveness under rate limit = %d, want 200", rec.Code)
	}
}

func TestBodyLimit(t *testing.T) {
	ts := newTestServer(t, func(c *config.ServerConfig) { c.MaxBodyBytes = 32 })

	body := PolicyUpload{Source: "big.txt", Text: strings.Repeat("Data must be encrypted. ", 10)}
	rec := ts.do(t, http.MethodPost, "/v1/policies", body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("code = %d, want 413", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	ts := newTestServer(t, nil)
	h := ts.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", rec.Code)
	}
	if body := decode[ErrorBody](t, rec); body.Error.Code != codeInternal {
		t.Errorf("error code = %q", body.Error.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	ts := newTestServer(t, func(c *config.ServerConfig) { c.ListenAddress = "127.0.0.1:0" })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for ts.srv.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	addr := ts.srv.Addr()
	if addr == nil {
		t.Fatal("server did not bind")
	}

	resp, err := http.Get("http://" + addr.String() + health.LivenessPath)
	if err != nil {
		t.Fatalf("GET liveness: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("liveness = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	if ts.srv.Running() {
		t.Error("server still running after shutdown")
	}
}

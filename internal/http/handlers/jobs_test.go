package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mangagen/internal/admission"
	"mangagen/internal/genai"
	"mangagen/internal/http/handlers"
	"mangagen/internal/http/httpapi"
	"mangagen/internal/infra"
	"mangagen/internal/jobstore"
	"mangagen/internal/runner"
	"mangagen/internal/storage"
)

type stubGenerator struct {
	generate func(ctx context.Context, prompt string) (*genai.Output, error)
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (*genai.Output, error) {
	if s.generate == nil {
		return &genai.Output{ImageURLs: []string{"data:image/png;base64,cG5n"}}, nil
	}
	return s.generate(ctx, prompt)
}

type testEnv struct {
	store   *jobstore.Memory
	gate    *admission.Gate
	handler http.Handler
}

// newTestEnv wires the full API in queue-dispatch mode so job execution is
// driven deterministically through the worker ingress.
func newTestEnv(t *testing.T, gen *stubGenerator) *testEnv {
	t.Helper()
	store := jobstore.NewMemory()
	gate := admission.NewGate(90 * time.Second)
	blobs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	signer := storage.NewSigner("test-secret", "/v1/blobs")
	logger := zerolog.New(io.Discard)

	app := &handlers.App{
		Store:        store,
		Gate:         gate,
		Runner:       runner.New(store, gate, gen, blobs, time.Minute, logger),
		Blobs:        blobs,
		Signer:       signer,
		Logger:       logger,
		DispatchMode: infra.DispatchQueue,
		BlobURLTTL:   5 * time.Minute,
	}
	return &testEnv{store: store, gate: gate, handler: httpapi.NewRouter(app, 0)}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:51000"
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func validSubmission() map[string]any {
	return map[string]any{
		"url":      "https://city.example.jp/a",
		"title":    "児童手当",
		"summary":  "3行の説明。",
		"warnings": []string{"期限注意"},
	}
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestSubmitAndPollToDone(t *testing.T) {
	env := newTestEnv(t, &stubGenerator{})

	rec := env.do(t, http.MethodPost, "/v1/jobs", validSubmission())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d: %s", rec.Code, rec.Body.String())
	}
	submitted := decodeJSON[map[string]string](t, rec)
	jobID := submitted["jobId"]
	if jobID == "" {
		t.Fatal("no job id returned")
	}

	// Queue dispatch: the record stays queued until a worker delivers it.
	rec = env.do(t, http.MethodGet, "/v1/jobs/"+jobID, nil)
	status := decodeJSON[map[string]any](t, rec)
	if status["status"] != "queued" {
		t.Fatalf("status before processing = %v", status["status"])
	}

	rec = env.do(t, http.MethodPost, "/v1/process", map[string]any{"jobId": jobID})
	if rec.Code != http.StatusOK {
		t.Fatalf("process status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/v1/jobs/"+jobID, nil)
	status = decodeJSON[map[string]any](t, rec)
	if status["status"] != "done" || status["progress"].(float64) != 100 {
		t.Fatalf("final status = %v", status)
	}
	result := status["result"].(map[string]any)
	images := result["image_urls"].([]any)
	if len(images) != 1 {
		t.Fatalf("image urls = %v", images)
	}
	signed := images[0].(string)
	if !strings.HasPrefix(signed, "/v1/blobs/users/") || !strings.Contains(signed, "sig=") {
		t.Fatalf("image url not signed: %q", signed)
	}

	// The signed URL must actually serve the artifact.
	rec = env.do(t, http.MethodGet, signed, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("blob fetch = %d", rec.Code)
	}
	if rec.Body.String() != "png" {
		t.Fatalf("blob body = %q", rec.Body.String())
	}

	// Tampered signature is rejected.
	rec = env.do(t, http.MethodGet, strings.Replace(signed, "sig=", "sig=00", 1), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("tampered blob fetch = %d", rec.Code)
	}
}

func TestSubmitValidationCreatesNoRecord(t *testing.T) {
	env := newTestEnv(t, &stubGenerator{})

	body := validSubmission()
	delete(body, "summary")
	rec := env.do(t, http.MethodPost, "/v1/jobs", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeJSON[map[string]string](t, rec)
	if resp["errorCode"] != "validation_error" {
		t.Fatalf("errorCode = %q", resp["errorCode"])
	}

	// No record may exist: purging everything must find nothing.
	n, err := env.store.DeleteExpired(context.Background(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("records created by rejected submission: %d", n)
	}
}

func TestSubmitConcurrentRejected(t *testing.T) {
	env := newTestEnv(t, &stubGenerator{})

	if rec := env.do(t, http.MethodPost, "/v1/jobs", validSubmission()); rec.Code != http.StatusAccepted {
		t.Fatalf("first submit = %d", rec.Code)
	}

	other := validSubmission()
	other["url"] = "https://city.example.jp/b"
	rec := env.do(t, http.MethodPost, "/v1/jobs", other)
	if rec.Code != http.StatusConflict {
		t.Fatalf("different-url submit = %d", rec.Code)
	}
	resp := decodeJSON[map[string]string](t, rec)
	if resp["errorCode"] != "concurrent" {
		t.Fatalf("errorCode = %q", resp["errorCode"])
	}

	// Same-url resubmission is the tolerated retry path.
	if rec := env.do(t, http.MethodPost, "/v1/jobs", validSubmission()); rec.Code != http.StatusAccepted {
		t.Fatalf("same-url resubmit = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStatusLocalizedErrorMessages(t *testing.T) {
	env := newTestEnv(t, &stubGenerator{generate: func(ctx context.Context, prompt string) (*genai.Output, error) {
		return nil, &genai.RateLimitError{Status: 429, Message: "quota exceeded"}
	}})

	rec := env.do(t, http.MethodPost, "/v1/jobs", validSubmission())
	jobID := decodeJSON[map[string]string](t, rec)["jobId"]
	env.do(t, http.MethodPost, "/v1/process", map[string]any{"jobId": jobID})

	// Default locale is Japanese.
	rec = env.do(t, http.MethodGet, "/v1/jobs/"+jobID, nil)
	status := decodeJSON[map[string]any](t, rec)
	if status["errorCode"] != "rate_limited" {
		t.Fatalf("errorCode = %v", status["errorCode"])
	}
	if msg := status["error"].(string); !strings.Contains(msg, "混み合っています") {
		t.Fatalf("japanese message = %q", msg)
	}
	// The fallback result is attached for rendering.
	if status["result"] == nil {
		t.Fatal("error status missing fallback result")
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+jobID, nil)
	req.RemoteAddr = "203.0.113.7:51000"
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	rec2 := httptest.NewRecorder()
	env.handler.ServeHTTP(rec2, req)
	status = decodeJSON[map[string]any](t, rec2)
	if msg := status["error"].(string); !strings.Contains(msg, "busy") {
		t.Fatalf("english message = %q", msg)
	}
}

func TestStatusNotFoundAfterEviction(t *testing.T) {
	env := newTestEnv(t, &stubGenerator{})

	rec := env.do(t, http.MethodPost, "/v1/jobs", validSubmission())
	jobID := decodeJSON[map[string]string](t, rec)["jobId"]
	env.do(t, http.MethodPost, "/v1/process", map[string]any{"jobId": jobID})

	// TTL expiry deletes the record regardless of terminal state.
	if _, err := env.store.DeleteExpired(context.Background(), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	rec = env.do(t, http.MethodGet, "/v1/jobs/"+jobID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status after eviction = %d", rec.Code)
	}
	resp := decodeJSON[map[string]string](t, rec)
	if resp["errorCode"] != "not_found" {
		t.Fatalf("errorCode = %q", resp["errorCode"])
	}
}

func TestProcessRedeliveryIsIdempotent(t *testing.T) {
	env := newTestEnv(t, &stubGenerator{})

	rec := env.do(t, http.MethodPost, "/v1/jobs", validSubmission())
	jobID := decodeJSON[map[string]string](t, rec)["jobId"]

	if rec := env.do(t, http.MethodPost, "/v1/process", map[string]any{"jobId": jobID}); rec.Code != http.StatusOK {
		t.Fatalf("first delivery = %d", rec.Code)
	}
	// Redelivery returns 200 and leaves the record untouched.
	rec = env.do(t, http.MethodPost, "/v1/process", map[string]any{"jobId": jobID})
	if rec.Code != http.StatusOK {
		t.Fatalf("redelivery = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/jobs/"+jobID, nil)
	status := decodeJSON[map[string]any](t, rec)
	if status["status"] != "done" {
		t.Fatalf("status after redelivery = %v", status["status"])
	}
}

func TestProcessUnknownJob(t *testing.T) {
	env := newTestEnv(t, &stubGenerator{})
	rec := env.do(t, http.MethodPost, "/v1/process", map[string]any{"jobId": "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUsageSnapshot(t *testing.T) {
	env := newTestEnv(t, &stubGenerator{})

	env.do(t, http.MethodPost, "/v1/jobs", validSubmission())
	rec := env.do(t, http.MethodGet, "/v1/usage", nil)
	usage := decodeJSON[map[string]any](t, rec)
	if usage["count"].(float64) != 1 {
		t.Fatalf("count = %v", usage["count"])
	}
	if usage["active"] != true {
		t.Fatalf("active = %v", usage["active"])
	}
}

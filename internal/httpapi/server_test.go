package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftscale/genbridge/internal/auth"
	"github.com/craftscale/genbridge/internal/config"
	"github.com/craftscale/genbridge/internal/objstore"
	"github.com/craftscale/genbridge/internal/queue"
	"github.com/craftscale/genbridge/internal/service"
	"github.com/craftscale/genbridge/internal/store"
)

type stubBroker struct {
	mu   sync.Mutex
	jobs map[string][]*queue.Job
}

func (b *stubBroker) Enqueue(ctx context.Context, queueName string, job *queue.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.jobs == nil {
		b.jobs = map[string][]*queue.Job{}
	}
	b.jobs[queueName] = append(b.jobs[queueName], job)
	return nil
}

func (b *stubBroker) Dequeue(ctx context.Context, queueName string) (*queue.Job, error) {
	return nil, nil
}

func (b *stubBroker) Ack(ctx context.Context, queueName string, job *queue.Job) error { return nil }

func (b *stubBroker) Depth(ctx context.Context, queueName string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.jobs[queueName])), nil
}

func (b *stubBroker) Close() error { return nil }

type stubAuth struct {
	tenant *Tenant
}

// Tenant aliases keep the test table readable.
type Tenant = auth.Tenant

func (s *stubAuth) Authenticate(ctx context.Context, apiKey string) (*Tenant, error) {
	if apiKey == "sf_valid" {
		return s.tenant, nil
	}
	return nil, fmt.Errorf("unknown key")
}

type stubRegistrar struct {
	result *auth.RegisterResult
	err    error
}

func (s *stubRegistrar) Register(ctx context.Context, in auth.RegisterInput) (*auth.RegisterResult, error) {
	return s.result, s.err
}

type testServer struct {
	srv    *Server
	http   http.Handler
	rows   *store.Memory
	broker *stubBroker
	tenant *Tenant
}

func newTestServer(t *testing.T, limits map[string]config.RateLimit) *testServer {
	t.Helper()
	rows := store.NewMemory()
	broker := &stubBroker{}
	svc := service.New(service.Options{
		Store:   rows,
		Objects: objstore.NewMemoryStore(),
		Broker:  broker,
	})
	tenant := &Tenant{ID: uuid.New(), Type: auth.TenantStorefront, Identifier: "shop.myshop.example.com", Active: true}
	srv := &Server{
		Svc:        svc,
		Auth:       &stubAuth{tenant: tenant},
		Registrar:  &stubRegistrar{result: &auth.RegisterResult{APIKey: "sf_new", TenantID: tenant.ID, TenantType: auth.TenantStorefront, Message: "Tenant registered"}},
		RateLimits: limits,
		Version:    "test",
	}
	return &testServer{srv: srv, http: srv.Routes(), rows: rows, broker: broker, tenant: tenant}
}

func (ts *testServer) post(t *testing.T, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-API-Key", "sf_valid")
	}
	rec := httptest.NewRecorder()
	ts.http.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) get(t *testing.T, path string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authed {
		req.Header.Set("X-API-Key", "sf_valid")
	}
	rec := httptest.NewRecorder()
	ts.http.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthEndpointsArePublic(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, path := range []string{"/", "/health", "/auth/health"} {
		rec := ts.get(t, path, false)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "healthy", decodeBody(t, rec)["status"], path)
	}
}

func TestGenerate_RequiresAPIKey(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.post(t, "/generate/text-to-image", map[string]any{"task_id": "t1"}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Missing API key", decodeBody(t, rec)["error"])

	req := httptest.NewRequest(http.MethodPost, "/generate/text-to-image", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("X-API-Key", "bogus")
	rec2 := httptest.NewRecorder()
	ts.http.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)
	assert.Equal(t, "Invalid or inactive API key", decodeBody(t, rec2)["error"])
}

func TestGenerate_TextToImageAccepted(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.post(t, "/generate/text-to-image", map[string]any{
		"task_id":  "t1",
		"provider": "provider_a",
		"prompt":   "a cat",
		"size":     "1024x1024",
	}, true)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	id := decodeBody(t, rec)["celery_task_id"]
	require.NotEmpty(t, id)

	row, err := ts.rows.GetByInternalTaskID(context.Background(), store.KindImage, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, row.Status)
	assert.Equal(t, ts.tenant.ID, row.TenantID)

	depth, _ := ts.broker.Depth(context.Background(), config.QueueDefault)
	assert.Equal(t, int64(1), depth)
}

func TestGenerate_ValidationFailures(t *testing.T) {
	ts := newTestServer(t, nil)

	cases := []struct {
		name    string
		path    string
		body    map[string]any
		wantMsg string
	}{
		{
			name:    "missing task_id",
			path:    "/generate/text-to-image",
			body:    map[string]any{"provider": "provider_a", "prompt": "x"},
			wantMsg: "task_id is required",
		},
		{
			name:    "unsupported provider",
			path:    "/generate/sketch-to-image",
			body:    map[string]any{"task_id": "t1", "provider": "provider_a", "input_sketch_asset_url": "http://in/s.png"},
			wantMsg: "provider not supported for endpoint; supported providers: provider_b",
		},
		{
			name:    "inpaint without mask",
			path:    "/generate/image-inpaint",
			body:    map[string]any{"task_id": "t1", "provider": "provider_b", "input_image_asset_url": "http://in/i.png", "prompt": "x"},
			wantMsg: "input_mask_asset_url is required",
		},
		{
			name:    "recolor without select_prompt",
			path:    "/generate/search-and-recolor",
			body:    map[string]any{"task_id": "t1", "provider": "provider_b", "input_image_asset_url": "http://in/i.png", "prompt": "blue"},
			wantMsg: "select_prompt is required",
		},
		{
			name:    "multiview gap",
			path:    "/generate/image-to-model",
			body:    map[string]any{"task_id": "t1", "provider": "provider_e", "input_image_asset_urls": []any{"http://in/front.png", nil, "http://in/back.png"}},
			wantMsg: "front view required and positions must be contiguous",
		},
		{
			name:    "multiview missing front",
			path:    "/generate/image-to-model",
			body:    map[string]any{"task_id": "t1", "provider": "provider_e", "input_image_asset_urls": []any{nil, "http://in/left.png"}},
			wantMsg: "front view required and positions must be contiguous",
		},
		{
			name:    "downscale out of range",
			path:    "/generate/downscale",
			body:    map[string]any{"task_id": "t1", "input_image_asset_url": "http://in/i.png", "max_size_mb": 50.0},
			wantMsg: "invalid value for: maxsizemb",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.post(t, tc.path, tc.body, true)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tc.wantMsg, decodeBody(t, rec)["error"])
		})
	}
}

func TestGenerate_MultiviewPrefixAccepted(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.post(t, "/generate/image-to-model", map[string]any{
		"task_id":                "t2",
		"provider":               "provider_e",
		"input_image_asset_urls": []any{"http://in/front.png", "http://in/left.png"},
	}, true)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	depth, _ := ts.broker.Depth(context.Background(), config.QueueAsyncOther)
	assert.Equal(t, int64(1), depth)
}

func TestGenerate_DuplicateTaskID(t *testing.T) {
	ts := newTestServer(t, nil)

	body := map[string]any{"task_id": "t1", "provider": "provider_a", "prompt": "a cat"}
	first := ts.post(t, "/generate/text-to-image", body, true)
	require.Equal(t, http.StatusAccepted, first.Code)

	second := ts.post(t, "/generate/text-to-image", body, true)
	require.Equal(t, http.StatusAccepted, second.Code)
	assert.Equal(t, decodeBody(t, first)["celery_task_id"], decodeBody(t, second)["celery_task_id"])

	depth, _ := ts.broker.Depth(context.Background(), config.QueueDefault)
	assert.Equal(t, int64(1), depth, "duplicate must not enqueue twice")

	changed := map[string]any{"task_id": "t1", "provider": "provider_a", "prompt": "a dog"}
	third := ts.post(t, "/generate/text-to-image", changed, true)
	assert.Equal(t, http.StatusConflict, third.Code)
}

func TestStatus_UnknownTask(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.get(t, "/tasks/no-such-task/status?service=image_sync", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatus_DownscaleFamilyReportsImageURL(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()

	row := &store.Row{
		ID:             uuid.New(),
		InternalTaskID: "dsc-1",
		ClientTaskID:   "t9",
		TenantID:       ts.tenant.ID,
		Kind:           store.KindImage,
		Provider:       "local",
	}
	_, _, err := ts.rows.CreatePending(ctx, row)
	require.NoError(t, err)
	require.NoError(t, ts.rows.SetProcessing(ctx, store.KindImage, row.ID))
	_, _, err = ts.rows.SetComplete(ctx, store.KindImage, row.ID, "https://assets.test/images/t9/0.jpeg")
	require.NoError(t, err)

	rec := ts.get(t, "/tasks/dsc-1/status?service=downscale", true)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "complete", body["status"])
	assert.Equal(t, "https://assets.test/images/t9/0.jpeg", body["image_url"])
	_, hasAssetURL := body["asset_url"]
	assert.False(t, hasAssetURL)
}

func TestStatus_FailedTask(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()

	row := &store.Row{
		ID:             uuid.New(),
		InternalTaskID: "img-1",
		ClientTaskID:   "t5",
		TenantID:       ts.tenant.ID,
		Kind:           store.KindImage,
		Provider:       "provider_a",
	}
	_, _, err := ts.rows.CreatePending(ctx, row)
	require.NoError(t, err)
	require.NoError(t, ts.rows.SetFailed(ctx, store.KindImage, row.ID, "input_fetch_failed"))

	rec := ts.get(t, "/tasks/img-1/status?service=image_sync", true)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "input_fetch_failed", body["error"])
}

func TestRateLimit_ExhaustedBucketReturns429(t *testing.T) {
	ts := newTestServer(t, map[string]config.RateLimit{
		config.FamilyImageSync: {Capacity: 2, RefillPerSec: 0.01},
	})

	body := func(n int) map[string]any {
		return map[string]any{"task_id": fmt.Sprintf("t%d", n), "provider": "provider_a", "prompt": "x"}
	}

	assert.Equal(t, http.StatusAccepted, ts.post(t, "/generate/text-to-image", body(1), true).Code)
	assert.Equal(t, http.StatusAccepted, ts.post(t, "/generate/text-to-image", body(2), true).Code)

	rec := ts.post(t, "/generate/text-to-image", body(3), true)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.post(t, "/auth/register", map[string]any{
		"verification_secret": "s3cret",
		"tenant_type":         "storefront",
		"tenant_identifier":   "shop.myshop.example.com",
	}, false)

	require.Equal(t, http.StatusOK, rec.Code)
	var out auth.RegisterResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "sf_new", out.APIKey)
	assert.Equal(t, "Tenant registered", out.Message)
}

func TestCorrelationIDEchoed(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	rec := httptest.NewRecorder()
	ts.http.ServeHTTP(rec, req)
	assert.Equal(t, "corr-123", rec.Header().Get("X-Correlation-ID"))

	rec2 := ts.get(t, "/health", false)
	assert.NotEmpty(t, rec2.Header().Get("X-Correlation-ID"))
}

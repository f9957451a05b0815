package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/api"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/bundle"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/config"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/engine"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/inference"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/logging"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/metrics"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/receipt"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/testfixture"
)

type loaderFunc func() (*bundle.Bundle, error)

func (f loaderFunc) Load() (*bundle.Bundle, error) { return f() }

var (
	fixtureOnce   sync.Once
	fixtureBundle *bundle.Bundle
	fixtureErr    error
)

var now = time.Date(2025, time.January, 28, 15, 0, 0, 0, time.UTC)

func newServer(t *testing.T, svc *inference.Service) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	eng := engine.New(ctx, svc, config.EngineConf{Workers: 2, QueueDepth: 16, TimeoutMs: 2000})
	t.Cleanup(func() {
		eng.Shutdown()
		cancel()
	})
	return api.New(eng, svc, api.Options{Logger: logging.Discard(), Now: func() time.Time { return now }})
}

func loadedService(t *testing.T) *inference.Service {
	t.Helper()
	fixtureOnce.Do(func() {
		fixtureBundle, fixtureErr = testfixture.Bundle()
		if fixtureErr == nil {
			fixtureBundle.Metadata.Version = "test-v1"
		}
	})
	require.NoError(t, fixtureErr)
	svc := inference.New()
	require.NoError(t, svc.Load(loaderFunc(func() (*bundle.Bundle, error) { return fixtureBundle, nil })))
	return svc
}

func failedService(t *testing.T) *inference.Service {
	t.Helper()
	svc := inference.New()
	require.Error(t, svc.Load(loaderFunc(func() (*bundle.Bundle, error) {
		return nil, errors.New("fraud_detection_model.json not found")
	})))
	return svc
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		svc     func(t *testing.T) *inference.Service
		loaded  bool
		state   string
		version string
	}{
		{"not loaded", func(*testing.T) *inference.Service { return inference.New() }, false, "not_loaded", ""},
		{"loaded", loadedService, true, "loaded", "test-v1"},
		{"failed", failedService, false, "failed", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, newServer(t, tt.svc(t)), http.MethodGet, "/health", "")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "healthy", body["status"])
			assert.Equal(t, tt.loaded, body["model_loaded"])
			assert.Equal(t, tt.state, body["model_state"])
			assert.Equal(t, "2025-01-28T15:00:00Z", body["timestamp"])
			if tt.version != "" {
				assert.Equal(t, tt.version, body["model_version"])
			}
		})
	}
}

func TestPredict_Items(t *testing.T) {
	h := newServer(t, loadedService(t))
	rec, body := do(t, h, http.MethodPost, "/predict", `{"items": [
		{"label": "Vendor", "value": "Acme"},
		{"label": "Total Amount", "value": "$42.50"},
		{"label": "Payment Method", "value": "Visa"}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	assert.Equal(t, true, body["success"])
	pred := body["prediction"].(map[string]any)
	for _, k := range []string{"is_fraudulent", "fraud_probability", "risk_level", "confidence"} {
		assert.Contains(t, pred, k)
	}
	p := pred["fraud_probability"].(float64)
	assert.Equal(t, p >= 0.5, pred["is_fraudulent"])
	assert.InDelta(t, max(p, 1-p), pred["confidence"].(float64), 1e-12)

	info := body["model_info"].(map[string]any)
	assert.Equal(t, "test-v1", info["version"])
	assert.Contains(t, info, "auc_score")
	assert.NotEmpty(t, info["model_type"])

	data := body["receipt_data"].(map[string]any)
	assert.Equal(t, "Acme", data["vendor"])
	assert.Equal(t, 42.5, data["total_amount"])
	assert.Equal(t, float64(3), data["item_count"])
}

func TestPredict_TypedRecordRanksSuspiciousHigher(t *testing.T) {
	h := newServer(t, loadedService(t))
	_, legit := do(t, h, http.MethodPost, "/predict", `{"vendor":"Starbucks Coffee","total_amount":12.45,"item_count":2,"tip":2.00,"payment_method":"Credit Card","date":"2025-01-28 14:30:00"}`)
	_, fraud := do(t, h, http.MethodPost, "/predict", `{"vendor":"TESTVENDOR123!!!","total_amount":999.99,"item_count":1,"tip":500.00,"payment_method":"CASH ONLY","date":"2025-01-28 23:45:00"}`)

	pl := legit["prediction"].(map[string]any)["fraud_probability"].(float64)
	pf := fraud["prediction"].(map[string]any)["fraud_probability"].(float64)
	assert.Less(t, pl, pf)
}

func TestPredict_RequestShapeErrors(t *testing.T) {
	h := newServer(t, loadedService(t))
	for name, body := range map[string]string{
		"empty":        "",
		"empty object": "{}",
		"null":         "null",
		"invalid":      `{"vendor": `,
		"array":        `[1, 2]`,
		"bad items":    `{"items": "nope"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec, out := do(t, h, http.MethodPost, "/predict", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_request", out["error"])
			assert.NotEmpty(t, out["message"])
		})
	}
}

func errorCount(t *testing.T, code string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.PredictionErrors.WithLabelValues(code).Write(&m))
	return m.GetCounter().GetValue()
}

func TestPredict_ModelNotLoaded(t *testing.T) {
	tests := []struct {
		name    string
		svc     *inference.Service
		message string
	}{
		{name: "not loaded", svc: inference.New(), message: "ML model is not loaded yet"},
		{name: "failed", svc: failedService(t), message: "ML model failed to load at startup"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := errorCount(t, "model_not_loaded")
			rec, out := do(t, newServer(t, tt.svc), http.MethodPost, "/predict", `{"vendor":"Acme"}`)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "model_not_loaded", out["error"])
			assert.Equal(t, tt.message, out["message"])
			assert.Equal(t, before+1, errorCount(t, "model_not_loaded"))
		})
	}
}

type unloadedScorer struct{}

func (unloadedScorer) Score(receipt.Record) (inference.Prediction, error) {
	return inference.Prediction{}, inference.ErrModelNotLoaded
}

func TestPredict_ModelNotLoadedInEngineCountedOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eng := engine.New(ctx, unloadedScorer{}, config.EngineConf{Workers: 1, QueueDepth: 4, TimeoutMs: 2000})
	t.Cleanup(func() {
		eng.Shutdown()
		cancel()
	})
	h := api.New(eng, loadedService(t), api.Options{Logger: logging.Discard(), Now: func() time.Time { return now }})

	before := errorCount(t, "model_not_loaded")
	rec, out := do(t, h, http.MethodPost, "/predict", `{"vendor":"Acme"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "model_not_loaded", out["error"])
	assert.Equal(t, before+1, errorCount(t, "model_not_loaded"))
}

func TestPredictBatch(t *testing.T) {
	h := newServer(t, loadedService(t))
	rec, out := do(t, h, http.MethodPost, "/predict/batch", `[
		{"vendor": "Walmart", "total_amount": 45.67, "item_count": 5},
		{"items": [{"label": "Vendor", "value": "Shell"}]}
	]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), out["count"])
	results := out["results"].([]any)
	require.Len(t, results, 2)
	for i, r := range results {
		item := r.(map[string]any)
		assert.Equal(t, float64(i), item["index"])
		assert.Contains(t, item, "prediction")
	}

	big := "[" + strings.TrimSuffix(strings.Repeat(`{"vendor":"x"},`, 101), ",") + "]"
	rec, out = do(t, h, http.MethodPost, "/predict/batch", big)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", out["error"])
}

func TestReadyz(t *testing.T) {
	rec, out := do(t, newServer(t, inference.New()), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_loaded", out["model_state"])

	rec, out = do(t, newServer(t, loadedService(t)), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", out["status"])
}

func TestRootLivenessMetricsAndNotFound(t *testing.T) {
	h := newServer(t, loadedService(t))

	rec, out := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["model_loaded"])
	assert.Contains(t, out["endpoints"], "/predict")

	rec, out = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])

	rec, _ = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "receiptrisk_")

	rec, out = do(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", out["error"])
}

func TestRequestIDEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	newServer(t, inference.New()).ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

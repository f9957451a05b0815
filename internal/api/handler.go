// Package api is the HTTP transport of the inference service.
package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/engine"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/inference"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/metrics"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/receipt"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/risk"
)

const (
	serviceName    = "receiptrisk fraud scoring"
	maxBatchSize   = 100
	defaultMaxBody = 1 << 20
)

// Version is reported by GET /. Set at link time.
var Version = "dev"

// Options tune the handler.
type Options struct {
	Logger       *slog.Logger
	MaxBodyBytes int64
	Now          func() time.Time
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng     *engine.Engine
	svc     *inference.Service
	mux     *http.ServeMux
	logger  *slog.Logger
	maxBody int64
	now     func() time.Time
}

// New creates an HTTP handler and registers all routes.
func New(eng *engine.Engine, svc *inference.Service, opts Options) http.Handler {
	h := &Handler{
		eng:     eng,
		svc:     svc,
		mux:     http.NewServeMux(),
		logger:  opts.Logger,
		maxBody: opts.MaxBodyBytes,
		now:     opts.Now,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.maxBody <= 0 {
		h.maxBody = defaultMaxBody
	}
	if h.now == nil {
		h.now = time.Now
	}

	h.mux.HandleFunc("GET /{$}", h.root)
	h.mux.HandleFunc("GET /health", h.health)
	h.mux.HandleFunc("POST /predict", h.predict)
	h.mux.HandleFunc("POST /predict/batch", h.predictBatch)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())
	h.mux.HandleFunc("/", h.notFound)

	return loggingMiddleware(h.logger, h.mux)
}

type modelInfo struct {
	Version   string  `json:"version"`
	ModelType string  `json:"model_type"`
	AUCScore  float64 `json:"auc_score"`
}

type predictResponse struct {
	Success     bool           `json:"success"`
	Prediction  risk.Decision  `json:"prediction"`
	ModelInfo   modelInfo      `json:"model_info"`
	ReceiptData receipt.Record `json:"receipt_data"`
}

type healthResponse struct {
	Status       string `json:"status"`
	ModelLoaded  bool   `json:"model_loaded"`
	Timestamp    string `json:"timestamp"`
	ModelState   string `json:"model_state"`
	ModelVersion string `json:"model_version,omitempty"`
}

// GET /: service information.
func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": serviceName,
		"version": Version,
		"endpoints": map[string]string{
			"/health":        "Health check",
			"/predict":       "POST - Fraud prediction",
			"/predict/batch": "POST - Fraud prediction for up to 100 receipts",
			"/healthz":       "Liveness probe",
			"/readyz":        "Readiness probe",
			"/metrics":       "Prometheus metrics",
		},
		"model_loaded": h.svc.Ready(),
	})
}

// GET /health: model state; always 200.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "healthy",
		ModelLoaded: h.svc.Ready(),
		Timestamp:   h.now().Format(time.RFC3339),
		ModelState:  h.svc.State().String(),
	}
	if info, ok := h.svc.Model(); ok {
		resp.ModelVersion = info.Version
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /predict: score one receipt.
func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	if !h.svc.Ready() {
		h.modelNotLoaded(w)
		return
	}
	rec, ok := h.decodeReceipt(w, r)
	if !ok {
		return
	}

	res, err := h.eng.ProcessSync(r.Context(), rec)
	if err != nil {
		h.scoringError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{
		Success:     true,
		Prediction:  res.Prediction.Decision,
		ModelInfo:   toModelInfo(res.Prediction.Model),
		ReceiptData: rec,
	})
}

type batchItem struct {
	Index       int            `json:"index"`
	Prediction  *risk.Decision `json:"prediction,omitempty"`
	Error       string         `json:"error,omitempty"`
	Message     string         `json:"message,omitempty"`
	ReceiptData receipt.Record `json:"receipt_data"`
}

// POST /predict/batch: score up to 100 receipts given as a JSON array.
func (h *Handler) predictBatch(w http.ResponseWriter, r *http.Request) {
	if !h.svc.Ready() {
		h.modelNotLoaded(w)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, fmt.Sprintf("read body: %s", err))
		return
	}
	records, err := receipt.DecodeBatch(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if len(records) > maxBatchSize {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, fmt.Sprintf("batch size %d exceeds max %d", len(records), maxBatchSize))
		return
	}

	results, err := h.eng.ScoreBatch(r.Context(), records, nil)
	if err != nil {
		h.scoringError(w, err)
		return
	}
	items := make([]batchItem, len(results))
	var info inference.ModelInfo
	for i, res := range results {
		items[i] = batchItem{Index: i, ReceiptData: records[i]}
		if res.Err != nil {
			items[i].Error = codePredictionFailed
			items[i].Message = "prediction could not be computed"
			h.logger.Warn("batch item failed", "index", i, "error", res.Err)
			continue
		}
		d := res.Prediction.Decision
		items[i].Prediction = &d
		info = res.Prediction.Model
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"count":      len(items),
		"results":    items,
		"model_info": toModelInfo(info),
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 until a model is loaded or while the queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.eng.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	state := h.svc.State().String()
	switch {
	case !h.svc.Ready():
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":      "not_ready",
			"model_state": state,
		})
	case util > 0.8:
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":            "ready",
			"model_state":       state,
			"queue_utilization": util,
		})
	}
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
}

func (h *Handler) decodeReceipt(w http.ResponseWriter, r *http.Request) (receipt.Record, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, fmt.Sprintf("read body: %s", err))
		return receipt.Record{}, false
	}
	rec, err := receipt.Decode(body)
	switch {
	case errors.Is(err, receipt.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "No JSON data provided")
		return receipt.Record{}, false
	case err != nil:
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return receipt.Record{}, false
	}
	return rec, true
}

// modelNotLoaded rejects a request before it reaches the engine.
func (h *Handler) modelNotLoaded(w http.ResponseWriter) {
	metrics.PredictionErrors.WithLabelValues(codeModelNotLoaded).Inc()
	h.writeModelNotLoaded(w)
}

func (h *Handler) writeModelNotLoaded(w http.ResponseWriter) {
	msg := "ML model is not loaded yet"
	if h.svc.State() == inference.StateFailed {
		msg = "ML model failed to load at startup"
	}
	writeError(w, http.StatusInternalServerError, codeModelNotLoaded, msg)
}

// scoringError maps an engine error to a response. Scoring failures are
// counted by the engine.
func (h *Handler) scoringError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, codeQueueFull, err.Error())
	case errors.Is(err, inference.ErrModelNotLoaded):
		h.writeModelNotLoaded(w)
	default:
		h.logger.Error("prediction failed", "error", err)
		writeError(w, http.StatusInternalServerError, codePredictionFailed, "prediction could not be computed")
	}
}

func toModelInfo(m inference.ModelInfo) modelInfo {
	return modelInfo{Version: m.Version, ModelType: m.ModelType, AUCScore: m.AUCScore}
}

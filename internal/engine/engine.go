// Package engine runs receipt scoring on a bounded worker pool shared by the
// HTTP transport and the batch tester.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/config"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/inference"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/metrics"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/receipt"
)

var (
	// ErrQueueFull is returned by ProcessSync when no queue slot is free.
	ErrQueueFull = errors.New("scoring queue full")
	// ErrTimeout is returned by ProcessSync when scoring exceeds the timeout.
	ErrTimeout = errors.New("scoring timeout")
	// ErrShutdown is returned once the engine has been drained.
	ErrShutdown = errors.New("engine shut down")
)

// Scorer turns a receipt into a prediction. *inference.Service implements it.
type Scorer interface {
	Score(rec receipt.Record) (inference.Prediction, error)
}

// Result is the outcome of scoring a single receipt.
type Result struct {
	Index      int                  `json:"index"`
	Prediction inference.Prediction `json:"prediction"`
	Duration   time.Duration        `json:"duration_ns"`
	Err        error                `json:"-"`
}

// Engine scores receipts on a fixed pool of workers.
type Engine struct {
	scorer Scorer
	pool   *workerPool[*scoreWork, *Result]
	conf   config.EngineConf
}

type scoreWork struct {
	index   int
	rec     receipt.Record
	resultC chan *Result
}

// New creates an Engine using conf and starts the worker pool.
func New(ctx context.Context, scorer Scorer, conf config.EngineConf) *Engine {
	e := &Engine{scorer: scorer, conf: conf}
	e.pool = newWorkerPool[*scoreWork, *Result](
		ctx,
		conf.Workers,
		conf.QueueDepth,
		func(ctx context.Context, w *scoreWork) (*Result, error) {
			res := e.score(w)
			w.resultC <- res
			return res, res.Err
		},
	)
	return e
}

// ProcessSync scores rec and waits for the result.
// Returns ErrQueueFull if the queue is full.
func (e *Engine) ProcessSync(ctx context.Context, rec receipt.Record) (*Result, error) {
	w := &scoreWork{rec: rec, resultC: make(chan *Result, 1)}
	if !e.pool.Submit(w) {
		metrics.ScoresDropped.Inc()
		return nil, fmt.Errorf("%w (capacity %d)", ErrQueueFull, e.pool.QueueCap())
	}
	metrics.ScoresEnqueued.Inc()
	e.observeQueue()

	timeout := time.Duration(e.conf.TimeoutMs) * time.Millisecond
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-w.resultC:
		if res.Err != nil {
			return nil, res.Err
		}
		return res, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ScoreBatch scores every record, waiting for queue space instead of
// dropping. Results are in input order; per-record failures are carried in
// Result.Err. progress, when non-nil, is called once per finished record.
func (e *Engine) ScoreBatch(ctx context.Context, records []receipt.Record, progress func()) ([]*Result, error) {
	out := make([]*Result, len(records))
	resultC := make(chan *Result, len(records))

	submitted := 0
	for i, rec := range records {
		if err := e.pool.SubmitWait(ctx, &scoreWork{index: i, rec: rec, resultC: resultC}); err != nil {
			return nil, err
		}
		metrics.ScoresEnqueued.Inc()
		submitted++
	}
	e.observeQueue()

	for n := 0; n < submitted; n++ {
		select {
		case res := <-resultC:
			out[res.Index] = res
			if progress != nil {
				progress()
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

// QueueUtilization returns queue used / capacity (0–1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

func (e *Engine) observeQueue() {
	metrics.QueueUtilization.Set(e.QueueUtilization())
}

func (e *Engine) score(w *scoreWork) *Result {
	start := time.Now()
	pred, err := e.scorer.Score(w.rec)
	res := &Result{Index: w.index, Prediction: pred, Err: err, Duration: time.Since(start)}

	metrics.ScoringDuration.Observe(float64(res.Duration.Microseconds()) / 1000)
	if err != nil {
		code := "prediction_failed"
		if errors.Is(err, inference.ErrModelNotLoaded) {
			code = "model_not_loaded"
		}
		metrics.PredictionErrors.WithLabelValues(code).Inc()
		return res
	}
	metrics.Predictions.WithLabelValues(pred.RiskLevel.String()).Inc()
	return res
}

// Shutdown drains the pool gracefully.
func (e *Engine) Shutdown() {
	e.pool.Drain()
}

// Package train fits candidate classifiers on balanced, scaled receipt
// features and assembles the winning model into a bundle.
package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/balance"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/bundle"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/classifier"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/evaluate"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/feature"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/logging"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/receipt"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/scaler"
)

// ErrNoRecords is returned when the training table is empty.
var ErrNoRecords = errors.New("train: no training records")

// CandidateReport is the held-out evaluation of one fitted family.
type CandidateReport struct {
	Model    string          `json:"model" yaml:"model"`
	AUC      float64         `json:"auc" yaml:"auc"`
	Report   evaluate.Report `json:"report" yaml:"report"`
	Duration time.Duration   `json:"duration_ns" yaml:"duration"`
}

// Importance is one feature's share of the winner's impurity reduction.
type Importance struct {
	Feature    string  `json:"feature" yaml:"feature"`
	Importance float64 `json:"importance" yaml:"importance"`
}

// Report summarises a training run for auditing.
type Report struct {
	Records         int                `json:"records" yaml:"records"`
	FraudRecords    int                `json:"fraud_records" yaml:"fraud_records"`
	BalancedSamples int                `json:"balanced_samples" yaml:"balanced_samples"`
	TrainSamples    int                `json:"train_samples" yaml:"train_samples"`
	TestSamples     int                `json:"test_samples" yaml:"test_samples"`
	Thresholds      feature.Thresholds `json:"thresholds" yaml:"thresholds"`
	Candidates      []CandidateReport  `json:"candidates" yaml:"candidates"`
	Winner          string             `json:"winner" yaml:"winner"`
	BestAUC         float64            `json:"best_auc" yaml:"best_auc"`
	Importances     []Importance       `json:"feature_importances" yaml:"feature_importances"`
}

// Result is a trained, unpublished bundle plus its report.
type Result struct {
	Bundle *bundle.Bundle
	Report Report
}

// Trainer runs the pipeline: thresholds, extraction, balancing, scaling,
// split, candidate fitting and selection. It never writes to disk.
type Trainer struct {
	cfg      Config
	reg      *classifier.Registry
	names    []string
	logger   *slog.Logger
	now      func() time.Time
	onFitted func(CandidateReport)
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the logger used for progress messages.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trainer) { t.logger = l }
}

// WithClock sets the clock used for trained_at and for receipts with no
// readable date.
func WithClock(now func() time.Time) Option {
	return func(t *Trainer) { t.now = now }
}

// WithFeatures overrides the canonical feature list.
func WithFeatures(names []string) Option {
	return func(t *Trainer) { t.names = append([]string(nil), names...) }
}

// OnCandidateFitted registers a callback run after each candidate is evaluated.
func OnCandidateFitted(fn func(CandidateReport)) Option {
	return func(t *Trainer) { t.onFitted = fn }
}

// New returns a Trainer drawing candidate families from reg.
func New(cfg Config, reg *classifier.Registry, opts ...Option) *Trainer {
	t := &Trainer{
		cfg:    cfg,
		reg:    reg,
		names:  feature.Names(),
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train fits every candidate and returns the best by held-out ROC AUC.
// Ties keep the earlier candidate.
func (t *Trainer) Train(ctx context.Context, records []receipt.LabeledRecord) (*Result, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	if err := t.cfg.validate(t.reg); err != nil {
		return nil, err
	}
	if _, err := feature.NewSchema(t.names); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	raw := make([]receipt.Record, len(records))
	y := make([]int, len(records))
	var fraud int
	for i, r := range records {
		raw[i] = r.Record
		if r.IsFraud {
			y[i] = 1
			fraud++
		}
	}

	thresholds := feature.DefaultThresholds()
	if t.cfg.ThresholdPolicy == PolicyQuantile {
		thresholds = feature.FitThresholds(raw)
	}
	ext := feature.NewExtractor(thresholds, feature.WithClock(t.now))
	// All-zero fitted cut-offs fall back to the defaults; record what is applied.
	thresholds = ext.Thresholds()
	x := ext.Matrix(raw, t.names)
	t.logger.Info("features extracted", "records", len(records), "fraud", fraud, "features", len(t.names))

	xb, yb, err := balance.New(t.cfg.Neighbors, t.cfg.Seed).Resample(x, y)
	if err != nil {
		return nil, err
	}
	t.logger.Info("classes balanced", "samples", len(xb))

	sc, err := scaler.Fit(xb)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	xs, err := sc.Transform(xb)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	trainIdx, testIdx := stratifiedSplit(yb, t.cfg.TestSize, t.cfg.Seed)
	xTrain, yTrain := take(xs, trainIdx), take(yb, trainIdx)
	xTest, yTest := take(xs, testIdx), take(yb, testIdx)

	report := Report{
		Records:         len(records),
		FraudRecords:    fraud,
		BalancedSamples: len(xb),
		TrainSamples:    len(xTrain),
		TestSamples:     len(xTest),
		Thresholds:      thresholds,
	}

	var (
		best     classifier.Classifier
		bestEval CandidateReport
	)
	for _, name := range t.cfg.Candidates {
		fam, err := t.reg.Get(name)
		if err != nil {
			return nil, fmt.Errorf("train: %w", err)
		}
		t.logger.Info("fitting candidate", "model", name, "train_samples", len(xTrain))
		start := time.Now()
		c, err := fam.Fit(ctx, xTrain, yTrain)
		if err != nil {
			return nil, fmt.Errorf("train: fit %s: %w", name, err)
		}
		cr, err := assess(name, c, xTest, yTest)
		if err != nil {
			return nil, err
		}
		cr.Duration = time.Since(start)
		t.logger.Info("candidate evaluated", "model", name, "auc", cr.AUC, "accuracy", cr.Report.Accuracy, "duration", cr.Duration)
		report.Candidates = append(report.Candidates, cr)
		if t.onFitted != nil {
			t.onFitted(cr)
		}
		if best == nil || cr.AUC > bestEval.AUC {
			best, bestEval = c, cr
		}
	}

	report.Winner = best.Family()
	report.BestAUC = bestEval.AUC
	importances := make(map[string]float64, len(t.names))
	for i, v := range best.Importances() {
		importances[t.names[i]] = v
		report.Importances = append(report.Importances, Importance{Feature: t.names[i], Importance: v})
	}
	sort.SliceStable(report.Importances, func(i, j int) bool {
		return report.Importances[i].Importance > report.Importances[j].Importance
	})

	th := thresholds
	b := &bundle.Bundle{
		Classifier: best,
		Scaler:     sc,
		Features:   append([]string(nil), t.names...),
		Metadata: bundle.Metadata{
			ModelType:          best.Family(),
			FeatureNames:       append([]string(nil), t.names...),
			FeaturesUsed:       len(t.names),
			TrainingSamples:    len(xb),
			TestSamples:        len(xTest),
			BestAUC:            bestEval.AUC,
			Accuracy:           bestEval.Report.Accuracy,
			Thresholds:         &th,
			FeatureImportances: importances,
			TrainedAt:          t.now().UTC(),
		},
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	t.logger.Info("training complete", "winner", report.Winner, "auc", report.BestAUC)
	return &Result{Bundle: b, Report: report}, nil
}

func assess(name string, c classifier.Classifier, x [][]float64, y []int) (CandidateReport, error) {
	scores := make([]float64, len(x))
	for i, row := range x {
		p, err := c.PredictProba(row)
		if err != nil {
			return CandidateReport{}, fmt.Errorf("train: score %s: %w", name, err)
		}
		scores[i] = p
	}
	auc, err := evaluate.AUC(scores, y)
	if err != nil {
		return CandidateReport{}, fmt.Errorf("train: evaluate %s: %w", name, err)
	}
	return CandidateReport{
		Model:  name,
		AUC:    auc,
		Report: evaluate.Classify(evaluate.Predict(scores), y),
	}, nil
}

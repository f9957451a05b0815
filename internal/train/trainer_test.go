package train_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/balance"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/bundle"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/classifier"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/feature"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/receipt"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/testfixture"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/train"
)

var trainedAt = time.Date(2025, time.January, 28, 12, 0, 0, 0, time.UTC)

func newTrainer(cfg train.Config, opts ...train.Option) *train.Trainer {
	opts = append([]train.Option{train.WithClock(func() time.Time { return trainedAt })}, opts...)
	return train.New(cfg, testfixture.Registry(), opts...)
}

func score(t *testing.T, b *bundle.Bundle, rec receipt.Record) float64 {
	t.Helper()
	vec := b.Extractor().Extract(rec, b.Features)
	scaled, err := b.Scaler.TransformRow(vec)
	require.NoError(t, err)
	p, err := b.Classifier.PredictProba(scaled)
	require.NoError(t, err)
	return p
}

func TestTrain_ProducesConsistentBundle(t *testing.T) {
	records := testfixture.Corpus(160, 40, 42)
	var seen []string
	res, err := newTrainer(train.DefaultConfig(), train.OnCandidateFitted(func(c train.CandidateReport) {
		seen = append(seen, c.Model)
	})).Train(context.Background(), records)
	require.NoError(t, err)

	b := res.Bundle
	require.NoError(t, b.Validate())
	assert.Equal(t, feature.Names(), b.Features)
	assert.Equal(t, res.Report.Winner, b.Metadata.ModelType)
	assert.Equal(t, 320, b.Metadata.TrainingSamples, "balanced to parity")
	assert.Equal(t, 64, b.Metadata.TestSamples)
	assert.Equal(t, trainedAt, b.Metadata.TrainedAt)
	require.NotNil(t, b.Metadata.Thresholds)
	assert.Len(t, b.Metadata.FeatureImportances, 20)

	assert.Equal(t, []string{classifier.RandomForestFamily, classifier.GradientBoostingFamily}, seen)
	require.Len(t, res.Report.Candidates, 2)
	for _, c := range res.Report.Candidates {
		assert.GreaterOrEqual(t, c.AUC, 0.0)
		assert.LessOrEqual(t, c.AUC, 1.0)
		assert.Equal(t, 32, c.Report.Fraud.Support)
		assert.Equal(t, 32, c.Report.Legitimate.Support)
	}
	assert.GreaterOrEqual(t, res.Report.BestAUC, res.Report.Candidates[0].AUC)
	assert.Greater(t, res.Report.BestAUC, 0.9)

	assert.Len(t, res.Report.Importances, 20)
	for i := 1; i < len(res.Report.Importances); i++ {
		assert.GreaterOrEqual(t, res.Report.Importances[i-1].Importance, res.Report.Importances[i].Importance)
	}
}

func TestTrain_SuspiciousReceiptScoresHigher(t *testing.T) {
	res, err := newTrainer(train.DefaultConfig()).Train(context.Background(), testfixture.Corpus(160, 40, 42))
	require.NoError(t, err)

	legit := receipt.Record{
		Vendor: "Starbucks Coffee", TotalAmount: 12.45, ItemCount: 2, Tip: 2.00,
		PaymentMethod: "Credit Card", Date: "2025-01-28 14:30:00",
	}
	suspicious := receipt.Record{
		Vendor: "TESTVENDOR123!!!", TotalAmount: 999.99, ItemCount: 1, Tip: 500.00,
		PaymentMethod: "CASH ONLY", Date: "2025-01-28 23:45:00",
	}
	assert.Less(t, score(t, res.Bundle, legit), score(t, res.Bundle, suspicious))
}

func TestTrain_ThresholdPolicies(t *testing.T) {
	records := testfixture.Corpus(80, 20, 7)

	cfg := train.DefaultConfig()
	cfg.Candidates = []string{classifier.RandomForestFamily}
	cfg.ThresholdPolicy = train.PolicyFixed
	res, err := newTrainer(cfg).Train(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, feature.DefaultThresholds(), *res.Bundle.Metadata.Thresholds)

	cfg.ThresholdPolicy = train.PolicyQuantile
	res, err = newTrainer(cfg).Train(context.Background(), records)
	require.NoError(t, err)
	raw := make([]receipt.Record, len(records))
	for i, r := range records {
		raw[i] = r.Record
	}
	assert.Equal(t, feature.FitThresholds(raw), *res.Bundle.Metadata.Thresholds)
	assert.Equal(t, res.Report.Thresholds, res.Bundle.Thresholds())
}

func TestTrain_DegenerateTableRecordsAppliedThresholds(t *testing.T) {
	records := testfixture.Corpus(40, 10, 11)
	for i := range records {
		records[i].TotalAmount = 0
		records[i].ItemCount = 0
	}
	raw := make([]receipt.Record, len(records))
	for i, r := range records {
		raw[i] = r.Record
	}
	require.True(t, feature.FitThresholds(raw).IsZero())

	cfg := train.DefaultConfig()
	cfg.Candidates = []string{classifier.RandomForestFamily}
	res, err := newTrainer(cfg).Train(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, feature.DefaultThresholds(), res.Report.Thresholds)
	require.NotNil(t, res.Bundle.Metadata.Thresholds)
	assert.Equal(t, feature.DefaultThresholds(), *res.Bundle.Metadata.Thresholds)
}

func TestTrain_Deterministic(t *testing.T) {
	cfg := train.DefaultConfig()
	cfg.Candidates = []string{classifier.RandomForestFamily}
	records := testfixture.Corpus(60, 15, 3)

	a, err := newTrainer(cfg).Train(context.Background(), records)
	require.NoError(t, err)
	b, err := newTrainer(cfg).Train(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, a.Report.BestAUC, b.Report.BestAUC)
	assert.Equal(t, a.Bundle.Scaler, b.Bundle.Scaler)
}

func TestTrain_SubsetOfFeatures(t *testing.T) {
	cfg := train.DefaultConfig()
	cfg.Candidates = []string{classifier.GradientBoostingFamily}
	names := []string{feature.TotalAmount, feature.VendorHasSpecialChars, feature.TipRatio}

	res, err := newTrainer(cfg, train.WithFeatures(names)).Train(context.Background(), testfixture.Corpus(60, 15, 9))
	require.NoError(t, err)
	assert.Equal(t, names, res.Bundle.Features)
	assert.Equal(t, 3, res.Bundle.Classifier.NumFeatures())
}

func TestTrain_Errors(t *testing.T) {
	_, err := newTrainer(train.DefaultConfig()).Train(context.Background(), nil)
	assert.ErrorIs(t, err, train.ErrNoRecords)

	oneFraud := testfixture.Corpus(30, 1, 1)
	_, err = newTrainer(train.DefaultConfig()).Train(context.Background(), oneFraud)
	assert.ErrorIs(t, err, balance.ErrInsufficientMinority)

	cfg := train.DefaultConfig()
	cfg.Candidates = []string{"SVC"}
	_, err = newTrainer(cfg).Train(context.Background(), testfixture.Corpus(30, 10, 1))
	assert.Error(t, err)

	cfg = train.DefaultConfig()
	cfg.TestSize = 1.5
	_, err = newTrainer(cfg).Train(context.Background(), testfixture.Corpus(30, 10, 1))
	assert.Error(t, err)

	cfg = train.DefaultConfig()
	cfg.ThresholdPolicy = "median"
	_, err = newTrainer(cfg).Train(context.Background(), testfixture.Corpus(30, 10, 1))
	assert.Error(t, err)
}

func TestTrain_FailedRunKeepsPublishedBundle(t *testing.T) {
	store, published, err := testfixture.Published(t.TempDir(), "good")
	require.NoError(t, err)

	_, err = newTrainer(train.DefaultConfig()).Train(context.Background(), testfixture.Corpus(30, 1, 1))
	require.ErrorIs(t, err, balance.ErrInsufficientMinority)

	live, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "good", live.Metadata.Version)
	assert.Equal(t, published.Metadata.Checksums, live.Metadata.Checksums)
}

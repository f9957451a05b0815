package bundle_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/bundle"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/classifier"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/feature"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/scaler"
)

var names = []string{feature.TotalAmount, feature.Tip, feature.ItemCount}

func testBundle(t *testing.T, version string) *bundle.Bundle {
	t.Helper()
	x := [][]float64{
		{10, 1, 2}, {12, 2, 3}, {15, 0, 1}, {11, 1, 2}, {14, 2, 4}, {9, 0, 1},
		{900, 300, 1}, {850, 200, 1}, {990, 400, 1}, {700, 250, 2}, {880, 310, 1}, {950, 280, 1},
	}
	y := []int{0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1}
	sc, err := scaler.Fit(x)
	require.NoError(t, err)
	xs, err := sc.Transform(x)
	require.NoError(t, err)

	p := classifier.DefaultForestParams()
	p.Trees = 10
	c, err := classifier.NewForestFamily(p).Fit(context.Background(), xs, y)
	require.NoError(t, err)

	th := feature.Thresholds{HighAmount: 800, LowAmount: 10, HighItemCount: 3}
	return &bundle.Bundle{
		Classifier: c,
		Scaler:     sc,
		Features:   append([]string(nil), names...),
		Metadata: bundle.Metadata{
			Version:         version,
			ModelType:       c.Family(),
			FeatureNames:    append([]string(nil), names...),
			FeaturesUsed:    len(names),
			TrainingSamples: 10,
			TestSamples:     2,
			BestAUC:         1,
			Thresholds:      &th,
			TrainedAt:       time.Date(2025, 1, 28, 0, 0, 0, 0, time.UTC),
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteReadDir_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := testBundle(t, "v1")
	require.NoError(t, bundle.WriteDir(dir, b))

	got, err := bundle.ReadDir(dir, classifier.DefaultRegistry())
	require.NoError(t, err)

	assert.Equal(t, b.Features, got.Features)
	assert.Equal(t, "v1", got.Metadata.Version)
	assert.Len(t, got.Metadata.Checksums, 3)
	assert.Equal(t, 800.0, got.Thresholds().HighAmount)

	for _, raw := range [][]float64{{12, 1, 2}, {920, 300, 1}} {
		a, err := b.Scaler.TransformRow(raw)
		require.NoError(t, err)
		c, err := got.Scaler.TransformRow(raw)
		require.NoError(t, err)
		pa, _ := b.Classifier.PredictProba(a)
		pc, _ := got.Classifier.PredictProba(c)
		assert.Equal(t, pa, pc)
	}
}

func TestReadDir_MissingPiece(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, bundle.WriteDir(dir, testBundle(t, "v1")))
	require.NoError(t, os.Remove(filepath.Join(dir, bundle.ScalerFile)))

	_, err := bundle.ReadDir(dir, classifier.DefaultRegistry())
	require.ErrorIs(t, err, bundle.ErrArtifactMissing)
	var ae *bundle.ArtifactError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, bundle.ScalerFile, ae.Piece)
}

func TestReadDir_TamperedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, bundle.WriteDir(dir, testBundle(t, "v1")))

	path := filepath.Join(dir, bundle.ModelFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(data, ' '), 0o644))

	_, err = bundle.ReadDir(dir, classifier.DefaultRegistry())
	assert.ErrorIs(t, err, bundle.ErrArtifactCorrupt)
}

func TestReadDir_FeatureCountMismatch(t *testing.T) {
	dir := t.TempDir()
	b := testBundle(t, "v1")
	b.Metadata.FeatureNames = nil
	b.Metadata.FeaturesUsed = 0
	require.NoError(t, bundle.WriteDir(dir, b))

	// Replace the feature list and drop the digests so only the shape check can catch it.
	require.NoError(t, os.WriteFile(filepath.Join(dir, bundle.FeaturesFile), []byte(`["total_amount","tip"]`), 0o644))
	metaPath := filepath.Join(dir, bundle.MetadataFile)
	var meta map[string]any
	raw, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &meta))
	delete(meta, "checksums")
	raw, err = json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(metaPath, raw, 0o644))

	_, err = bundle.ReadDir(dir, classifier.DefaultRegistry())
	require.ErrorIs(t, err, bundle.ErrArtifactInconsistent)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *bundle.Bundle)
		want   error
	}{
		{"scaler width", func(b *bundle.Bundle) {
			b.Scaler = &scaler.Standard{Mean: []float64{0, 0}, Scale: []float64{1, 1}}
		}, bundle.ErrArtifactInconsistent},
		{"feature count", func(b *bundle.Bundle) {
			b.Features = b.Features[:2]
			b.Metadata.FeatureNames = nil
			b.Metadata.FeaturesUsed = 0
		}, bundle.ErrArtifactInconsistent},
		{"model type", func(b *bundle.Bundle) { b.Metadata.ModelType = classifier.GradientBoostingFamily }, bundle.ErrArtifactInconsistent},
		{"metadata names", func(b *bundle.Bundle) { b.Metadata.FeatureNames = []string{"a", "b", "c"} }, bundle.ErrArtifactInconsistent},
		{"duplicate names", func(b *bundle.Bundle) {
			b.Features = []string{"tip", "tip", "tip"}
			b.Metadata.FeatureNames = nil
		}, bundle.ErrArtifactInconsistent},
		{"no classifier", func(b *bundle.Bundle) { b.Classifier = nil }, bundle.ErrArtifactMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBundle(t, "v1")
			tt.mutate(b)
			assert.ErrorIs(t, b.Validate(), tt.want)
		})
	}
}

func TestThresholds_DefaultWhenAbsent(t *testing.T) {
	b := testBundle(t, "v1")
	b.Metadata.Thresholds = nil
	assert.Equal(t, feature.DefaultThresholds(), b.Thresholds())
	assert.Equal(t, feature.DefaultThresholds(), b.Extractor().Thresholds())
}

func TestStore_PublishAndLoad(t *testing.T) {
	root := t.TempDir()
	store := bundle.NewStore(root, classifier.DefaultRegistry())

	v1, err := store.Publish(testBundle(t, "v1"))
	require.NoError(t, err)
	v2, err := store.Publish(testBundle(t, "v2"))
	require.NoError(t, err)

	versions, err := store.Versions()
	require.NoError(t, err)
	assert.Equal(t, []string{v1, v2}, versions)

	cur, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, "v2", cur)

	b, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "v2", b.Metadata.Version)

	old, err := store.LoadVersion("v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", old.Metadata.Version)

	_, err = store.Publish(testBundle(t, "v2"))
	assert.Error(t, err, "versions are immutable")
}

func TestStore_AssignsVersion(t *testing.T) {
	store := bundle.NewStore(t.TempDir(), classifier.DefaultRegistry())
	b := testBundle(t, "")
	v, err := store.Publish(b)
	require.NoError(t, err)
	assert.NotEmpty(t, v)
	assert.Equal(t, v, b.Metadata.Version)
}

func TestStore_FailedPublishKeepsCurrent(t *testing.T) {
	root := t.TempDir()
	store := bundle.NewStore(root, classifier.DefaultRegistry())
	_, err := store.Publish(testBundle(t, "good"))
	require.NoError(t, err)

	broken := testBundle(t, "broken")
	broken.Scaler = &scaler.Standard{Mean: []float64{1}, Scale: []float64{1}}
	_, err = store.Publish(broken)
	require.Error(t, err)

	b, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "good", b.Metadata.Version)

	versions, err := store.Versions()
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, versions)

	entries, err := os.ReadDir(filepath.Join(root, "versions"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary directories left behind")
}

func TestStore_PlainDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, bundle.WriteDir(dir, testBundle(t, "flat")))

	store := bundle.NewStore(dir, classifier.DefaultRegistry())
	b, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "flat", b.Metadata.Version)

	cur, err := store.Current()
	require.NoError(t, err)
	assert.Empty(t, cur)
}

func TestStore_EmptyDirectory(t *testing.T) {
	_, err := bundle.NewStore(t.TempDir(), classifier.DefaultRegistry()).Load()
	assert.ErrorIs(t, err, bundle.ErrArtifactMissing)
}

func TestStore_InvalidVersion(t *testing.T) {
	store := bundle.NewStore(t.TempDir(), classifier.DefaultRegistry())
	_, err := store.Publish(testBundle(t, "../escape"))
	assert.Error(t, err)
}

func TestStore_WatchReloadsOnPublish(t *testing.T) {
	root := t.TempDir()
	store := bundle.NewStore(root, classifier.DefaultRegistry())
	_, err := store.Publish(testBundle(t, "v1"))
	require.NoError(t, err)

	loaded := make(chan string, 4)
	stop, err := store.Watch(quietLogger(), 20*time.Millisecond, func(b *bundle.Bundle) {
		loaded <- b.Metadata.Version
	})
	require.NoError(t, err)
	defer stop()

	_, err = store.Publish(testBundle(t, "v2"))
	require.NoError(t, err)

	select {
	case v := <-loaded:
		assert.Equal(t, "v2", v)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload the published bundle")
	}
}

// Package bundle persists and loads the model artifact bundle: the fitted
// classifier, the scaler, the ordered feature names and the metadata that
// together define how a receipt is scored.
package bundle

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/classifier"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/feature"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/scaler"
)

// Artifact file names inside a bundle directory.
const (
	ModelFile    = "fraud_detection_model.json"
	ScalerFile   = "fraud_detection_scaler.json"
	FeaturesFile = "fraud_detection_features.json"
	MetadataFile = "fraud_detection_metadata.json"
)

var (
	ErrArtifactMissing      = errors.New("artifact missing")
	ErrArtifactInconsistent = errors.New("artifact inconsistent")
	ErrArtifactCorrupt      = errors.New("artifact corrupt")
)

// ArtifactError names the bundle piece that failed to load or verify.
type ArtifactError struct {
	Piece string
	Err   error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("bundle %s: %v", e.Piece, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }

func artifactErr(piece string, kind error, format string, args ...any) *ArtifactError {
	return &ArtifactError{Piece: piece, Err: fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))}
}

// Metadata describes how and when a bundle was trained.
type Metadata struct {
	Version            string              `json:"version" yaml:"version"`
	ModelType          string              `json:"model_type" yaml:"model_type"`
	FeatureNames       []string            `json:"feature_names" yaml:"feature_names"`
	FeaturesUsed       int                 `json:"features_used" yaml:"features_used"`
	TrainingSamples    int                 `json:"training_samples" yaml:"training_samples"`
	TestSamples        int                 `json:"test_samples" yaml:"test_samples"`
	BestAUC            float64             `json:"best_auc_score" yaml:"best_auc_score"`
	Accuracy           float64             `json:"accuracy" yaml:"accuracy"`
	DatasetColumns     []string            `json:"dataset_columns,omitempty" yaml:"dataset_columns,omitempty"`
	Thresholds         *feature.Thresholds `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	FeatureImportances map[string]float64  `json:"feature_importances,omitempty" yaml:"feature_importances,omitempty"`
	TrainedAt          time.Time           `json:"trained_at" yaml:"trained_at"`
	// Checksums maps artifact file name to hex SHA-256.
	Checksums map[string]string `json:"checksums,omitempty" yaml:"checksums,omitempty"`
}

// Bundle is an immutable set of trained artifacts. Do not modify a Bundle
// after it has been handed to an inference service.
type Bundle struct {
	Classifier classifier.Classifier
	Scaler     *scaler.Standard
	Features   []string
	Metadata   Metadata
}

// Thresholds returns the persisted feature thresholds, or the fixed defaults
// for bundles that carry none.
func (b *Bundle) Thresholds() feature.Thresholds {
	if b.Metadata.Thresholds == nil || b.Metadata.Thresholds.IsZero() {
		return feature.DefaultThresholds()
	}
	return *b.Metadata.Thresholds
}

// Extractor returns a feature extractor configured with this bundle's thresholds.
func (b *Bundle) Extractor(opts ...feature.Option) *feature.Extractor {
	return feature.NewExtractor(b.Thresholds(), opts...)
}

// Validate checks the pieces agree with each other: the feature list, the
// scaler width, the classifier width and the metadata.
func (b *Bundle) Validate() error {
	if b.Classifier == nil {
		return artifactErr("model", ErrArtifactMissing, "no classifier")
	}
	if b.Scaler == nil {
		return artifactErr("scaler", ErrArtifactMissing, "no scaler")
	}
	if _, err := feature.NewSchema(b.Features); err != nil {
		return &ArtifactError{Piece: "features", Err: fmt.Errorf("%w: %v", ErrArtifactInconsistent, err)}
	}
	if err := b.Scaler.Validate(); err != nil {
		return &ArtifactError{Piece: "scaler", Err: fmt.Errorf("%w: %v", ErrArtifactCorrupt, err)}
	}

	n := len(b.Features)
	if w := b.Scaler.Width(); w != n {
		return artifactErr("scaler", ErrArtifactInconsistent, "fitted on %d features but feature list has %d", w, n)
	}
	if w := b.Classifier.NumFeatures(); w != n {
		return artifactErr("model", ErrArtifactInconsistent, "expects %d features but feature list has %d", w, n)
	}

	m := b.Metadata
	if m.ModelType != "" && m.ModelType != b.Classifier.Family() {
		return artifactErr("metadata", ErrArtifactInconsistent, "model_type %q but classifier is %q", m.ModelType, b.Classifier.Family())
	}
	if m.FeaturesUsed != 0 && m.FeaturesUsed != n {
		return artifactErr("metadata", ErrArtifactInconsistent, "features_used %d but feature list has %d", m.FeaturesUsed, n)
	}
	if len(m.FeatureNames) > 0 && !slices.Equal(m.FeatureNames, b.Features) {
		return artifactErr("metadata", ErrArtifactInconsistent, "feature_names differ from feature list")
	}
	return nil
}

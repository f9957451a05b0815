package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/classifier"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/scaler"
)

// checksummed lists the artifacts whose digests are recorded in the metadata.
var checksummed = []string{ModelFile, ScalerFile, FeaturesFile}

// WriteDir writes the four artifact files of b into dir, which must exist.
// The metadata is written last and records the digests of the others.
func WriteDir(dir string, b *Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	model, err := classifier.Marshal(b.Classifier)
	if err != nil {
		return fmt.Errorf("bundle: %w", err)
	}
	sc, err := json.MarshalIndent(b.Scaler, "", "  ")
	if err != nil {
		return fmt.Errorf("bundle: encode scaler: %w", err)
	}
	names, err := json.MarshalIndent(b.Features, "", "  ")
	if err != nil {
		return fmt.Errorf("bundle: encode features: %w", err)
	}

	pieces := map[string][]byte{ModelFile: model, ScalerFile: sc, FeaturesFile: names}
	sums := make(map[string]string, len(pieces))
	for _, name := range checksummed {
		if err := writeFile(filepath.Join(dir, name), pieces[name]); err != nil {
			return err
		}
		sums[name] = digest(pieces[name])
	}

	b.Metadata.Checksums = sums
	meta, err := json.MarshalIndent(b.Metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("bundle: encode metadata: %w", err)
	}
	return writeFile(filepath.Join(dir, MetadataFile), meta)
}

// ReadDir loads and verifies the bundle stored in dir.
func ReadDir(dir string, reg *classifier.Registry) (*Bundle, error) {
	raw := make(map[string][]byte, 4)
	for _, name := range []string{ModelFile, ScalerFile, FeaturesFile, MetadataFile} {
		data, err := readFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		raw[name] = data
	}

	var meta Metadata
	if err := json.Unmarshal(raw[MetadataFile], &meta); err != nil {
		return nil, artifactErr("metadata", ErrArtifactCorrupt, "%v", err)
	}
	for _, name := range checksummed {
		want, ok := meta.Checksums[name]
		if !ok {
			continue
		}
		if got := digest(raw[name]); got != want {
			return nil, artifactErr(name, ErrArtifactCorrupt, "checksum %s does not match metadata %s", got, want)
		}
	}

	var features []string
	if err := json.Unmarshal(raw[FeaturesFile], &features); err != nil {
		return nil, artifactErr("features", ErrArtifactCorrupt, "%v", err)
	}
	var sc scaler.Standard
	if err := json.Unmarshal(raw[ScalerFile], &sc); err != nil {
		return nil, artifactErr("scaler", ErrArtifactCorrupt, "%v", err)
	}
	model, err := reg.Unmarshal(raw[ModelFile])
	if err != nil {
		return nil, artifactErr("model", ErrArtifactCorrupt, "%v", err)
	}

	b := &Bundle{Classifier: model, Scaler: &sc, Features: features, Metadata: meta}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func writeFile(path string, data []byte) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("bundle: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("bundle: close %s: %w", path, cerr)
		}
	}()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("bundle: write %s: %w", path, err)
	}
	return f.Sync()
}

func readFile(path string) ([]byte, error) {
	piece := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, artifactErr(piece, ErrArtifactMissing, "%s not found", path)
		}
		return nil, artifactErr(piece, ErrArtifactMissing, "%v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, artifactErr(piece, ErrArtifactCorrupt, "%v", err)
	}
	return data, nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

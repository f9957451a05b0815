package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/classifier"
)

const (
	versionsDir = "versions"
	currentLink = "current"
	tmpPrefix   = ".tmp-"
)

// Store is a directory of published bundles:
//
//	<root>/versions/<version>/   one directory per published bundle
//	<root>/current               symlink to the live version
//
// A root holding the four artifact files directly is also loadable.
type Store struct {
	root string
	reg  *classifier.Registry
}

// NewStore returns a Store rooted at root. reg decodes classifier families.
func NewStore(root string, reg *classifier.Registry) *Store {
	return &Store{root: root, reg: reg}
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// NewVersion returns a sortable, unique version id.
func NewVersion(now time.Time) string {
	return now.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}

// Publish writes b as a new version and atomically repoints current at it.
// Nothing visible changes unless every file was written. b.Metadata.Version
// is assigned when empty.
func (s *Store) Publish(b *Bundle) (version string, err error) {
	if b.Metadata.Version == "" {
		b.Metadata.Version = NewVersion(time.Now())
	}
	version = b.Metadata.Version
	if strings.ContainsAny(version, `/\`) || version == "." || version == ".." || strings.HasPrefix(version, ".") {
		return "", fmt.Errorf("bundle: invalid version %q", version)
	}

	versions := filepath.Join(s.root, versionsDir)
	if err := os.MkdirAll(versions, 0o755); err != nil {
		return "", fmt.Errorf("bundle: %w", err)
	}
	final := filepath.Join(versions, version)
	if _, err := os.Stat(final); err == nil {
		return "", fmt.Errorf("bundle: version %s already published", version)
	}

	tmp, err := os.MkdirTemp(versions, tmpPrefix)
	if err != nil {
		return "", fmt.Errorf("bundle: %w", err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(tmp)
		}
	}()
	if err := WriteDir(tmp, b); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("bundle: publish %s: %w", version, err)
	}

	link := filepath.Join(s.root, tmpPrefix+uuid.NewString())
	if err := os.Symlink(filepath.Join(versionsDir, version), link); err != nil {
		return "", fmt.Errorf("bundle: link %s: %w", version, err)
	}
	if err := os.Rename(link, filepath.Join(s.root, currentLink)); err != nil {
		os.Remove(link)
		return "", fmt.Errorf("bundle: activate %s: %w", version, err)
	}
	return version, nil
}

// Dir resolves the directory holding the live bundle.
func (s *Store) Dir() (string, error) {
	cur := filepath.Join(s.root, currentLink)
	info, err := os.Stat(cur)
	switch {
	case err == nil && info.IsDir():
		return cur, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("bundle: %w", err)
	}
	return s.root, nil
}

// Current returns the live version name, or "" when the store has no
// current link.
func (s *Store) Current() (string, error) {
	target, err := os.Readlink(filepath.Join(s.root, currentLink))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("bundle: %w", err)
	}
	return filepath.Base(target), nil
}

// Versions lists published versions, oldest first.
func (s *Store) Versions() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, versionsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("bundle: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Load reads and verifies the live bundle.
func (s *Store) Load() (*Bundle, error) {
	dir, err := s.Dir()
	if err != nil {
		return nil, err
	}
	return ReadDir(dir, s.reg)
}

// LoadVersion reads and verifies a specific published version.
func (s *Store) LoadVersion(version string) (*Bundle, error) {
	return ReadDir(filepath.Join(s.root, versionsDir, version), s.reg)
}

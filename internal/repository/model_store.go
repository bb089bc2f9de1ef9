package repository

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"PriceCast/internal/domain/models"
	domrepo "PriceCast/internal/domain/repository"
)

const (
	modelSuffix      = "_stock_prediction_model.json"
	defaultModelFile = "stock_prediction_model.json"
)

// FSModelStore names artifacts {TICKER}_stock_prediction_model.json under dir.
// A shared default artifact, if present, serves tickers without their own.
type FSModelStore struct {
	dir string
}

func NewFSModelStore(dir string) *FSModelStore {
	return &FSModelStore{dir: dir}
}

func (s *FSModelStore) PathFor(ticker string) string {
	return filepath.Join(s.dir, ticker+modelSuffix)
}

func (s *FSModelStore) defaultPath() string {
	return filepath.Join(s.dir, defaultModelFile)
}

// Save writes through a temp file in the same directory and renames it into
// place, so readers see either the old artifact or the new one.
func (s *FSModelStore) Save(ticker string, write func(w io.Writer) error) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create models dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+ticker+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}

	path := s.PathFor(ticker)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publish artifact: %w", err)
	}
	return path, nil
}

func (s *FSModelStore) Resolve(ticker string) (domrepo.ArtifactRef, error) {
	if path := s.PathFor(ticker); fileExists(path) {
		return domrepo.ArtifactRef{Path: path, Ticker: ticker}, nil
	}
	if path := s.defaultPath(); fileExists(path) {
		return domrepo.ArtifactRef{Path: path, Ticker: ticker, IsDefault: true}, nil
	}
	return domrepo.ArtifactRef{}, fmt.Errorf("%w: no artifact for %s and no default", models.ErrModelNotFound, ticker)
}

func (s *FSModelStore) Open(ref domrepo.ArtifactRef) (io.ReadCloser, error) {
	f, err := os.Open(ref.Path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", models.ErrModelNotFound, ref.Path)
	}
	return f, err
}

// List returns per-ticker artifacts, newest first. The shared default is skipped.
func (s *FSModelStore) List() ([]domrepo.ModelFile, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return []domrepo.ModelFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read models dir: %w", err)
	}

	out := make([]domrepo.ModelFile, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, modelSuffix) {
			continue
		}
		ticker := strings.TrimSuffix(name, modelSuffix)
		if ticker == "" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, domrepo.ModelFile{
			Ticker:  ticker,
			Path:    filepath.Join(s.dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

var _ domrepo.ModelStore = (*FSModelStore)(nil)

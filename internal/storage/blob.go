// Package storage provides the blob store used for raw season snapshots,
// engineered feature tables and serialized model artifacts.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	RawBucket      = "raw"
	FeaturesBucket = "features"
	ModelsBucket   = "models"
)

// ErrNotFound is returned when no blob exists at the requested path.
var ErrNotFound = errors.New("blob not found")

// BlobStore is a content-addressed-by-path object store. Put overwrites any
// existing object at the same path so stage re-runs stay idempotent.
type BlobStore interface {
	Put(bucket, path string, data []byte) error
	Get(bucket, path string) ([]byte, error)
	List(bucket, prefix string) ([]string, error)
}

// FeaturesPath is the canonical location of one (season, week) feature table.
func FeaturesPath(season, week int) string {
	return fmt.Sprintf("season=%d/week=%d/features.bin", season, week)
}

// RawWeeklyPath is the canonical location of one season's weekly stat snapshot.
func RawWeeklyPath(season int) string {
	return fmt.Sprintf("nfl/%d/weekly.bin", season)
}

// RawSchedulePath is the canonical location of one season's schedule snapshot.
func RawSchedulePath(season int) string {
	return fmt.Sprintf("nfl/%d/schedule.bin", season)
}

// SleeperPlayersPath is the canonical location of the raw platform player map.
func SleeperPlayersPath() string {
	return "sleeper/players.json"
}

// SleeperLeaguePath is the canonical location of one raw league document
// (league, users, rosters).
func SleeperLeaguePath(leagueID, doc string) string {
	return fmt.Sprintf("sleeper/league/%s/%s.json", leagueID, doc)
}

// SleeperLeagueWeekPath is the canonical location of one raw weekly league
// document (matchups, transactions).
func SleeperLeagueWeekPath(leagueID string, week int, doc string) string {
	return fmt.Sprintf("sleeper/league/%s/week=%d/%s.json", leagueID, week, doc)
}

// ModelBundlePath is the canonical location of a model artifact.
func ModelBundlePath(modelID string) string {
	return fmt.Sprintf("%s/bundle.json", modelID)
}

// ModelMetricsPath is the canonical location of a model's training report.
func ModelMetricsPath(modelID string) string {
	return fmt.Sprintf("%s/metrics.json", modelID)
}

// FileBlobStore stores blobs under root/bucket/path on the local filesystem.
type FileBlobStore struct {
	root string
}

func NewFileBlobStore(root string) (*FileBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &FileBlobStore{root: root}, nil
}

func (s *FileBlobStore) fullPath(bucket, path string) string {
	return filepath.Join(s.root, bucket, filepath.FromSlash(path))
}

func (s *FileBlobStore) Put(bucket, path string, data []byte) error {
	full := s.fullPath(bucket, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	// Write-then-rename so readers never observe a partial object
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		return fmt.Errorf("failed to publish blob: %w", err)
	}
	return nil
}

func (s *FileBlobStore) Get(bucket, path string) ([]byte, error) {
	data, err := os.ReadFile(s.fullPath(bucket, path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s/%s: %w", bucket, path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read blob %s/%s: %w", bucket, path, err)
	}
	return data, nil
}

func (s *FileBlobStore) List(bucket, prefix string) ([]string, error) {
	base := filepath.Join(s.root, bucket)
	var out []string
	err := filepath.Walk(base, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, relErr := filepath.Rel(base, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs in %s: %w", bucket, err)
	}
	return out, nil
}

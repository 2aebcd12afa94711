package checkpoint

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/pavelanni/aqs/internal/model"
)

const fileSuffix = "_checkpoint.json"

// FileStore keeps one JSON file per (model, course) in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir. The directory is created
// on first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the checkpoint file for (modelName, courseID).
func (s *FileStore) Path(modelName, courseID string) string {
	name := model.SanitizeFilename(modelName) + "_" + model.SanitizeFilename(courseID) + fileSuffix
	return filepath.Join(s.dir, name)
}

// Load reads a checkpoint. A missing file, or one recorded for a different
// key, yields (nil, nil).
func (s *FileStore) Load(modelName, courseID string) (*model.Checkpoint, error) {
	cp, err := readFile(s.Path(modelName, courseID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if cp.ModelName != modelName || cp.CourseID != courseID {
		return nil, nil
	}
	return cp, nil
}

func readFile(path string) (*model.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", filepath.Base(path), err)
	}
	return &cp, nil
}

// Save writes the checkpoint through a temp file and rename so readers see
// either the old or the new version.
func (s *FileStore) Save(cp model.Checkpoint) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(cp.ModelName, cp.CourseID)); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Clear deletes the checkpoint file; a missing file is not an error.
func (s *FileStore) Clear(modelName, courseID string) error {
	err := os.Remove(s.Path(modelName, courseID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// List returns every readable checkpoint, ordered by model then course.
// Unreadable files are logged and skipped.
func (s *FileStore) List() ([]model.Checkpoint, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*"+fileSuffix))
	if err != nil {
		return nil, fmt.Errorf("glob checkpoints: %w", err)
	}
	var out []model.Checkpoint
	for _, p := range paths {
		cp, err := readFile(p)
		if err != nil {
			slog.Warn("skipping unreadable checkpoint", "file", p, "error", err)
			continue
		}
		out = append(out, *cp)
	}
	slices.SortFunc(out, func(a, b model.Checkpoint) int {
		return cmp.Or(cmp.Compare(a.ModelName, b.ModelName), cmp.Compare(a.CourseID, b.CourseID))
	})
	return out, nil
}

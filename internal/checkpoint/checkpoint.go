// Package checkpoint records which assessments of a (model, course) run have
// completed so interrupted batches can resume without repeating work.
package checkpoint

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/pavelanni/aqs/internal/model"
)

// Store persists checkpoints. Load returns (nil, nil) when no checkpoint
// exists for the key.
type Store interface {
	Load(modelName, courseID string) (*model.Checkpoint, error)
	Save(cp model.Checkpoint) error
	Clear(modelName, courseID string) error
	List() ([]model.Checkpoint, error)
}

// Manager wraps a Store and never lets a store failure stop a run: errors
// are logged and a failed load reads as "no checkpoint".
type Manager struct {
	store Store
	mu    sync.Mutex
}

// NewManager creates a Manager over store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Load returns the checkpoint for (modelName, courseID), or nil.
func (m *Manager) Load(modelName, courseID string) *model.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(modelName, courseID)
}

func (m *Manager) load(modelName, courseID string) *model.Checkpoint {
	cp, err := m.store.Load(modelName, courseID)
	if err != nil {
		slog.Warn("failed to load checkpoint, starting fresh", "model", modelName, "course", courseID, "error", err)
		return nil
	}
	if cp != nil && (cp.ModelName != modelName || cp.CourseID != courseID) {
		slog.Warn("checkpoint key mismatch, ignoring", "model", modelName, "course", courseID)
		return nil
	}
	return cp
}

// Save overwrites the checkpoint with the given completed list.
func (m *Manager) Save(modelName, courseID, courseName string, total int, completed []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.save(model.NewCheckpoint(modelName, courseID, courseName, total, completed))
}

func (m *Manager) save(cp model.Checkpoint) {
	if err := m.store.Save(cp); err != nil {
		slog.Warn("failed to save checkpoint", "model", cp.ModelName, "course", cp.CourseID, "error", err)
	}
}

// MarkCompleted re-reads the stored checkpoint, appends name if missing and
// writes it back, so concurrent writers for one key do not lose updates.
// It returns the checkpoint as saved.
func (m *Manager) MarkCompleted(modelName, courseID, courseName string, total int, name string) model.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	completed := m.load(modelName, courseID).Completed()
	if !slices.Contains(completed, name) {
		completed = append(completed, name)
	}
	cp := model.NewCheckpoint(modelName, courseID, courseName, total, completed)
	m.save(cp)
	return cp
}

// Clear removes the checkpoint for (modelName, courseID).
func (m *Manager) Clear(modelName, courseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Clear(modelName, courseID); err != nil {
		slog.Warn("failed to clear checkpoint", "model", modelName, "course", courseID, "error", err)
	}
}

// List returns all stored checkpoints.
func (m *Manager) List() ([]model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.List()
}

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/aqs/internal/model"
)

// Load returns the checkpoint for (modelName, courseID), or nil
// when none is stored.
func (s *Store) Load(modelName, courseID string) (*model.Checkpoint, error) {
	row := s.db.QueryRow(
		`SELECT model_name, course_id, course_name, total_assessments, completed_assessments, status, last_updated
		 FROM checkpoints WHERE model_name = ? AND course_id = ?`, modelName, courseID,
	)
	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// Save upserts the checkpoint for its (model, course) key.
func (s *Store) Save(cp model.Checkpoint) error {
	completed, err := json.Marshal(cp.Completed())
	if err != nil {
		return fmt.Errorf("marshal completed list: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO checkpoints (model_name, course_id, course_name, total_assessments, completed_assessments, status, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(model_name, course_id) DO UPDATE SET
		   course_name = excluded.course_name,
		   total_assessments = excluded.total_assessments,
		   completed_assessments = excluded.completed_assessments,
		   status = excluded.status,
		   last_updated = excluded.last_updated`,
		cp.ModelName, cp.CourseID, cp.CourseName, cp.TotalAssessments, string(completed), string(cp.Status), cp.LastUpdated,
	)
	return err
}

// Clear deletes the checkpoint for (modelName, courseID).
func (s *Store) Clear(modelName, courseID string) error {
	_, err := s.db.Exec(`DELETE FROM checkpoints WHERE model_name = ? AND course_id = ?`, modelName, courseID)
	return err
}

// List returns all checkpoints ordered by model then course.
func (s *Store) List() ([]model.Checkpoint, error) {
	rows, err := s.db.Query(
		`SELECT model_name, course_id, course_name, total_assessments, completed_assessments, status, last_updated
		 FROM checkpoints ORDER BY model_name, course_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (model.Checkpoint, error) {
	var cp model.Checkpoint
	var completed, status string
	if err := row.Scan(&cp.ModelName, &cp.CourseID, &cp.CourseName, &cp.TotalAssessments, &completed, &status, &cp.LastUpdated); err != nil {
		return cp, err
	}
	if err := json.Unmarshal([]byte(completed), &cp.CompletedAssessments); err != nil {
		return cp, fmt.Errorf("parse completed list for %s/%s: %w", cp.ModelName, cp.CourseID, err)
	}
	cp.CompletedCount = len(cp.CompletedAssessments)
	cp.Status = model.CheckpointStatus(status)
	return cp, nil
}

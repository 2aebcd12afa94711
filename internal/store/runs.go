package store

import (
	"github.com/pavelanni/aqs/internal/model"
)

// RecordRun stores the summary of a finished run. Re-recording a run ID
// replaces the earlier row.
func (s *Store) RecordRun(r model.RunRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, model_name, course_id, course_name, started_at, finished_at,
		   total_assessments, evaluated, failed, skipped, total_tokens, total_cost_usd)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   finished_at = excluded.finished_at,
		   evaluated = excluded.evaluated,
		   failed = excluded.failed,
		   skipped = excluded.skipped,
		   total_tokens = excluded.total_tokens,
		   total_cost_usd = excluded.total_cost_usd`,
		r.RunID, r.ModelName, r.CourseID, r.CourseName, r.StartedAt, r.FinishedAt,
		r.TotalAssessments, r.Evaluated, r.Failed, r.Skipped, r.TotalTokens, r.TotalCostUSD,
	)
	return err
}

// ListRuns returns run records, newest first. Empty filters match everything.
func (s *Store) ListRuns(modelName, courseID string) ([]model.RunRecord, error) {
	query := `SELECT run_id, model_name, course_id, course_name, started_at, finished_at,
	            total_assessments, evaluated, failed, skipped, total_tokens, total_cost_usd
	          FROM runs WHERE 1=1`
	var args []any
	if modelName != "" {
		query += ` AND model_name = ?`
		args = append(args, modelName)
	}
	if courseID != "" {
		query += ` AND course_id = ?`
		args = append(args, courseID)
	}
	query += ` ORDER BY started_at DESC, run_id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []model.RunRecord
	for rows.Next() {
		var r model.RunRecord
		if err := rows.Scan(&r.RunID, &r.ModelName, &r.CourseID, &r.CourseName, &r.StartedAt, &r.FinishedAt,
			&r.TotalAssessments, &r.Evaluated, &r.Failed, &r.Skipped, &r.TotalTokens, &r.TotalCostUSD); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

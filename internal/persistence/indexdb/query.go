package indexdb

import (
	"context"
	"database/sql"
)

// SearchRow is the indexed summary of one search.
type SearchRow struct {
	ID         string `json:"id"`
	WorldRev   int64  `json:"world_rev"`
	Start      [3]int `json:"start"`
	Goal       [3]int `json:"goal"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Cost       int    `json:"cost"`
	Steps      int    `json:"steps"`
	Cells      int    `json:"cells"`
	Waypoints  int    `json:"waypoints"`
	FinishedAt string `json:"finished_at"`
	DurationUS int64  `json:"duration_us"`
}

// RecentSearches lists the newest searches, optionally only those with the
// given status.
func RecentSearches(ctx context.Context, db *sql.DB, status string, limit int) ([]SearchRow, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT id,world_rev,start_x,start_y,start_z,goal_x,goal_y,goal_z,status,COALESCE(reason,''),cost,steps,cells,waypoints,finished_at,duration_us FROM searches ORDER BY finished_at DESC LIMIT ?`
	args := []any{limit}
	if status != "" {
		q = `SELECT id,world_rev,start_x,start_y,start_z,goal_x,goal_y,goal_z,status,COALESCE(reason,''),cost,steps,cells,waypoints,finished_at,duration_us FROM searches WHERE status=? ORDER BY finished_at DESC LIMIT ?`
		args = []any{status, limit}
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		var r SearchRow
		if err := rows.Scan(
			&r.ID, &r.WorldRev,
			&r.Start[0], &r.Start[1], &r.Start[2],
			&r.Goal[0], &r.Goal[1], &r.Goal[2],
			&r.Status, &r.Reason, &r.Cost, &r.Steps, &r.Cells, &r.Waypoints,
			&r.FinishedAt, &r.DurationUS,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StatusCount is the number of searches that ended with Status and Reason.
type StatusCount struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Count  int    `json:"count"`
}

func CountByStatus(ctx context.Context, db *sql.DB) ([]StatusCount, error) {
	rows, err := db.QueryContext(ctx, `SELECT status,COALESCE(reason,''),COUNT(*) FROM searches GROUP BY status,reason ORDER BY status,reason`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Reason, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type SnapshotRow struct {
	Path       string `json:"path"`
	WorldID    string `json:"world_id"`
	Revision   int64  `json:"revision"`
	Seed       int64  `json:"seed"`
	Height     int    `json:"height"`
	Chunks     int    `json:"chunks"`
	RecordedAt string `json:"recorded_at"`
}

func RecentSnapshots(ctx context.Context, db *sql.DB, limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `SELECT path,world_id,revision,seed,height,chunks,recorded_at FROM snapshots ORDER BY revision DESC, recorded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		if err := rows.Scan(&r.Path, &r.WorldID, &r.Revision, &r.Seed, &r.Height, &r.Chunks, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Open opens an index read-only for queries.
func Open(path string) (*sql.DB, error) {
	return sql.Open("sqlite", "file:"+path+"?mode=ro")
}

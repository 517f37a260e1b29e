package gradestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"gradewatch/lib/scrapers/jiaowu"
	"gradewatch/lib/timezone"
	"time"

	_ "embed"
)

//go:embed schema.sql
var Schema string

// Store keeps a per-user history of grade snapshots, the newest one
// doubles as the comparison baseline across daemon restarts.
type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{
		db: database,
	}
}

type Snapshot struct {
	Time  time.Time
	Grade jiaowu.Grade
}

type PushRequest struct {
	User  string
	Time  time.Time
	Grade jiaowu.Grade
	// number of snapshots to keep per user after the push, 0 keeps
	// everything
	Keep int64
}

func (s Store) Push(ctx context.Context, req PushRequest) error {
	scores, err := json.Marshal(req.Grade.Scores)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO grade_snapshot (user, time, gpa, sem_gpa, credits, scores)
		VALUES (?, ?, ?, ?, ?, ?)`,
		req.User, req.Time.Unix(), req.Grade.Gpa, req.Grade.SemGpa, req.Grade.Credits, string(scores),
	)
	if err != nil {
		return err
	}

	if req.Keep > 0 {
		_, err = tx.ExecContext(
			ctx,
			`DELETE FROM grade_snapshot
			WHERE user = ? AND id NOT IN (
				SELECT id FROM grade_snapshot
				WHERE user = ?
				ORDER BY time DESC, id DESC
				LIMIT ?
			)`,
			req.User, req.User, req.Keep,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Latest returns the newest snapshot for a user, false if there is none.
func (s Store) Latest(ctx context.Context, user string) (Snapshot, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT time, gpa, sem_gpa, credits, scores
		FROM grade_snapshot
		WHERE user = ?
		ORDER BY time DESC, id DESC
		LIMIT 1`,
		user,
	)
	snapshot, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	return snapshot, true, nil
}

// History returns up to `limit` snapshots for a user, newest first.
func (s Store) History(ctx context.Context, user string, limit int64) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT time, gpa, sem_gpa, credits, scores
		FROM grade_snapshot
		WHERE user = ?
		ORDER BY time DESC, id DESC
		LIMIT ?`,
		user, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snapshot)
	}
	return out, rows.Err()
}

func scanSnapshot(row interface{ Scan(dest ...any) error }) (Snapshot, error) {
	var unix int64
	var scoresJson string
	var grade jiaowu.Grade

	err := row.Scan(&unix, &grade.Gpa, &grade.SemGpa, &grade.Credits, &scoresJson)
	if err != nil {
		return Snapshot{}, err
	}
	err = json.Unmarshal([]byte(scoresJson), &grade.Scores)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Time:  time.Unix(unix, 0).In(timezone.Location),
		Grade: grade,
	}, nil
}

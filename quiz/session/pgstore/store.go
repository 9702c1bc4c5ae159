// Package pgstore is a Postgres-backed session.Store over the quiz_attempts table.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/quizbot/quiz/session"
)

const (
	lockQuery   = `SELECT pg_advisory_xact_lock(hashtext($1))`
	selectQuery = `SELECT user_id, question_index, answers, score, updated_at
		FROM quiz_attempts WHERE user_id = $1`

	lockedSelectQuery = selectQuery + ` FOR UPDATE`

	upsertQuery = `INSERT INTO quiz_attempts (user_id, question_index, answers, score, updated_at)
		VALUES (:user_id, :question_index, :answers, :score, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET
			question_index = EXCLUDED.question_index,
			answers        = EXCLUDED.answers,
			score          = EXCLUDED.score,
			updated_at     = EXCLUDED.updated_at`
	deleteQuery = `DELETE FROM quiz_attempts WHERE user_id = $1`
	keysQuery   = `SELECT user_id FROM quiz_attempts ORDER BY user_id`
	countQuery  = `SELECT count(*) FROM quiz_attempts`
	idleQuery   = `SELECT user_id FROM quiz_attempts WHERE updated_at < $1 ORDER BY updated_at`
)

type attemptRow struct {
	UserID        string         `db:"user_id"`
	QuestionIndex int            `db:"question_index"`
	Answers       pq.StringArray `db:"answers"`
	Score         int            `db:"score"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r attemptRow) attempt() *session.Attempt {
	answers := []string(r.Answers)
	if answers == nil {
		answers = []string{}
	}
	return &session.Attempt{
		Index:     r.QuestionIndex,
		Answers:   answers,
		Score:     r.Score,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

// Store implements session.Store with one row per user.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// New wraps db. now may be nil.
func New(db *sqlx.DB, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}
}

// Get returns the stored attempt or nil.
func (s *Store) Get(ctx context.Context, userID string) (*session.Attempt, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, session.ErrEmptyKey
	}
	var row attemptRow
	err := s.db.GetContext(ctx, &row, selectQuery, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select attempt: %w", err)
	}
	return row.attempt(), nil
}

// Update serializes writers of one key with a transaction-scoped advisory
// lock, which also covers the case where no row exists yet.
func (s *Store) Update(ctx context.Context, userID string, fn session.UpdateFunc) (result *session.Attempt, err error) {
	if strings.TrimSpace(userID) == "" {
		return nil, session.ErrEmptyKey
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, lockQuery, userID); err != nil {
		return nil, fmt.Errorf("advisory lock: %w", err)
	}

	var current *session.Attempt
	var row attemptRow
	switch qerr := tx.GetContext(ctx, &row, lockedSelectQuery, userID); {
	case qerr == nil:
		current = row.attempt()
	case errors.Is(qerr, sql.ErrNoRows):
	default:
		err = fmt.Errorf("select attempt: %w", qerr)
		return nil, err
	}

	next, ferr := fn(current.Clone())
	if errors.Is(ferr, session.ErrSkip) {
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return current, nil
	}
	if ferr != nil {
		err = ferr
		return nil, err
	}

	if next == nil {
		if current != nil {
			if _, err = tx.ExecContext(ctx, deleteQuery, userID); err != nil {
				return nil, fmt.Errorf("delete attempt: %w", err)
			}
		}
	} else {
		next = next.Clone()
		next.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)
		_, err = tx.NamedExecContext(ctx, upsertQuery, attemptRow{
			UserID:        userID,
			QuestionIndex: next.Index,
			Answers:       pq.StringArray(next.Answers),
			Score:         next.Score,
			UpdatedAt:     next.UpdatedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("upsert attempt: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return next.Clone(), nil
}

// Keys lists every stored user id.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.db.SelectContext(ctx, &keys, keysQuery); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return keys, nil
}

// IdleKeys lists user ids not written since before.
func (s *Store) IdleKeys(ctx context.Context, before time.Time) ([]string, error) {
	var keys []string
	if err := s.db.SelectContext(ctx, &keys, idleQuery, before.UTC()); err != nil {
		return nil, fmt.Errorf("list idle attempts: %w", err)
	}
	return keys, nil
}

// Len counts stored attempts.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, countQuery); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

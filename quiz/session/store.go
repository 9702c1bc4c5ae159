// Package session stores one in-progress quiz attempt per user and exposes a
// single atomic per-key update primitive.
package session

import (
	"context"
	"errors"
	"slices"
	"time"
)

var (
	// ErrSkip may be returned by an UpdateFunc to leave the stored value untouched.
	// Update then returns the current value and a nil error.
	ErrSkip = errors.New("session: skip write")
	// ErrEmptyKey is returned for a blank user key.
	ErrEmptyKey = errors.New("session: empty user key")
	// ErrConflict is returned when an optimistic backend exhausts its retries.
	ErrConflict = errors.New("session: too many concurrent updates")
	// ErrCorrupt is returned by Update when the stored value cannot be decoded.
	// The backend drops the value first, so the next Update sees no attempt.
	ErrCorrupt = errors.New("session: corrupt stored attempt")
)

// Attempt is a user's in-progress pass through the question sequence.
// len(Answers) always equals Index. Score is the sum of the answers'
// contributions. UpdatedAt is stamped by the store on every write.
type Attempt struct {
	Index     int       `json:"index"`
	Answers   []string  `json:"answers"`
	Score     int       `json:"score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy; nil stays nil.
func (a *Attempt) Clone() *Attempt {
	if a == nil {
		return nil
	}
	c := *a
	c.Answers = slices.Clone(a.Answers)
	if c.Answers == nil {
		c.Answers = []string{}
	}
	return &c
}

// UpdateFunc maps the current attempt (nil when absent) to the next one.
// Returning nil deletes the entry. Returning an error aborts without writing.
// Optimistic backends may call it more than once, so it must not have side effects.
type UpdateFunc func(current *Attempt) (*Attempt, error)

// Store is the contract every backend satisfies. Update is indivisible with
// respect to other updates of the same key and never blocks other keys.
type Store interface {
	Get(ctx context.Context, userID string) (*Attempt, error)
	Update(ctx context.Context, userID string, fn UpdateFunc) (*Attempt, error)
}

// Lister enumerates stored keys. The idle sweeper needs it.
type Lister interface {
	Keys(ctx context.Context) ([]string, error)
}

// IdleLister narrows a sweep to keys untouched since before.
type IdleLister interface {
	IdleKeys(ctx context.Context, before time.Time) ([]string, error)
}

// Counter reports how many attempts are stored.
type Counter interface {
	Len(ctx context.Context) (int, error)
}

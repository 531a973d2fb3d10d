// Package session provides the caller session a job service is bound to.
package session

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Session is an immutable value identifying a caller session.
type Session struct {
	id      uuid.UUID
	created time.Time
}

// New returns a session with a fresh random id.
func New() Session {
	return Session{
		id:      uuid.New(),
		created: time.Now().UTC(),
	}
}

// Parse restores a session from its string id. The creation time of a
// parsed session is unknown and stays zero.
func Parse(s string) (Session, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Session{}, err
	}
	if id == uuid.Nil {
		return Session{}, errors.New("nil session id")
	}
	return Session{id: id}, nil
}

func (s Session) ID() string {
	return s.id.String()
}

func (s Session) Created() time.Time {
	return s.created
}

// IsZero reports whether s is the zero Session.
func (s Session) IsZero() bool {
	return s.id == uuid.Nil
}

func (s Session) LogValue() slog.Value {
	return slog.StringValue(s.ID())
}

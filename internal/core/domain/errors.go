package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Business-rule errors. Handlers map these onto HTTP statuses; none of them
// represents a transient fault, so callers must not retry them.
var (
	ErrProposalNotFound  = errors.New("proposal not found")
	ErrSessionNotFound   = errors.New("verification session not found")
	ErrVotingClosed      = errors.New("voting is closed for this proposal")
	ErrDuplicateVote     = errors.New("voter has already voted on this proposal")
	ErrProposalImmutable = errors.New("proposal has recorded votes and cannot be deleted")
	ErrProposalOpen      = errors.New("proposal voting window has not closed yet")
	ErrUnauthenticated   = errors.New("caller is not authenticated")
)

// ValidationError carries one message per invalid field so a form can
// highlight every problem at once instead of failing on the first.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records a problem for the named field.
func (e *ValidationError) Add(field, msg string) {
	e.Fields[field] = msg
}

// Any reports whether at least one field failed validation.
func (e *ValidationError) Any() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

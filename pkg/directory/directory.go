// Package directory implements the contact directory collaborator.
//
// Workflows look contacts up by name and never mutate them. Two matching
// modes exist because the workflows disagree on lookup strictness: the
// adaptive workflow matches query tokens against name tokens, the rigid
// workflow matches by substring. Both can return zero, one, or many
// contacts; resolving ambiguity is the caller's problem.
package directory

import (
	"context"
	"errors"
	"strings"
)

// ErrDirectoryUnavailable reports a backing-store failure.
var ErrDirectoryUnavailable = errors.New("directory unavailable")

// Contact is a directory record.
type Contact struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Role       string `json:"role"`
	Active     bool   `json:"active"`
}

// Directory is the lookup collaborator consumed by the workflows.
type Directory interface {
	// Find returns active contacts whose name contains every query term
	// as a whole token.
	Find(ctx context.Context, name string) ([]Contact, error)

	// FindContaining returns active contacts whose name contains the
	// query as a case-insensitive substring.
	FindContaining(ctx context.Context, name string) ([]Contact, error)
}

// matchTokens reports whether every term of the query equals some token of
// the contact name, case-insensitively. An empty query matches nothing.
func matchTokens(query, name string) bool {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return false
	}
	parts := strings.Fields(strings.ToLower(name))

	for _, term := range terms {
		found := false
		for _, part := range parts {
			if term == part {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// matchSubstring reports whether the name contains the query,
// case-insensitively. An empty query matches nothing.
func matchSubstring(query, name string) bool {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return false
	}
	return strings.Contains(strings.ToLower(name), query)
}

func filter(contacts []Contact, match func(string) bool) []Contact {
	var out []Contact
	for _, c := range contacts {
		if c.Active && match(c.Name) {
			out = append(out, c)
		}
	}
	return out
}

package remote

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ValidationError is the server's structured 422 answer: the input is bad
// and will stay bad, so the caller sees it verbatim and nothing is queued
// for retry.
type ValidationError struct {
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		if e.Message != "" {
			return fmt.Sprintf("validation failed: %s", e.Message)
		}
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

// NotFoundError is the server's authoritative 404: the resource does not
// exist. It is never masked by a stale local copy, and for queued deletes
// and updates it means "already applied".
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// IsValidation reports whether err is a structured validation rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is an authoritative server 404.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsTransient reports whether err should be treated as a connectivity
// failure: anything that is not a definitive server verdict (validation or
// not-found) is worth retrying once the network recovers.
func IsTransient(err error) bool {
	return err != nil && !IsValidation(err) && !IsNotFound(err)
}

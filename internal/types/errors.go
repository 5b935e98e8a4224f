package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrInvalidPageBudget = errors.New("page budget must be at least 1")
	ErrInvalidURL        = errors.New("invalid URL")
	ErrEmptyResponse     = errors.New("empty response body")
	ErrContainerNotFound = errors.New("dependents container not found")
	ErrUnexpectedMarkup  = errors.New("unexpected markup")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StructuralError reports a document that does not have the shape of a
// dependents listing. URL and Page are filled in once the failing page is known.
type StructuralError struct {
	URL    string
	Page   int
	Path   string
	Reason string
	Err    error
}

func (e *StructuralError) Error() string {
	msg := e.Reason
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.URL != "" {
		return fmt.Sprintf("structural error on page %d of %s (path=%q): %s", e.Page, e.URL, e.Path, msg)
	}
	return fmt.Sprintf("structural error (path=%q): %s", e.Path, msg)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// PipelineError wraps errors raised by a pipeline stage.
type PipelineError struct {
	Stage     string
	Dependent *Dependent
	Err       error
}

func (e *PipelineError) Error() string {
	if e.Dependent != nil {
		return fmt.Sprintf("pipeline error at stage %q for %s: %v", e.Stage, e.Dependent.FullName(), e.Err)
	}
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

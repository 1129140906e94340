// Package fault classifies errors by how the batch loop must react to them:
// keep going with the next item, skip the record, or stop the pass.
package fault

import "errors"

type Category string

const (
	// CategoryContained failures end the current item only.
	CategoryContained Category = "contained"
	// CategoryMalformed marks an item record that failed validation.
	CategoryMalformed Category = "malformed"
	// CategoryFatal failures end the pass; the current item is not committed.
	CategoryFatal Category = "fatal"
	// CategoryAcquisition means no authenticated session could be obtained.
	CategoryAcquisition Category = "acquisition"
)

type classifiedError struct {
	category Category
	code     string
	hint     string
	cause    error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func (e *classifiedError) Category() Category {
	return e.category
}

func (e *classifiedError) Code() string {
	return e.code
}

func (e *classifiedError) Hint() string {
	return e.hint
}

func Wrap(cause error, category Category, code, hint string) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category: category,
		code:     code,
		hint:     hint,
		cause:    cause,
	}
}

// Contained marks err as a per-item failure.
func Contained(err error, code string) error {
	return Wrap(err, CategoryContained, code, "")
}

// Fatal marks err as ending the pass, e.g. the browser went away mid-item.
func Fatal(err error, code string) error {
	return Wrap(err, CategoryFatal, code, "a new session is required")
}

// Acquisition marks a session that could not be established.
func Acquisition(err error, code string) error {
	return Wrap(err, CategoryAcquisition, code, "check the browser, wallet credentials and network, then retry")
}

// Malformed marks an item record that failed validation.
func Malformed(err error, code string) error {
	return Wrap(err, CategoryMalformed, code, "fix the record in the data file")
}

// CategoryOf returns the category attached to err. Unclassified errors are
// reported as contained: only explicit classification may stop a pass.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return CategoryContained
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func HintOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.hint
	}
	return ""
}

func IsFatal(err error) bool {
	switch CategoryOf(err) {
	case CategoryFatal, CategoryAcquisition:
		return true
	}
	return false
}

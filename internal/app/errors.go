package app

import "errors"

var (
	// ErrTitleRequired indicates a manual entry without a title.
	ErrTitleRequired = errors.New("title required")
	// ErrNameRequired indicates a medication without an Arabic name.
	ErrNameRequired = errors.New("medication name required")
	// ErrStopReasonRequired blocks stopping a medication without a reason.
	ErrStopReasonRequired = errors.New("stop reason required")
	// ErrDuplicateMedication indicates an active medication with the same
	// normalized name already exists. Recoverable: the caller may stop the
	// existing entry first.
	ErrDuplicateMedication = errors.New("active medication with this name already exists")
	// ErrNotFound indicates an unknown record or medication id.
	ErrNotFound = errors.New("not found")
)

package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	ErrProfileNotFound      = errors.New("profile not found")
	ErrProfileMisconfigured = errors.New("profile misconfigured")
	ErrNotPublishable       = errors.New("note is not publishable")
	ErrCorrupt              = errors.New("corrupt document")
	ErrUploadFailed         = errors.New("upload failed")
	ErrRunInProgress        = errors.New("publish run already in progress")
)

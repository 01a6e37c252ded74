// Package upload transfers a profile's staged artifacts to its destination.
package upload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/profile"
	"github.com/starford/folio/internal/storage"
)

// Request names the local artifacts of one publish run. Paths are relative
// to FS.
type Request struct {
	FS           *storage.FS
	Dir          string // profile workspace
	StagedDir    string
	MappingDir   string
	ContentIndex string // empty when the index is not published
	Invalidate   bool
}

// Result carries the diagnostic output of an upload.
type Result struct {
	Uploaded    int    `json:"uploaded"`
	Invalidated bool   `json:"invalidated"`
	Output      string `json:"output,omitempty"`
}

// Uploader transfers staged artifacts. A non-nil error means the destination
// may be incomplete and staging must be kept for a retry.
type Uploader interface {
	Upload(ctx context.Context, p profile.Profile, req Request) (Result, error)
}

// Factory returns the uploader for a profile's mechanism.
type Factory func(ctx context.Context, p profile.Profile) (Uploader, error)

// NewFactory returns a Factory that shells out through runner for CLI work.
func NewFactory(runner Runner, logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	cli := NewCLI(runner, logger)
	return func(ctx context.Context, p profile.Profile) (Uploader, error) {
		switch p.Mechanism {
		case profile.MechanismAWSCLI:
			return cli, nil
		case profile.MechanismS3:
			return NewS3(ctx, p, cli, logger)
		case profile.MechanismLocal:
			return NewLocal(logger), nil
		default:
			return nil, fmt.Errorf("%w: unknown mechanism %q", apperr.ErrProfileMisconfigured, p.Mechanism)
		}
	}
}

func failed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperr.ErrUploadFailed, fmt.Sprintf(format, args...))
}

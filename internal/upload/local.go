package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/profile"
	"github.com/starford/folio/internal/storage"
)

// Local combines staged artifacts into one JSON document keyed by UID. Notes
// already in the document and not restaged are kept.
type Local struct {
	logger *slog.Logger
}

func NewLocal(logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{logger: logger}
}

func (l *Local) Upload(_ context.Context, p profile.Profile, req Request) (Result, error) {
	target, name, err := l.target(p, req)
	if err != nil {
		return Result{}, failed("%v", err)
	}
	if p.Local.Compress && !strings.HasSuffix(name, ".zst") {
		name += ".zst"
	}

	combined := make(map[string]models.StagedNote)
	if target.Exists(name) {
		if data, err := target.Read(name); err == nil {
			if err := decodeCombined(data, p.Local.Compress, &combined); err != nil {
				l.logger.Warn("upload: existing output unreadable, rebuilding", slog.String("path", name), slog.String("error", err.Error()))
				combined = make(map[string]models.StagedNote)
			}
		}
	}

	files, err := req.FS.Files(req.StagedDir)
	if err != nil {
		return Result{}, failed("list staging: %v", err)
	}
	added := 0
	for _, f := range files {
		if !strings.HasSuffix(f, ".json") || path.Base(f) == profile.HomeArtifact {
			continue
		}
		data, err := req.FS.Read(f)
		if err != nil {
			l.logger.Warn("upload: read staged file failed", slog.String("file", f), slog.String("error", err.Error()))
			continue
		}
		var note models.StagedNote
		if err := json.Unmarshal(data, &note); err != nil || note.UID == "" {
			l.logger.Warn("upload: skipping malformed staged file", slog.String("file", f))
			continue
		}
		combined[note.UID] = note
		added++
	}

	data, err := json.Marshal(combined)
	if err != nil {
		return Result{}, failed("encode: %v", err)
	}
	if p.Local.Compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return Result{}, failed("zstd: %v", err)
		}
		data = enc.EncodeAll(data, nil)
		_ = enc.Close()
	}
	if err := target.Write(name, data); err != nil {
		return Result{}, failed("write %s: %v", name, err)
	}

	out := fmt.Sprintf("wrote %d notes (%d staged) to %s\n", len(combined), added, name)
	l.logger.Info("upload: local output written", slog.String("path", name), slog.Int("notes", len(combined)))
	return Result{Uploaded: added, Output: out}, nil
}

// target returns the store and path the combined document is written to:
// the configured output path, or the workspace default.
func (l *Local) target(p profile.Profile, req Request) (*storage.FS, string, error) {
	if p.Local.OutputPath == "" {
		return req.FS, path.Join(req.Dir, profile.LocalOutputFile), nil
	}
	abs, err := filepath.Abs(p.Local.OutputPath)
	if err != nil {
		return nil, "", err
	}
	fs, err := storage.NewFS(filepath.Dir(abs))
	if err != nil {
		return nil, "", err
	}
	return fs, filepath.Base(abs), nil
}

func decodeCombined(data []byte, compressed bool, v any) error {
	if compressed {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return err
		}
		defer dec.Close()
		if data, err = dec.DecodeAll(data, nil); err != nil {
			return err
		}
	}
	return json.Unmarshal(data, v)
}

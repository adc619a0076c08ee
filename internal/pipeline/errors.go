package pipeline

import (
	"context"
	"errors"
	"io/fs"

	"voxelsmith.ai/internal/assign"
	"voxelsmith.ai/internal/importer"
	"voxelsmith.ai/internal/palette"
	"voxelsmith.ai/internal/protocol"
)

var (
	ErrInvalidRequest = errors.New("pipeline: invalid request")
	ErrInvalidTuning  = errors.New("pipeline: invalid tuning")
	ErrExport         = errors.New("pipeline: export failed")
)

// Code maps a run error onto a wire error code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return protocol.ErrCancelled
	case errors.Is(err, ErrInvalidTuning), errors.Is(err, assign.ErrInvalidConfig):
		return protocol.ErrInvalidConfig
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, importer.ErrMalformed),
		errors.Is(err, importer.ErrUnsupportedFormat),
		errors.Is(err, fs.ErrNotExist):
		return protocol.ErrInvalidInput
	case errors.Is(err, assign.ErrEmptyCollection), errors.Is(err, palette.ErrUnknownBlock):
		return protocol.ErrEmptyPalette
	case errors.Is(err, ErrExport):
		return protocol.ErrExport
	default:
		return protocol.ErrInternal
	}
}

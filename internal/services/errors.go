package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInputNotFound         = errors.New("input not found")
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	ErrExtractionFailed      = errors.New("extraction failed")
	ErrStageFailure          = errors.New("stage failure")
	ErrBusy                  = errors.New("busy")
	ErrCacheIO               = errors.New("cache io error")
	ErrValidation            = errors.New("validation error")
	ErrConfiguration         = errors.New("configuration error")
)

// Kind is the stable classification attached to error events.
type Kind string

const (
	KindInputNotFound         Kind = "input_not_found"
	KindCapabilityUnavailable Kind = "capability_unavailable"
	KindExtractionFailed      Kind = "extraction_failed"
	KindStageFailure          Kind = "stage_failure"
	KindBusy                  Kind = "busy"
	KindCacheIO               Kind = "cache_io"
	KindValidation            Kind = "validation"
	KindConfiguration         Kind = "configuration"
	KindCancelled             Kind = "cancelled"
	KindInternal              Kind = "internal"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrStageFailure
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf maps an error to the kind reported to event consumers.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrInputNotFound):
		return KindInputNotFound
	case errors.Is(err, ErrCapabilityUnavailable):
		return KindCapabilityUnavailable
	case errors.Is(err, ErrExtractionFailed):
		return KindExtractionFailed
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrCacheIO):
		return KindCacheIO
	case errors.Is(err, ErrStageFailure):
		return KindStageFailure
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindInternal
	}
}

// IsFatal reports whether an error of this kind aborts a run. Cache failures
// degrade to a miss and never abort.
func (k Kind) IsFatal() bool {
	switch k {
	case "", KindCacheIO:
		return false
	default:
		return true
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

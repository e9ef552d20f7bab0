// Package domain provides the core types for multi-agent frame analysis.
// It defines analysis requests, per-agent results, token usage accounting and
// the consolidated analysis returned to callers. Types are plain data so they
// can cross process boundaries (Temporal payloads, persistence collaborators)
// as JSON without adapters.
package domain

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// FrameMode identifies how the image for an analysis is supplied.
type FrameMode string

const (
	// FrameInline means the encoded image bytes travel with the request.
	FrameInline FrameMode = "inline"

	// FrameHandle means the image was uploaded earlier and is referenced by handle.
	FrameHandle FrameMode = "handle"
)

// Frame references the single image an analysis runs against.
// Exactly one of Data or Handle must be set; the two modes are mutually exclusive.
type Frame struct {
	// Data holds the raw encoded image bytes (JPEG, PNG, WebP).
	Data []byte `json:"data,omitempty"`

	// MIMEType describes Data. Defaults to image/jpeg when empty.
	MIMEType string `json:"mime_type,omitempty" validate:"omitempty,oneof=image/jpeg image/png image/webp image/gif"`

	// Handle references previously uploaded media (provider file id or URI).
	Handle string `json:"handle,omitempty"`
}

// Mode reports which input mode the frame uses.
// Returns an error wrapping ErrInvalidFrame when neither or both are present.
func (f Frame) Mode() (FrameMode, error) {
	hasData := len(f.Data) > 0
	hasHandle := strings.TrimSpace(f.Handle) != ""
	switch {
	case hasData && hasHandle:
		return "", fmt.Errorf("both inline data and handle supplied: %w", ErrInvalidFrame)
	case hasData:
		return FrameInline, nil
	case hasHandle:
		return FrameHandle, nil
	default:
		return "", fmt.Errorf("neither inline data nor handle supplied: %w", ErrInvalidFrame)
	}
}

// ContentType returns the MIME type for inline data, defaulting to JPEG.
func (f Frame) ContentType() string {
	if f.MIMEType == "" {
		return "image/jpeg"
	}
	return f.MIMEType
}

// Base64 returns the inline data as standard base64.
func (f Frame) Base64() string { return base64.StdEncoding.EncodeToString(f.Data) }

// DataURI returns the inline data as a data: URI suitable for image_url fields.
func (f Frame) DataURI() string {
	return "data:" + f.ContentType() + ";base64," + f.Base64()
}

// AnalysisContext carries the caller-supplied facts that specialize prompts.
type AnalysisContext struct {
	// SubjectName identifies the athlete being analyzed.
	SubjectName string `json:"subject_name" validate:"required,max=200"`

	// Discriminator visually separates the subject from others in frame,
	// e.g. "blue gi" or "black rashguard".
	Discriminator string `json:"discriminator,omitempty" validate:"max=200"`

	// RuleSet names the competition rule set (ibjjf, adcc, submission_only).
	RuleSet string `json:"rule_set,omitempty" validate:"max=64"`

	// PriorResult is a hint about the outcome of the match, if known.
	PriorResult string `json:"prior_result,omitempty" validate:"max=500"`

	// FocusAreas is free text describing what the caller cares about most.
	FocusAreas string `json:"focus_areas,omitempty" validate:"max=2000"`
}

// AnalysisRequest is one unit of work for the orchestrator.
// It is immutable once dispatched; agents receive copies of Frame and Context.
type AnalysisRequest struct {
	// ID correlates logs, events and cost entries for one request.
	ID string `json:"id" validate:"required"`

	Frame   Frame           `json:"frame"`
	Context AnalysisContext `json:"context"`
}

// NewAnalysisRequest builds a request with a fresh id.
func NewAnalysisRequest(frame Frame, actx AnalysisContext) AnalysisRequest {
	return AnalysisRequest{
		ID:      uuid.New().String(),
		Frame:   frame,
		Context: actx,
	}
}

// Validate checks struct constraints and the frame exclusivity rule.
// Returns nil if valid, or an error wrapping ErrInvalidRequest.
func (r *AnalysisRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if _, err := r.Frame.Mode(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// Package resolution picks the camera output size that best matches a requested
// target for a given use case.
package resolution

import (
	"fmt"
	"strconv"
	"strings"
)

// Size is a frame size in pixels.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// AspectRatio returns width/height, or 0 for an invalid size.
func (s Size) AspectRatio() float64 {
	if !s.Valid() {
		return 0
	}
	return float64(s.Width) / float64(s.Height)
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ParseSize parses "WxH" (an upper-case X is accepted too).
func ParseSize(s string) (Size, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return Size{}, fmt.Errorf("invalid size %q: want WIDTHxHEIGHT", s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return Size{}, fmt.Errorf("invalid width in %q: %w", s, err)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return Size{}, fmt.Errorf("invalid height in %q: %w", s, err)
	}
	size := Size{Width: w, Height: h}
	if !size.Valid() {
		return Size{}, fmt.Errorf("invalid size %q: dimensions must be positive", s)
	}
	return size, nil
}

// UseCase is the purpose a camera stream is configured for.
type UseCase int

const (
	Preview UseCase = iota
	Capture
	Analysis
)

// UseCases lists every known use case in declaration order.
var UseCases = []UseCase{Preview, Capture, Analysis}

func (u UseCase) String() string {
	switch u {
	case Preview:
		return "preview"
	case Capture:
		return "capture"
	case Analysis:
		return "analysis"
	default:
		return "unknown(" + strconv.Itoa(int(u)) + ")"
	}
}

// ParseUseCase accepts "preview", "capture" or "analysis", case-insensitively.
func ParseUseCase(s string) (UseCase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "preview":
		return Preview, nil
	case "capture":
		return Capture, nil
	case "analysis":
		return Analysis, nil
	}
	return 0, fmt.Errorf("unknown use case %q (want preview, capture or analysis)", s)
}

// FormatKey identifies the pixel format family a catalog is queried for.
type FormatKey string

const (
	// FormatPrivate is the generic stream format used for on-screen preview.
	FormatPrivate FormatKey = "private"
	// FormatJPEG is the compressed still format.
	FormatJPEG FormatKey = "jpeg"
	// FormatYUV420 is planar YUV for frame analysis.
	FormatYUV420 FormatKey = "yuv420"
)

// FormatKey returns the format queried for u. ok is false for unknown use cases.
func (u UseCase) FormatKey() (key FormatKey, ok bool) {
	switch u {
	case Preview:
		return FormatPrivate, true
	case Capture:
		return FormatJPEG, true
	case Analysis:
		return FormatYUV420, true
	}
	return "", false
}

package usbcam

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"cameramodules/internal/resolution"
)

// ErrCameraNotFound is returned for ids that do not name a V4L2 node.
var ErrCameraNotFound = errors.New("camera not found")

var nodeName = regexp.MustCompile(`^video[0-9]+$`)

// FormatMap lists the FourCC codes that satisfy each format key.
type FormatMap map[resolution.FormatKey][]string

// DefaultFormatMap covers what UVC devices commonly expose.
func DefaultFormatMap() FormatMap {
	return FormatMap{
		resolution.FormatPrivate: {"YUYV"},
		resolution.FormatJPEG:    {"MJPG"},
		resolution.FormatYUV420:  {"YU12", "NV12"},
	}
}

// Merge returns a copy of m with keys from override replacing its own.
func (m FormatMap) Merge(override map[string][]string) FormatMap {
	out := make(FormatMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range override {
		codes := make([]string, 0, len(v))
		for _, c := range v {
			codes = append(codes, strings.ToUpper(strings.TrimSpace(c)))
		}
		out[resolution.FormatKey(strings.ToLower(k))] = codes
	}
	return out
}

// Source answers output size queries by enumerating a V4L2 node on every call.
type Source struct {
	devDir      string
	formats     FormatMap
	enumFormats func(devPath string) ([]VideoFormat, error)
}

// SourceOption customizes a Source.
type SourceOption func(*Source)

// WithDeviceDir overrides "/dev".
func WithDeviceDir(dir string) SourceOption {
	return func(s *Source) { s.devDir = dir }
}

// WithFormatMap overrides the FourCC mapping.
func WithFormatMap(m FormatMap) SourceOption {
	return func(s *Source) { s.formats = m }
}

// WithEnumerator replaces the ioctl enumeration.
func WithEnumerator(fn func(string) ([]VideoFormat, error)) SourceOption {
	return func(s *Source) { s.enumFormats = fn }
}

func NewSource(opts ...SourceOption) *Source {
	s := &Source{
		devDir:      "/dev",
		formats:     DefaultFormatMap(),
		enumFormats: enumFormats,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryOutputSizes implements resolution.OutputSizeSource. Sizes keep the driver's
// enumeration order; duplicates are passed through.
func (s *Source) QueryOutputSizes(cameraID string, format resolution.FormatKey) ([]resolution.Size, error) {
	devPath, err := s.DevicePath(cameraID)
	if err != nil {
		return nil, err
	}

	codes, ok := s.formats[format]
	if !ok || len(codes) == 0 {
		return nil, fmt.Errorf("no pixel format mapped to %q", format)
	}
	wanted := make(map[string]bool, len(codes))
	for _, c := range codes {
		wanted[c] = true
	}

	formats, err := s.enumFormats(devPath)
	if err != nil {
		return nil, err
	}

	sizes := []resolution.Size{}
	for _, f := range formats {
		if wanted[f.PixelFormat] {
			sizes = append(sizes, resolution.Size{Width: f.Width, Height: f.Height})
		}
	}
	return sizes, nil
}

// DevicePath maps "video0" to "/dev/video0". Anything that is not a plain
// videoN node name is rejected.
func (s *Source) DevicePath(cameraID string) (string, error) {
	if !nodeName.MatchString(cameraID) {
		return "", fmt.Errorf("%w: %q", ErrCameraNotFound, cameraID)
	}
	return filepath.Join(s.devDir, cameraID), nil
}

// PixelFormatFor returns the first FourCC mapped to format that the camera
// actually offers, or "" when none match.
func (s *Source) PixelFormatFor(cam *USBCamera, format resolution.FormatKey) string {
	offered := make(map[string]bool)
	for _, pf := range cam.PixelFormats() {
		offered[pf] = true
	}
	for _, code := range s.formats[format] {
		if offered[code] {
			return code
		}
	}
	return ""
}

// Package snapshot saves a single still frame from a V4L2 camera as a JPEG.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cameramodules/internal/logger"
	"cameramodules/internal/resolution"
)

const MimeType = "image/jpeg"

var (
	// ErrCaptureFailed wraps every failure to produce an image.
	ErrCaptureFailed = errors.New("capture failed")
	ErrImageNotFound = errors.New("image not found")
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type Options struct {
	FFmpegPath   string
	OutputDir    string
	RelativePath string // joined under OutputDir, e.g. "Pictures/CameraModules"
	Timeout      time.Duration
}

// Request describes one still capture.
type Request struct {
	CameraID    string
	DevicePath  string
	InputFormat string // ffmpeg -input_format, empty lets ffmpeg choose
	Size        resolution.Size
}

// Result describes a saved image.
type Result struct {
	CameraID    string          `json:"camera_id"`
	Path        string          `json:"path"`
	DisplayName string          `json:"display_name"`
	MimeType    string          `json:"mime_type"`
	Size        resolution.Size `json:"size"`
	Bytes       int64           `json:"bytes"`
	CapturedAt  time.Time       `json:"captured_at"`
}

type Capturer struct {
	opts Options
	run  Runner
	now  func() time.Time
}

// New returns a Capturer. A nil runner uses ExecRunner.
func New(opts Options, run Runner) *Capturer {
	if run == nil {
		run = ExecRunner
	}
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Capturer{opts: opts, run: run, now: time.Now}
}

// Dir is the directory images are written to.
func (c *Capturer) Dir() string {
	return filepath.Join(c.opts.OutputDir, c.opts.RelativePath)
}

// DisplayName names an image after its capture time in Unix milliseconds.
func DisplayName(t time.Time) string {
	return "IMG_" + strconv.FormatInt(t.UnixMilli(), 10)
}

// Capture grabs one frame at req.Size and writes it as <Dir>/<DisplayName>.jpg.
func (c *Capturer) Capture(ctx context.Context, req Request) (*Result, error) {
	if !req.Size.Valid() {
		return nil, fmt.Errorf("%w: %w: %s", ErrCaptureFailed, resolution.ErrInvalidTarget, req.Size)
	}
	if req.DevicePath == "" {
		return nil, fmt.Errorf("%w: no device path", ErrCaptureFailed)
	}

	dir := c.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrCaptureFailed, dir, err)
	}

	capturedAt := c.now()
	name := DisplayName(capturedAt)
	path, err := uniquePath(dir, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	args := BuildArgs(req, path)
	logger.Debug("[Snapshot] %s %s", c.opts.FFmpegPath, strings.Join(args, " "))

	output, err := c.run(ctx, c.opts.FFmpegPath, args...)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: ffmpeg: %w: %s", ErrCaptureFailed, err, lastLine(output))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg produced no file: %w", ErrCaptureFailed, err)
	}
	if info.Size() == 0 {
		os.Remove(path)
		return nil, fmt.Errorf("%w: ffmpeg produced an empty file", ErrCaptureFailed)
	}

	return &Result{
		CameraID:    req.CameraID,
		Path:        path,
		DisplayName: strings.TrimSuffix(filepath.Base(path), ".jpg"),
		MimeType:    MimeType,
		Size:        req.Size,
		Bytes:       info.Size(),
		CapturedAt:  capturedAt,
	}, nil
}

// Lookup returns the path of a saved image in Dir. Only bare "IMG_*.jpg"
// names are accepted, so the result never leaves Dir.
func (c *Capturer) Lookup(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		!strings.HasPrefix(name, "IMG_") || filepath.Ext(name) != ".jpg" {
		return "", fmt.Errorf("%w: %q", ErrImageNotFound, name)
	}
	path := filepath.Join(c.Dir(), name)
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %q", ErrImageNotFound, name)
	}
	return path, nil
}

// BuildArgs returns the ffmpeg arguments that grab one frame from req into path.
func BuildArgs(req Request, path string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
	}
	if req.InputFormat != "" {
		args = append(args, "-input_format", req.InputFormat)
	}
	args = append(args,
		"-video_size", req.Size.String(),
		"-i", req.DevicePath,
		"-frames:v", "1",
		"-q:v", "2",
		"-update", "1",
		"-y", path,
	)
	return args
}

// uniquePath appends _1, _2, ... when two captures land in the same millisecond.
func uniquePath(dir, name string) (string, error) {
	path := filepath.Join(dir, name+".jpg")
	for i := 1; i < 100; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.jpg", name, i))
	}
	return "", fmt.Errorf("no free file name for %s in %s", name, dir)
}

func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

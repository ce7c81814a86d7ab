// Package camera ties discovery, resolution selection and still capture
// together for the HTTP API and the CLI.
package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"cameramodules/internal/config"
	"cameramodules/internal/logger"
	"cameramodules/internal/preview"
	"cameramodules/internal/resolution"
	"cameramodules/internal/snapshot"
	"cameramodules/internal/stats"
	"cameramodules/internal/usbcam"
)

// ErrNotCapturable is returned when capturing from a camera that has no device node.
var ErrNotCapturable = errors.New("camera cannot capture")

// Event kinds passed to the event sink.
const (
	EventScan      = "scan"
	EventSelection = "selection"
	EventCapture   = "capture"
	EventPreview   = "preview"
)

// AccessChecker grants or refuses camera access before a capture.
type AccessChecker interface {
	AccessCamera(ctx context.Context) error
}

// Info summarizes a camera for listings.
type Info struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Source       string   `json:"source"` // "v4l2" or "static"
	DevicePath   string   `json:"device_path,omitempty"`
	PixelFormats []string `json:"pixel_formats,omitempty"`
}

type Service struct {
	mu       sync.RWMutex
	cfg      *config.Manager
	scanner  *usbcam.Scanner
	static   resolution.StaticSource
	v4l2     *usbcam.Source
	selector *resolution.Selector
	capturer *snapshot.Capturer
	previews *preview.Manager

	sourceOpts []usbcam.SourceOption
	runner     snapshot.Runner
	starter    preview.Starter
	access     AccessChecker
	history    *stats.SelectionLog
	emit       func(kind string, payload interface{})
}

type Option func(*Service)

// WithAccessChecker enables a permission check before every capture.
func WithAccessChecker(a AccessChecker) Option {
	return func(s *Service) { s.access = a }
}

// WithEventSink receives scan, selection and capture events.
func WithEventSink(fn func(kind string, payload interface{})) Option {
	return func(s *Service) { s.emit = fn }
}

// WithSourceOptions passes extra options to the V4L2 output size source.
func WithSourceOptions(opts ...usbcam.SourceOption) Option {
	return func(s *Service) { s.sourceOpts = append(s.sourceOpts, opts...) }
}

// WithRunner replaces the ffmpeg runner used for captures.
func WithRunner(r snapshot.Runner) Option {
	return func(s *Service) { s.runner = r }
}

// WithPreviewStarter replaces the ffmpeg launcher used for live previews.
func WithPreviewStarter(st preview.Starter) Option {
	return func(s *Service) { s.starter = st }
}

// WithHistory records selections into l.
func WithHistory(l *stats.SelectionLog) Option {
	return func(s *Service) { s.history = l }
}

func NewService(cfg *config.Manager, scanner *usbcam.Scanner, opts ...Option) *Service {
	s := &Service{
		cfg:     cfg,
		scanner: scanner,
		emit:    func(string, interface{}) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.history == nil {
		s.history = stats.NewSelectionLog(stats.DefaultHistorySize)
	}
	s.previews = preview.NewManager(s.starter)
	s.Reload()
	return s
}

// Reload rebuilds sources and the capturer from the current config.
func (s *Service) Reload() {
	cfg := s.cfg.Get()

	srcOpts := append([]usbcam.SourceOption{
		usbcam.WithFormatMap(usbcam.DefaultFormatMap().Merge(cfg.Formats)),
	}, s.sourceOpts...)
	v4l2 := usbcam.NewSource(srcOpts...)
	static := cfg.StaticSource()

	capturer := snapshot.New(snapshot.Options{
		FFmpegPath:   cfg.Capture.FFmpegPath,
		OutputDir:    cfg.Capture.OutputDir,
		RelativePath: cfg.Capture.RelativePath,
		Timeout:      time.Duration(cfg.Capture.TimeoutSeconds) * time.Second,
	}, s.runner)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.static = static
	s.v4l2 = v4l2
	s.selector = resolution.NewSelector(resolution.NewCatalog(resolution.ChainSource{static, v4l2}))
	s.capturer = capturer
}

// History returns the selection log.
func (s *Service) History() *stats.SelectionLog {
	return s.history
}

// Scan rediscovers V4L2 cameras and returns the full camera list.
func (s *Service) Scan() ([]Info, error) {
	if _, err := s.scanner.Scan(); err != nil {
		return nil, err
	}
	cams := s.Cameras()
	s.emit(EventScan, cams)
	return cams, nil
}

// Cameras lists static cameras followed by the V4L2 cameras from the last scan.
func (s *Service) Cameras() []Info {
	s.mu.RLock()
	static := s.static
	s.mu.RUnlock()

	cfg := s.cfg.Get()
	ids := static.Cameras()
	sort.Strings(ids)

	out := make([]Info, 0, len(ids))
	for _, id := range ids {
		name := cfg.StaticCameras[id].Name
		if name == "" {
			name = id
		}
		out = append(out, Info{ID: id, Name: name, Source: "static"})
	}
	for _, cam := range s.scanner.GetCameras() {
		if _, shadowed := static[cam.ID]; shadowed {
			continue
		}
		out = append(out, Info{
			ID:           cam.ID,
			Name:         cam.Name,
			Source:       "v4l2",
			DevicePath:   cam.DevicePath,
			PixelFormats: cam.PixelFormats(),
		})
	}
	return out
}

// Sizes returns the catalog for a camera and use case.
func (s *Service) Sizes(cameraID string, useCase resolution.UseCase) []resolution.Size {
	s.mu.RLock()
	sel := s.selector
	s.mu.RUnlock()
	return sel.Catalog().SupportedResolutions(cameraID, useCase)
}

// Target returns the configured default target for a use case.
func (s *Service) Target(useCase resolution.UseCase) (resolution.Size, error) {
	cfg := s.cfg.Get()
	return cfg.Target(useCase)
}

// Select picks a size for the camera. A nil target uses the configured default.
func (s *Service) Select(cameraID string, useCase resolution.UseCase, target *resolution.Size) (resolution.Selection, error) {
	want, err := s.resolveTarget(useCase, target)
	if err != nil {
		return resolution.Selection{}, err
	}

	s.mu.RLock()
	selector := s.selector
	s.mu.RUnlock()

	sel, err := selector.Select(cameraID, useCase, want)
	if err != nil {
		return resolution.Selection{}, err
	}

	if sel.Fallback {
		logger.Info("[Select] %s/%s: no supported sizes, using requested %s", cameraID, useCase, sel.Chosen)
	} else {
		logger.Info("[Select] %s/%s: %s for target %s (distance %d of %d candidates)",
			cameraID, useCase, sel.Chosen, sel.Target, sel.Distance, len(sel.Catalog))
	}
	rec := s.history.Record(sel)
	s.emit(EventSelection, rec)
	return sel, nil
}

func (s *Service) resolveTarget(useCase resolution.UseCase, target *resolution.Size) (resolution.Size, error) {
	if target != nil {
		return *target, nil
	}
	return s.Target(useCase)
}

// device resolves a V4L2 camera id to its node and asks for access.
func (s *Service) device(ctx context.Context, cameraID string) (*usbcam.Source, string, error) {
	s.mu.RLock()
	v4l2 := s.v4l2
	_, isStatic := s.static[cameraID]
	s.mu.RUnlock()

	if isStatic {
		return nil, "", fmt.Errorf("%w: %s is declared in config and has no device", ErrNotCapturable, cameraID)
	}
	devPath, err := v4l2.DevicePath(cameraID)
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(devPath); err != nil {
		return nil, "", fmt.Errorf("%w: %s", usbcam.ErrCameraNotFound, devPath)
	}

	if s.access != nil {
		if err := s.access.AccessCamera(ctx); err != nil {
			return nil, "", fmt.Errorf("camera access: %w", err)
		}
	}
	return v4l2, devPath, nil
}

// inputFormat picks the ffmpeg -input_format for the camera's format key, or "".
func (s *Service) inputFormat(v4l2 *usbcam.Source, cameraID string, key resolution.FormatKey) string {
	cam := s.scanner.GetCamera(cameraID)
	if cam == nil {
		if _, err := s.scanner.Scan(); err == nil {
			cam = s.scanner.GetCamera(cameraID)
		}
	}
	if cam == nil {
		return ""
	}
	if pf := v4l2.PixelFormatFor(cam, key); pf != "" {
		return usbcam.FFmpegInputFormat(pf)
	}
	return ""
}

// Capture selects a capture size for a V4L2 camera and saves one JPEG frame.
func (s *Service) Capture(ctx context.Context, cameraID string, target *resolution.Size) (*snapshot.Result, error) {
	v4l2, devPath, err := s.device(ctx, cameraID)
	if err != nil {
		return nil, err
	}

	sel, err := s.Select(cameraID, resolution.Capture, target)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	capturer := s.capturer
	s.mu.RUnlock()

	res, err := capturer.Capture(ctx, snapshot.Request{
		CameraID:    cameraID,
		DevicePath:  devPath,
		InputFormat: s.inputFormat(v4l2, cameraID, resolution.FormatJPEG),
		Size:        sel.Chosen,
	})
	if err != nil {
		logger.Error("[Snapshot] %s: %v", cameraID, err)
		return nil, err
	}

	logger.Info("[Snapshot] Saved %s (%s, %d bytes)", res.Path, res.Size, res.Bytes)
	s.emit(EventCapture, res)
	return res, nil
}

// CapturePath returns the path of a saved image by file name.
func (s *Service) CapturePath(name string) (string, error) {
	s.mu.RLock()
	capturer := s.capturer
	s.mu.RUnlock()
	return capturer.Lookup(name)
}

// PreviewStream is a live MJPEG subscription.
type PreviewStream struct {
	Selection resolution.Selection
	Frames    <-chan []byte
	Stop      func()
}

// Preview selects a preview size for a V4L2 camera and joins its live stream.
func (s *Service) Preview(ctx context.Context, cameraID string, target *resolution.Size) (*PreviewStream, error) {
	v4l2, devPath, err := s.device(ctx, cameraID)
	if err != nil {
		return nil, err
	}

	sel, err := s.Select(cameraID, resolution.Preview, target)
	if err != nil {
		return nil, err
	}

	cfg := s.cfg.Get()
	frames, stop, err := s.previews.Subscribe(preview.Request{
		CameraID:    cameraID,
		DevicePath:  devPath,
		InputFormat: s.inputFormat(v4l2, cameraID, resolution.FormatPrivate),
		Size:        sel.Chosen,
		FPS:         cfg.Preview.FPS,
		FFmpegPath:  cfg.Capture.FFmpegPath,
	})
	if err != nil {
		logger.Error("[Preview] %s: %v", cameraID, err)
		return nil, err
	}

	s.emit(EventPreview, sel)
	return &PreviewStream{Selection: sel, Frames: frames, Stop: stop}, nil
}

// StopPreviews ends every live stream.
func (s *Service) StopPreviews() {
	s.previews.StopAll()
}

package usbcam

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"cameramodules/internal/logger"
)

// VideoFormat is one discrete (pixel format, frame size) a camera supports.
type VideoFormat struct {
	PixelFormat string `json:"pixel_format"` // MJPG, YUYV, NV12, ...
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FPS         []int  `json:"fps"`
}

// DeviceInfo is what VIDIOC_QUERYCAP reports about a node.
type DeviceInfo struct {
	Driver    string
	Card      string
	BusInfo   string
	IsCapture bool
}

// USBCamera is a detected V4L2 capture node.
type USBCamera struct {
	ID         string        `json:"id"`          // e.g. "video0"
	DevicePath string        `json:"device_path"` // e.g. "/dev/video0"
	Name       string        `json:"name"`
	Driver     string        `json:"driver"`
	BusInfo    string        `json:"bus_info"`
	Formats    []VideoFormat `json:"formats"` // driver enumeration order
}

// PixelFormats returns the distinct pixel formats in enumeration order.
func (c *USBCamera) PixelFormats() []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range c.Formats {
		if !seen[f.PixelFormat] {
			seen[f.PixelFormat] = true
			out = append(out, f.PixelFormat)
		}
	}
	return out
}

// Scanner discovers cameras under a device directory.
type Scanner struct {
	mu      sync.RWMutex
	cameras map[string]*USBCamera

	devGlob     string
	queryDevice func(devPath string) (DeviceInfo, error)
	enumFormats func(devPath string) ([]VideoFormat, error)
	deviceNames func() map[string]string
}

// ScannerOption customizes a Scanner.
type ScannerOption func(*Scanner)

// WithDeviceGlob overrides the "/dev/video*" pattern.
func WithDeviceGlob(pattern string) ScannerOption {
	return func(s *Scanner) { s.devGlob = pattern }
}

// WithProbe replaces the ioctl-based probing, mainly for tests.
func WithProbe(query func(string) (DeviceInfo, error), enum func(string) ([]VideoFormat, error)) ScannerOption {
	return func(s *Scanner) {
		s.queryDevice = query
		s.enumFormats = enum
	}
}

// WithDeviceNames replaces the v4l2-ctl name lookup.
func WithDeviceNames(fn func() map[string]string) ScannerOption {
	return func(s *Scanner) { s.deviceNames = fn }
}

func NewScanner(opts ...ScannerOption) *Scanner {
	s := &Scanner{
		cameras:     make(map[string]*USBCamera),
		devGlob:     "/dev/video*",
		queryDevice: queryDevice,
		enumFormats: enumFormats,
		deviceNames: v4l2CtlDeviceNames,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan replaces the known camera set with the capture nodes found now.
func (s *Scanner) Scan() ([]*USBCamera, error) {
	devices, err := filepath.Glob(s.devGlob)
	if err != nil {
		return nil, fmt.Errorf("failed to glob video devices: %w", err)
	}

	names := s.deviceNames()
	found := make(map[string]*USBCamera)

	for _, devPath := range devices {
		cam, err := s.probeDevice(devPath, names)
		if err != nil {
			logger.Warn("[USBCam] Failed to probe %s: %v", devPath, err)
			continue
		}
		if cam == nil {
			continue
		}
		found[cam.ID] = cam
		logger.Info("[USBCam] Found camera: %s (%s) - %d formats", cam.Name, cam.ID, len(cam.Formats))
	}

	s.mu.Lock()
	s.cameras = found
	s.mu.Unlock()

	return s.GetCameras(), nil
}

// GetCameras returns the cameras from the last scan, sorted by device path.
func (s *Scanner) GetCameras() []*USBCamera {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cameras := make([]*USBCamera, 0, len(s.cameras))
	for _, cam := range s.cameras {
		cameras = append(cameras, cam)
	}
	sort.Slice(cameras, func(i, j int) bool {
		return cameras[i].DevicePath < cameras[j].DevicePath
	})
	return cameras
}

// GetCamera returns a camera by ID, or nil.
func (s *Scanner) GetCamera(id string) *USBCamera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cameras[id]
}

// probeDevice returns nil, nil for nodes that are not capture devices.
func (s *Scanner) probeDevice(devPath string, names map[string]string) (*USBCamera, error) {
	info, err := s.queryDevice(devPath)
	if err != nil {
		return nil, err
	}
	if !info.IsCapture {
		logger.Debug("[USBCam] %s is not a capture node (driver %s)", devPath, info.Driver)
		return nil, nil
	}

	cam := &USBCamera{
		ID:         filepath.Base(devPath),
		DevicePath: devPath,
		Name:       names[devPath],
		Driver:     info.Driver,
		BusInfo:    info.BusInfo,
		Formats:    []VideoFormat{},
	}

	formats, err := s.enumFormats(devPath)
	if err != nil {
		logger.Warn("[USBCam] Failed to enumerate formats for %s: %v", devPath, err)
	} else {
		cam.Formats = formats
	}

	if cam.Name == "" {
		cam.Name = info.Card
	}
	if cam.Name == "" {
		cam.Name = nameFromSysfs(devPath)
	}
	if cam.Name == "" {
		cam.Name = fmt.Sprintf("Video Device %s", cam.ID)
	}

	return cam, nil
}

// v4l2CtlDeviceNames maps device paths to friendly names using v4l2-ctl, when installed.
func v4l2CtlDeviceNames() map[string]string {
	output, err := exec.Command("v4l2-ctl", "--list-devices").Output()
	if err != nil {
		return map[string]string{}
	}
	return parseDeviceList(string(output))
}

// parseDeviceList parses `v4l2-ctl --list-devices` output:
//
//	Logitech Webcam C930e (usb-0000:00:14.0-4):
//		/dev/video0
//		/dev/video1
func parseDeviceList(output string) map[string]string {
	names := make(map[string]string)
	var current string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/dev/") {
			names[line] = current
			continue
		}
		if idx := strings.Index(line, " ("); idx > 0 {
			current = line[:idx]
		} else if idx := strings.Index(line, ":"); idx > 0 {
			current = line[:idx]
		} else {
			current = line
		}
	}
	return names
}

func nameFromSysfs(devPath string) string {
	data, err := os.ReadFile(filepath.Join("/sys/class/video4linux", filepath.Base(devPath), "name"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"cameramodules/internal/resolution"
)

type Config struct {
	Web           WebConfig               `yaml:"web" json:"web"`
	Logging       LoggingConfig           `yaml:"logging" json:"logging"`
	Targets       TargetsConfig           `yaml:"targets" json:"targets"`
	Formats       map[string][]string     `yaml:"formats,omitempty" json:"formats,omitempty"` // format key -> FourCCs
	Capture       CaptureConfig           `yaml:"capture" json:"capture"`
	Preview       PreviewConfig           `yaml:"preview" json:"preview"`
	Permissions   PermissionsConfig       `yaml:"permissions" json:"permissions"`
	StaticCameras map[string]StaticCamera `yaml:"static_cameras,omitempty" json:"static_cameras,omitempty"`
}

type WebConfig struct {
	Port int `yaml:"port" json:"port"`
}

type LoggingConfig struct {
	FilePath   string `yaml:"file_path" json:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	Level      string `yaml:"level" json:"level"`
}

// TargetsConfig holds the size requested for each use case when the caller gives none.
type TargetsConfig struct {
	Preview  string `yaml:"preview" json:"preview"`
	Capture  string `yaml:"capture" json:"capture"`
	Analysis string `yaml:"analysis" json:"analysis"`
}

type CaptureConfig struct {
	FFmpegPath     string `yaml:"ffmpeg_path" json:"ffmpeg_path"`
	OutputDir      string `yaml:"output_dir" json:"output_dir"`
	RelativePath   string `yaml:"relative_path" json:"relative_path"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// PreviewConfig controls the live MJPEG stream; ffmpeg comes from the capture section.
type PreviewConfig struct {
	FPS int `yaml:"fps" json:"fps"`
}

type PermissionsConfig struct {
	// Portal asks xdg-desktop-portal for camera access before capturing.
	Portal bool `yaml:"portal" json:"portal"`
}

// StaticCamera declares a camera's catalog by hand, keyed by use case name
// (preview, capture, analysis). Sizes are "WxH" strings in enumeration order.
type StaticCamera struct {
	Name  string              `yaml:"name" json:"name"`
	Sizes map[string][]string `yaml:"sizes" json:"sizes"`
}

type Manager struct {
	mu       sync.RWMutex
	config   *Config
	filePath string
}

func NewManager(filePath string) *Manager {
	return &Manager{
		filePath: filePath,
	}
}

// Load reads the config file, writing a default one when it does not exist.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.config = DefaultConfig()
			return m.saveUnsafe()
		}
		return err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", m.filePath, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.config = cfg
	return nil
}

func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUnsafe()
}

func (m *Manager) saveUnsafe() error {
	if m.config == nil {
		m.config = DefaultConfig()
	}
	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(m.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(m.filePath, data, 0600)
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return *DefaultConfig()
	}
	return m.config.clone()
}

// clone copies c including its maps, so callers can edit the result freely.
func (c *Config) clone() Config {
	out := *c
	if c.Formats != nil {
		out.Formats = make(map[string][]string, len(c.Formats))
		for k, v := range c.Formats {
			out.Formats[k] = append([]string(nil), v...)
		}
	}
	if c.StaticCameras != nil {
		out.StaticCameras = make(map[string]StaticCamera, len(c.StaticCameras))
		for id, cam := range c.StaticCameras {
			sizes := make(map[string][]string, len(cam.Sizes))
			for k, v := range cam.Sizes {
				sizes[k] = append([]string(nil), v...)
			}
			out.StaticCameras[id] = StaticCamera{Name: cam.Name, Sizes: sizes}
		}
	}
	return out
}

// Update validates cfg, then stores and persists it.
func (m *Manager) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = &cfg
	return m.saveUnsafe()
}

// SetTarget changes the default target for one use case.
func (m *Manager) SetTarget(useCase resolution.UseCase, size resolution.Size) error {
	if !size.Valid() {
		return fmt.Errorf("%w: %s", resolution.ErrInvalidTarget, size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		m.config = DefaultConfig()
	}
	switch useCase {
	case resolution.Preview:
		m.config.Targets.Preview = size.String()
	case resolution.Capture:
		m.config.Targets.Capture = size.String()
	case resolution.Analysis:
		m.config.Targets.Analysis = size.String()
	default:
		return fmt.Errorf("unknown use case %s", useCase)
	}
	return m.saveUnsafe()
}

// Target returns the configured default target for a use case.
func (c *Config) Target(useCase resolution.UseCase) (resolution.Size, error) {
	var raw string
	switch useCase {
	case resolution.Preview:
		raw = c.Targets.Preview
	case resolution.Capture:
		raw = c.Targets.Capture
	case resolution.Analysis:
		raw = c.Targets.Analysis
	default:
		return resolution.Size{}, fmt.Errorf("unknown use case %s", useCase)
	}
	return resolution.ParseSize(raw)
}

// StaticSource converts StaticCameras into a catalog source. Validate must
// have passed; unparsable entries are dropped.
func (c *Config) StaticSource() resolution.StaticSource {
	src := make(resolution.StaticSource, len(c.StaticCameras))
	for id, cam := range c.StaticCameras {
		formats := make(map[resolution.FormatKey][]resolution.Size)
		for _, ucName := range sortedKeys(cam.Sizes) {
			raw := cam.Sizes[ucName]
			uc, err := resolution.ParseUseCase(ucName)
			if err != nil {
				continue
			}
			key, _ := uc.FormatKey()
			for _, s := range raw {
				if size, err := resolution.ParseSize(s); err == nil {
					formats[key] = append(formats[key], size)
				}
			}
		}
		src[id] = formats
	}
	return src
}

// Validate checks if the configuration is valid and returns every problem found.
func (c *Config) Validate() error {
	var errors []string

	if c.Web.Port < 1 || c.Web.Port > 65535 {
		errors = append(errors, fmt.Sprintf("web port %d is invalid (must be 1-65535)", c.Web.Port))
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, "logging max_size_mb must not be negative")
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, "logging max_backups must not be negative")
	}

	for _, uc := range resolution.UseCases {
		if _, err := c.Target(uc); err != nil {
			errors = append(errors, fmt.Sprintf("%s target: %v", uc, err))
		}
	}

	formatKeys := make([]string, 0, len(c.Formats))
	for k := range c.Formats {
		formatKeys = append(formatKeys, k)
	}
	sort.Strings(formatKeys)
	for _, k := range formatKeys {
		switch resolution.FormatKey(strings.ToLower(k)) {
		case resolution.FormatPrivate, resolution.FormatJPEG, resolution.FormatYUV420:
		default:
			errors = append(errors, fmt.Sprintf("unknown format key %q (want private, jpeg or yuv420)", k))
			continue
		}
		if len(c.Formats[k]) == 0 {
			errors = append(errors, fmt.Sprintf("format key %q has no pixel formats", k))
		}
		for _, code := range c.Formats[k] {
			if len(strings.TrimSpace(code)) != 4 {
				errors = append(errors, fmt.Sprintf("pixel format %q for %q is not a FourCC", code, k))
			}
		}
	}

	if c.Capture.FFmpegPath == "" {
		errors = append(errors, "capture ffmpeg_path is required")
	}
	if c.Capture.OutputDir == "" {
		errors = append(errors, "capture output_dir is required")
	}
	if filepath.IsAbs(c.Capture.RelativePath) || strings.Contains(c.Capture.RelativePath, "..") {
		errors = append(errors, fmt.Sprintf("capture relative_path %q must stay inside output_dir", c.Capture.RelativePath))
	}
	if c.Capture.TimeoutSeconds < 1 {
		errors = append(errors, fmt.Sprintf("capture timeout %ds is invalid (must be at least 1)", c.Capture.TimeoutSeconds))
	}

	if c.Preview.FPS < 1 || c.Preview.FPS > 120 {
		errors = append(errors, fmt.Sprintf("preview fps %d is invalid (must be 1-120)", c.Preview.FPS))
	}

	camIDs := make([]string, 0, len(c.StaticCameras))
	for id := range c.StaticCameras {
		camIDs = append(camIDs, id)
	}
	sort.Strings(camIDs)
	for _, id := range camIDs {
		if strings.TrimSpace(id) == "" {
			errors = append(errors, "static camera with empty id")
			continue
		}
		seen := make(map[resolution.UseCase]string)
		sizesByUseCase := c.StaticCameras[id].Sizes
		for _, ucName := range sortedKeys(sizesByUseCase) {
			sizes := sizesByUseCase[ucName]
			uc, err := resolution.ParseUseCase(ucName)
			if err != nil {
				errors = append(errors, fmt.Sprintf("static camera %s: %v", id, err))
				continue
			}
			if prev, dup := seen[uc]; dup {
				errors = append(errors, fmt.Sprintf("static camera %s: %q and %q both name the %s use case", id, prev, ucName, uc))
				continue
			}
			seen[uc] = ucName
			for _, s := range sizes {
				if _, err := resolution.ParseSize(s); err != nil {
					errors = append(errors, fmt.Sprintf("static camera %s %s: %v", id, ucName, err))
				}
			}
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Web: WebConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			FilePath:   "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Level:      "info",
		},
		Targets: TargetsConfig{
			Preview:  "1280x720",
			Capture:  "500x400",
			Analysis: "640x480",
		},
		Capture: CaptureConfig{
			FFmpegPath:     "ffmpeg",
			OutputDir:      defaultOutputDir(),
			RelativePath:   "Pictures/CameraModules",
			TimeoutSeconds: 10,
		},
		Preview: PreviewConfig{
			FPS: 15,
		},
	}
}

func defaultOutputDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.TempDir()
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"cameramodules/internal/camera"
	"cameramodules/internal/config"
	"cameramodules/internal/resolution"
	"cameramodules/internal/usbcam"
)

func newTestServer(t *testing.T, opts ...camera.Option) (*httptest.Server, *config.Manager) {
	t.Helper()
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "config.yaml")
	cfgDoc := "static_cameras:\n  rear:\n    name: Rear\n    sizes:\n      capture: [4000x3000, 1920x1080]\n      preview: [1280x720, 640x480]\n"
	if err := os.WriteFile(cfgPath, []byte(cfgDoc), 0600); err != nil {
		t.Fatal(err)
	}
	cfg := config.NewManager(cfgPath)
	if err := cfg.Load(); err != nil {
		t.Fatalf("config Load: %v", err)
	}
	c := cfg.Get()
	c.Capture.OutputDir = filepath.Join(dir, "out")
	if err := cfg.Update(c); err != nil {
		t.Fatalf("config Update: %v", err)
	}

	devDir := filepath.Join(dir, "dev")
	if err := os.MkdirAll(devDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(devDir, "video0"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	enum := func(devPath string) ([]usbcam.VideoFormat, error) {
		if filepath.Base(devPath) != "video0" {
			return nil, errors.New("no such device")
		}
		return []usbcam.VideoFormat{
			{PixelFormat: "MJPG", Width: 1280, Height: 720},
			{PixelFormat: "MJPG", Width: 640, Height: 480},
			{PixelFormat: "YUYV", Width: 640, Height: 480},
		}, nil
	}
	scanner := usbcam.NewScanner(
		usbcam.WithDeviceGlob(filepath.Join(devDir, "video*")),
		usbcam.WithProbe(func(string) (usbcam.DeviceInfo, error) {
			return usbcam.DeviceInfo{Card: "Test Cam", IsCapture: true}, nil
		}, enum),
		usbcam.WithDeviceNames(func() map[string]string { return nil }),
	)
	all := append([]camera.Option{
		camera.WithSourceOptions(usbcam.WithDeviceDir(devDir), usbcam.WithEnumerator(enum)),
	}, opts...)
	svc := camera.NewService(cfg, scanner, all...)
	t.Cleanup(svc.StopPreviews)

	h := NewHandler(cfg, svc, nil)
	h.SetVersion("test")
	mux := http.NewServeMux()
	h.Routes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, cfg
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp, out
}

func chosen(t *testing.T, body map[string]interface{}) resolution.Size {
	t.Helper()
	c, ok := body["chosen"].(map[string]interface{})
	if !ok {
		t.Fatalf("response has no chosen size: %v", body)
	}
	return resolution.Size{Width: int(c["width"].(float64)), Height: int(c["height"].(float64))}
}

func TestResolutionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name  string
		query string
		code  int
		want  resolution.Size
	}{
		{"explicit target", "/api/cameras/rear/resolution?use_case=capture&width=2000&height=1200", http.StatusOK, resolution.Size{Width: 1920, Height: 1080}},
		{"configured target", "/api/cameras/rear/resolution?use_case=capture", http.StatusOK, resolution.Size{Width: 1920, Height: 1080}},
		{"preview default", "/api/cameras/rear/resolution?width=700&height=500", http.StatusOK, resolution.Size{Width: 640, Height: 480}},
		{"unknown camera falls back", "/api/cameras/front/resolution?use_case=capture&width=320&height=240", http.StatusOK, resolution.Size{Width: 320, Height: 240}},
		{"width only", "/api/cameras/rear/resolution?width=640", http.StatusBadRequest, resolution.Size{}},
		{"zero width", "/api/cameras/rear/resolution?width=0&height=480", http.StatusBadRequest, resolution.Size{}},
		{"not a number", "/api/cameras/rear/resolution?width=abc&height=480", http.StatusBadRequest, resolution.Size{}},
		{"bad use case", "/api/cameras/rear/resolution?use_case=video", http.StatusBadRequest, resolution.Size{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodGet, srv.URL+tt.query, "")
			if resp.StatusCode != tt.code {
				t.Fatalf("status = %d, want %d (%v)", resp.StatusCode, tt.code, body)
			}
			if tt.code != http.StatusOK {
				if _, ok := body["error"]; !ok {
					t.Errorf("error response without error field: %v", body)
				}
				return
			}
			if got := chosen(t, body); got != tt.want {
				t.Errorf("chosen = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCameraListAndSizes(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/cameras", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	cams, _ := body["cameras"].([]interface{})
	if len(cams) != 1 || cams[0].(map[string]interface{})["id"] != "rear" {
		t.Errorf("cameras = %v, want only rear", body["cameras"])
	}

	_, body = do(t, http.MethodGet, srv.URL+"/api/cameras/rear/sizes?use_case=capture", "")
	sizes, _ := body["sizes"].([]interface{})
	if len(sizes) != 2 || body["format"] != "jpeg" {
		t.Errorf("sizes response = %v", body)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/api/cameras/rear/sizes?use_case=analysis", "")
	if sizes, ok := body["sizes"].([]interface{}); !ok || len(sizes) != 0 {
		t.Errorf("analysis sizes = %v, want empty list", body["sizes"])
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/cameras", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/cameras status = %d, want 405", resp.StatusCode)
	}
}

func TestCaptureErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/cameras/rear/capture", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("capture on static camera status = %d, want 409", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/cameras/video9/capture", `{"width":640,"height":480}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("capture on missing device status = %d, want 404", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/cameras/video9/capture", `{"width":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("capture with bad JSON status = %d, want 400", resp.StatusCode)
	}
}

func TestSelectionsAndStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	do(t, http.MethodGet, srv.URL+"/api/cameras/rear/resolution?use_case=capture", "")
	do(t, http.MethodGet, srv.URL+"/api/cameras/front/resolution?use_case=capture", "")

	_, body := do(t, http.MethodGet, srv.URL+"/api/selections?limit=1", "")
	if body["total"] != float64(2) || body["fallbacks"] != float64(1) {
		t.Errorf("selection counts = %v", body)
	}
	if sels, _ := body["selections"].([]interface{}); len(sels) != 1 {
		t.Errorf("limit=1 returned %d selections", len(sels))
	}

	_, body = do(t, http.MethodGet, srv.URL+"/api/status", "")
	if body["version"] != "test" || body["cameras"] != float64(1) || body["selections"] != float64(2) {
		t.Errorf("status = %v", body)
	}

	do(t, http.MethodDelete, srv.URL+"/api/selections", "")
	_, body = do(t, http.MethodGet, srv.URL+"/api/selections", "")
	if sels, _ := body["selections"].([]interface{}); len(sels) != 0 {
		t.Errorf("selections after clear = %v", sels)
	}
}

func TestConfigUpdateChangesDefaultTarget(t *testing.T) {
	srv, cfg := newTestServer(t)

	resp, _ := do(t, http.MethodPut, srv.URL+"/api/config", `{"web":{"port":0}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid config status = %d, want 400", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/config", `{"targets":{"capture":"4000x2900"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("config update status = %d", resp.StatusCode)
	}
	if got := cfg.Get().Targets.Capture; got != "4000x2900" {
		t.Errorf("saved capture target = %q", got)
	}
	if got := cfg.Get().Targets.Preview; got != config.DefaultConfig().Targets.Preview {
		t.Errorf("partial update changed preview target to %q", got)
	}

	_, body := do(t, http.MethodGet, srv.URL+"/api/cameras/rear/resolution?use_case=capture", "")
	if got := chosen(t, body); got != (resolution.Size{Width: 4000, Height: 3000}) {
		t.Errorf("chosen after update = %v, want 4000x3000", got)
	}
}

func TestDebugMode(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/debug", `{"debug":true}`)
	if resp.StatusCode != http.StatusOK || body["debug"] != true {
		t.Errorf("POST /api/debug = %d %v", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/debug", `nope`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", resp.StatusCode)
	}
}

type pipeStarter struct {
	mu   sync.Mutex
	args []string
	w    *io.PipeWriter
}

func (p *pipeStarter) start(ctx context.Context, name string, args ...string) (io.ReadCloser, error) {
	r, w := io.Pipe()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.args, p.w = args, w
	return r, nil
}

func TestCameraPreviewStreamsMJPEG(t *testing.T) {
	ps := &pipeStarter{}
	srv, _ := newTestServer(t, camera.WithPreviewStarter(ps.start))

	resp, err := http.Get(srv.URL + "/api/cameras/video0/preview?width=700&height=500")
	if err != nil {
		t.Fatalf("GET preview: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=ffmpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if size := resp.Header.Get("X-Preview-Size"); size != "640x480" {
		t.Errorf("X-Preview-Size = %q, want 640x480", size)
	}

	ps.mu.Lock()
	args, w := ps.args, ps.w
	ps.mu.Unlock()
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-input_format yuyv422") || !strings.Contains(joined, "-video_size 640x480") {
		t.Errorf("ffmpeg args = %v", args)
	}

	go w.Write([]byte("--ffmpeg\r\nContent-type: image/jpeg\r\n\r\n"))
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil || line != "--ffmpeg\r\n" {
		t.Errorf("first line = %q, %v", line, err)
	}
}

func TestCameraPreviewErrors(t *testing.T) {
	srv, _ := newTestServer(t, camera.WithPreviewStarter((&pipeStarter{}).start))

	tests := []struct {
		path string
		code int
	}{
		{"/api/cameras/rear/preview", http.StatusConflict},
		{"/api/cameras/video9/preview", http.StatusNotFound},
		{"/api/cameras/video0/preview?width=640", http.StatusBadRequest},
		{"/api/cameras/video0/preview?width=0&height=1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		path, code := tt.path, tt.code
		resp, _ := do(t, http.MethodGet, srv.URL+path, "")
		if resp.StatusCode != code {
			t.Errorf("GET %s status = %d, want %d", path, resp.StatusCode, code)
		}
	}
}

func TestCaptureFetch(t *testing.T) {
	runner := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, os.WriteFile(args[len(args)-1], []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0644)
	}
	srv, _ := newTestServer(t, camera.WithRunner(runner))

	resp, body := do(t, http.MethodPost, srv.URL+"/api/cameras/video0/capture", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("capture status = %d (%v)", resp.StatusCode, body)
	}
	name := filepath.Base(body["path"].(string))

	img, err := http.Get(srv.URL + "/api/captures/" + name)
	if err != nil {
		t.Fatalf("GET capture: %v", err)
	}
	data, _ := io.ReadAll(img.Body)
	img.Body.Close()
	if img.StatusCode != http.StatusOK || img.Header.Get("Content-Type") != "image/jpeg" || len(data) != 4 {
		t.Errorf("GET %s = %d %q, %d bytes", name, img.StatusCode, img.Header.Get("Content-Type"), len(data))
	}

	for _, bad := range []string{"IMG_0.jpg", "..%2Fconfig.yaml", "config.yaml"} {
		resp, _ := do(t, http.MethodGet, srv.URL+"/api/captures/"+bad, "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET /api/captures/%s status = %d, want 404", bad, resp.StatusCode)
		}
	}
}

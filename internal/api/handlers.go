package api

import (
	"encoding/json"
	"net/http"
	"time"

	"cameramodules/internal/camera"
	"cameramodules/internal/config"
	"cameramodules/internal/resolution"
	"cameramodules/internal/stats"
)

type Handler struct {
	config     *config.Manager
	cameras    *camera.Service
	wsHub      *Hub
	startTime  time.Time
	appVersion string
}

func NewHandler(cfg *config.Manager, svc *camera.Service, hub *Hub) *Handler {
	return &Handler{
		config:    cfg,
		cameras:   svc,
		wsHub:     hub,
		startTime: time.Now(),
	}
}

// Routes registers every API endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", h.HandleStatus)
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.HandleConfigGet(w, r)
		case http.MethodPut:
			h.HandleConfigUpdate(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/logs/download", h.HandleLogsDownload)
	mux.HandleFunc("/api/debug", h.HandleDebugMode)
	mux.HandleFunc("/api/selections", h.HandleSelections)

	mux.HandleFunc("GET /api/cameras", h.HandleCameraList)
	mux.HandleFunc("POST /api/cameras/scan", h.HandleCameraScan)
	mux.HandleFunc("GET /api/cameras/{id}/sizes", h.HandleCameraSizes)
	mux.HandleFunc("GET /api/cameras/{id}/resolution", h.HandleCameraResolution)
	mux.HandleFunc("POST /api/cameras/{id}/capture", h.HandleCameraCapture)
	mux.HandleFunc("GET /api/cameras/{id}/preview", h.HandleCameraPreview)
	mux.HandleFunc("GET /api/captures/{name}", h.HandleCaptureGet)

	if h.wsHub != nil {
		mux.HandleFunc("/ws", h.HandleWebSocket)
	}
}

// ========== Types ==========

type StatusResponse struct {
	Uptime      int64  `json:"uptime"`
	Version     string `json:"version"`
	Cameras     int    `json:"cameras"`
	Selections  int    `json:"selections"`
	Fallbacks   int    `json:"fallbacks"`
	WSClients   int    `json:"ws_clients"`
	Debug       bool   `json:"debug"`
	CaptureDir  string `json:"capture_dir"`
	PortalCheck bool   `json:"portal_check"`
}

type CameraListResponse struct {
	Cameras []camera.Info `json:"cameras"`
}

type SizesResponse struct {
	CameraID string            `json:"camera_id"`
	UseCase  string            `json:"use_case"`
	Format   string            `json:"format"`
	Sizes    []resolution.Size `json:"sizes"`
}

type CaptureRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type SelectionsResponse struct {
	Total      int                     `json:"total"`
	Fallbacks  int                     `json:"fallbacks"`
	Selections []stats.SelectionRecord `json:"selections"`
}

// ========== Helper Methods ==========

func jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) uptime() time.Duration {
	return time.Since(h.startTime)
}

// SetVersion sets the application version
func (h *Handler) SetVersion(version string) {
	h.appVersion = version
}

// GetVersion returns the application version
func (h *Handler) GetVersion() string {
	return h.appVersion
}

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"cameramodules/internal/logger"
)

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := h.config.Get()
	total, fallbacks := h.cameras.History().Counts()
	resp := StatusResponse{
		Uptime:      int64(h.uptime().Seconds()),
		Version:     h.appVersion,
		Cameras:     len(h.cameras.Cameras()),
		Selections:  total,
		Fallbacks:   fallbacks,
		Debug:       logger.IsDebug(),
		CaptureDir:  filepath.Join(cfg.Capture.OutputDir, cfg.Capture.RelativePath),
		PortalCheck: cfg.Permissions.Portal,
	}
	if h.wsHub != nil {
		resp.WSClients = h.wsHub.ClientCount()
	}

	writeJSON(w, resp)
}

func (h *Handler) HandleConfigGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, h.config.Get())
}

func (h *Handler) HandleConfigUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Start from the current config so partial documents keep other sections.
	cfg := h.config.Get()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		jsonError(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.config.Update(cfg); err != nil {
		jsonError(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusInternalServerError)
		return
	}
	h.cameras.Reload()

	logger.Info("Configuration updated successfully")
	writeJSON(w, map[string]string{"status": "updated"})
}

func (h *Handler) HandleSelections(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				jsonError(w, fmt.Sprintf("Invalid limit %q", v), http.StatusBadRequest)
				return
			}
			limit = n
		}

		history := h.cameras.History()
		resp := SelectionsResponse{}
		resp.Total, resp.Fallbacks = history.Counts()
		if limit > 0 {
			resp.Selections = history.GetRecent(limit)
		} else {
			resp.Selections = history.GetAll()
		}
		writeJSON(w, resp)

	case http.MethodDelete:
		h.cameras.History().Clear()
		writeJSON(w, map[string]string{"status": "cleared"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HandleLogsDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logFilePath := logger.Get().FilePath()
	if logFilePath == "" {
		jsonError(w, "File logging is not enabled", http.StatusNotFound)
		return
	}

	file, err := os.Open(logFilePath)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to open log file: %v", err), http.StatusInternalServerError)
		return
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to stat log file: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Disposition", "attachment; filename=\"cameramodules.log\"")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", fileInfo.Size()))

	if _, err := io.Copy(w, file); err != nil {
		logger.Error("Failed to stream log file: %v", err)
	}
}

func (h *Handler) HandleDebugMode(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, map[string]bool{"debug": logger.IsDebug()})

	case http.MethodPost:
		var req struct {
			Debug bool `json:"debug"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
			return
		}

		logger.SetDebug(req.Debug)
		writeJSON(w, map[string]interface{}{
			"debug":  req.Debug,
			"status": "updated",
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHub.HandleConnection(w, r)
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"cameramodules/internal/camera"
	"cameramodules/internal/logger"
	"cameramodules/internal/portal"
	"cameramodules/internal/preview"
	"cameramodules/internal/resolution"
	"cameramodules/internal/snapshot"
	"cameramodules/internal/usbcam"
)

func (h *Handler) HandleCameraList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, CameraListResponse{Cameras: h.cameras.Cameras()})
}

func (h *Handler) HandleCameraScan(w http.ResponseWriter, r *http.Request) {
	cams, err := h.cameras.Scan()
	if err != nil {
		jsonError(w, fmt.Sprintf("Scan failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, CameraListResponse{Cameras: cams})
}

func (h *Handler) HandleCameraSizes(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	useCase, err := useCaseParam(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	format, _ := useCase.FormatKey()
	writeJSON(w, SizesResponse{
		CameraID: id,
		UseCase:  useCase.String(),
		Format:   string(format),
		Sizes:    h.cameras.Sizes(id, useCase),
	})
}

func (h *Handler) HandleCameraResolution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	useCase, err := useCaseParam(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	target, err := targetParams(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sel, err := h.cameras.Select(id, useCase, target)
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, sel)
}

func (h *Handler) HandleCameraCapture(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var target *resolution.Size
	var req CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if req.Width != 0 || req.Height != 0 {
		target = &resolution.Size{Width: req.Width, Height: req.Height}
	}

	res, err := h.cameras.Capture(r.Context(), id, target)
	if err != nil {
		logger.Warn("[API] Capture on %s failed: %v", id, err)
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, res)
}

// HandleCameraPreview streams live MJPEG at the preview size selected for the
// camera. ?width=&height= override the configured preview target.
func (h *Handler) HandleCameraPreview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	target, err := targetParams(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	stream, err := h.cameras.Preview(r.Context(), id, target)
	if err != nil {
		logger.Warn("[API] Preview on %s failed: %v", id, err)
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	defer stream.Stop()

	// The server's write timeout would cut the stream.
	rc := http.NewResponseController(w)
	rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", preview.ContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Preview-Size", stream.Selection.Chosen.String())
	w.WriteHeader(http.StatusOK)
	rc.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-stream.Frames:
			if !ok {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			rc.Flush()
		}
	}
}

// HandleCaptureGet serves a saved still by file name.
func (h *Handler) HandleCaptureGet(w http.ResponseWriter, r *http.Request) {
	path, err := h.cameras.CapturePath(r.PathValue("name"))
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", snapshot.MimeType)
	http.ServeFile(w, r, path)
}

// useCaseParam reads ?use_case=, defaulting to preview.
func useCaseParam(r *http.Request) (resolution.UseCase, error) {
	v := r.URL.Query().Get("use_case")
	if v == "" {
		return resolution.Preview, nil
	}
	return resolution.ParseUseCase(v)
}

// targetParams reads ?width=&height=. Both absent yields nil.
func targetParams(r *http.Request) (*resolution.Size, error) {
	q := r.URL.Query()
	ws, hs := q.Get("width"), q.Get("height")
	if ws == "" && hs == "" {
		return nil, nil
	}
	if ws == "" || hs == "" {
		return nil, fmt.Errorf("%w: width and height must be given together", resolution.ErrInvalidTarget)
	}
	width, err := strconv.Atoi(ws)
	if err != nil {
		return nil, fmt.Errorf("%w: width %q", resolution.ErrInvalidTarget, ws)
	}
	height, err := strconv.Atoi(hs)
	if err != nil {
		return nil, fmt.Errorf("%w: height %q", resolution.ErrInvalidTarget, hs)
	}
	return &resolution.Size{Width: width, Height: height}, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, resolution.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, usbcam.ErrCameraNotFound), errors.Is(err, snapshot.ErrImageNotFound):
		return http.StatusNotFound
	case errors.Is(err, camera.ErrNotCapturable):
		return http.StatusConflict
	case errors.Is(err, portal.ErrAccessDenied), errors.Is(err, portal.ErrAccessCancelled):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

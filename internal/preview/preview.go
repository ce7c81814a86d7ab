// Package preview streams live MJPEG from a V4L2 camera through ffmpeg and
// fans the stream out to any number of HTTP clients.
package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"cameramodules/internal/logger"
	"cameramodules/internal/resolution"
)

// Boundary is the multipart boundary ffmpeg's mpjpeg muxer writes.
const Boundary = "ffmpeg"

// ContentType is the response type for a preview stream.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

const DefaultFPS = 15

var ErrStreamClosed = errors.New("preview stream closed")

// Starter launches a command and returns its stdout. Closing the reader
// stops the command.
type Starter func(ctx context.Context, name string, args ...string) (io.ReadCloser, error)

// ExecStarter runs the command with os/exec.
func ExecStarter(ctx context.Context, name string, args ...string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &cmdReader{ReadCloser: stdout, cmd: cmd}, nil
}

type cmdReader struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (r *cmdReader) Close() error {
	if r.cmd.Process != nil {
		r.cmd.Process.Kill()
	}
	r.ReadCloser.Close()
	return r.cmd.Wait()
}

// Request describes one preview stream.
type Request struct {
	CameraID    string
	DevicePath  string
	InputFormat string // ffmpeg -input_format, empty lets ffmpeg choose
	Size        resolution.Size
	FPS         int
	FFmpegPath  string
}

// BuildArgs returns the ffmpeg arguments that encode req as multipart MJPEG on stdout.
func BuildArgs(req Request) []string {
	fps := req.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
	}
	// -input_format must come before -framerate and -video_size.
	if req.InputFormat != "" {
		args = append(args, "-input_format", req.InputFormat)
	}
	args = append(args,
		"-framerate", strconv.Itoa(fps),
		"-video_size", req.Size.String(),
		"-i", req.DevicePath,
		"-vf", "format=yuvj420p",
		"-c:v", "mjpeg",
		"-q:v", "5",
		"-f", "mpjpeg",
		"pipe:1",
	)
	return args
}

// Broadcaster copies one ffmpeg stdout to many subscribers. Slow subscribers
// miss chunks rather than stall the others.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	closed  bool
	once    sync.Once
	src     io.ReadCloser
	size    resolution.Size
}

func newBroadcaster(src io.ReadCloser, size resolution.Size) *Broadcaster {
	return &Broadcaster{
		clients: make(map[chan []byte]struct{}),
		src:     src,
		size:    size,
	}
}

// Size is the resolution the stream was started at.
func (b *Broadcaster) Size() resolution.Size {
	return b.size
}

func (b *Broadcaster) addClient() (chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrStreamClosed
	}
	ch := make(chan []byte, 16)
	b.clients[ch] = struct{}{}
	return ch, nil
}

// removeClient drops ch and reports how many clients remain.
func (b *Broadcaster) removeClient(ch chan []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
	return len(b.clients)
}

func (b *Broadcaster) broadcast(data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for ch := range b.clients {
		select {
		case ch <- data:
		default:
			// slow client
		}
	}
}

// Close stops ffmpeg and ends every subscription.
func (b *Broadcaster) Close() {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		for ch := range b.clients {
			close(ch)
		}
		b.clients = make(map[chan []byte]struct{})
		b.mu.Unlock()
		b.src.Close()
	})
}

// pump reads the source until it ends, then closes the broadcaster.
func (b *Broadcaster) pump() {
	defer b.Close()
	buf := make([]byte, 32*1024)
	for {
		n, err := b.src.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			b.broadcast(chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				logger.Debug("[Preview] stream read ended: %v", err)
			}
			return
		}
	}
}

// Manager keeps at most one running stream per camera.
type Manager struct {
	mu      sync.Mutex
	streams map[string]*Broadcaster
	start   Starter
}

// NewManager returns a Manager. A nil starter uses ExecStarter.
func NewManager(start Starter) *Manager {
	if start == nil {
		start = ExecStarter
	}
	return &Manager{streams: make(map[string]*Broadcaster), start: start}
}

// Subscribe joins the camera's running stream, starting ffmpeg when none runs
// or when the running one has a different size. The returned channel closes
// when the stream ends; call unsubscribe when done.
func (m *Manager) Subscribe(req Request) (<-chan []byte, func(), error) {
	if !req.Size.Valid() {
		return nil, nil, fmt.Errorf("%w: %s", resolution.ErrInvalidTarget, req.Size)
	}
	if req.DevicePath == "" {
		return nil, nil, errors.New("preview: no device path")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.streams[req.CameraID]
	if b != nil && b.Size() != req.Size {
		logger.Info("[Preview] %s: restarting at %s (was %s)", req.CameraID, req.Size, b.Size())
		b.Close()
		b = nil
	}

	var ch chan []byte
	if b != nil {
		var err error
		if ch, err = b.addClient(); err != nil {
			b = nil
		}
	}
	if b == nil {
		name := req.FFmpegPath
		if name == "" {
			name = "ffmpeg"
		}
		args := BuildArgs(req)
		logger.Debug("[Preview] %s %s", name, strings.Join(args, " "))

		src, err := m.start(context.Background(), name, args...)
		if err != nil {
			return nil, nil, fmt.Errorf("start preview for %s: %w", req.CameraID, err)
		}
		b = newBroadcaster(src, req.Size)
		m.streams[req.CameraID] = b
		ch, _ = b.addClient()
		go func(id string, b *Broadcaster) {
			b.pump()
			m.forget(id, b)
		}(req.CameraID, b)
		logger.Info("[Preview] %s: streaming %s from %s", req.CameraID, req.Size, req.DevicePath)
	}

	unsubscribe := func() {
		if b.removeClient(ch) > 0 {
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		// A new client may have joined while we waited for the lock.
		b.mu.RLock()
		idle := len(b.clients) == 0
		b.mu.RUnlock()
		if idle && m.streams[req.CameraID] == b {
			delete(m.streams, req.CameraID)
			b.Close()
			logger.Info("[Preview] %s: last viewer left, stopped", req.CameraID)
		}
	}
	return ch, unsubscribe, nil
}

func (m *Manager) forget(id string, b *Broadcaster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streams[id] == b {
		delete(m.streams, id)
	}
}

// Active lists cameras with a running stream.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.streams))
	for id := range m.streams {
		ids = append(ids, id)
	}
	return ids
}

// StopAll closes every running stream.
func (m *Manager) StopAll() {
	m.mu.Lock()
	streams := m.streams
	m.streams = make(map[string]*Broadcaster)
	m.mu.Unlock()
	for _, b := range streams {
		b.Close()
	}
}

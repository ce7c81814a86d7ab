// Package portal asks the desktop for camera access through the
// xdg-desktop-portal Camera interface on the D-Bus session bus.
package portal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	"cameramodules/internal/logger"
)

const (
	portalBusName = "org.freedesktop.portal.Desktop"
	portalPath    = dbus.ObjectPath("/org/freedesktop/portal/desktop")
	cameraIface   = "org.freedesktop.portal.Camera"
	requestIface  = "org.freedesktop.portal.Request"
)

var (
	ErrAccessDenied    = errors.New("camera access denied")
	ErrAccessCancelled = errors.New("camera access request cancelled")
)

// DefaultAccessTimeout bounds AccessCamera when the caller's context has no deadline.
const DefaultAccessTimeout = 2 * time.Minute

var tokenSeq atomic.Uint64

// Client talks to the portal over a session bus connection.
type Client struct {
	conn          *dbus.Conn
	AccessTimeout time.Duration
}

// Connect opens the session bus.
func Connect() (*Client, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &Client{conn: conn, AccessTimeout: DefaultAccessTimeout}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn *dbus.Conn) *Client {
	return &Client{conn: conn, AccessTimeout: DefaultAccessTimeout}
}

// IsCameraPresent reads the portal's IsCameraPresent property.
func (c *Client) IsCameraPresent(ctx context.Context) (bool, error) {
	obj := c.conn.Object(portalBusName, portalPath)

	var v dbus.Variant
	err := obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0, cameraIface, "IsCameraPresent").Store(&v)
	if err != nil {
		return false, fmt.Errorf("read IsCameraPresent: %w", err)
	}
	present, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("IsCameraPresent has type %s, want b", v.Signature())
	}
	return present, nil
}

// AccessCamera asks the user for camera access and blocks until they answer,
// ctx ends or AccessTimeout passes. A nil error means access was granted.
func (c *Client) AccessCamera(ctx context.Context) error {
	ctx, cancel := withDefaultTimeout(ctx, c.AccessTimeout)
	defer cancel()

	token := nextToken()
	names := c.conn.Names()
	if len(names) == 0 {
		return errors.New("session bus connection has no unique name")
	}
	expected := requestPath(names[0], token)

	// Subscribe before calling so a fast Response cannot be missed.
	match := responseMatch(expected)
	if err := c.conn.AddMatchSignalContext(ctx, match...); err != nil {
		return fmt.Errorf("subscribe to portal response: %w", err)
	}
	defer c.conn.RemoveMatchSignal(match...)

	signals := make(chan *dbus.Signal, 8)
	c.conn.Signal(signals)
	defer c.conn.RemoveSignal(signals)

	var handle dbus.ObjectPath
	options := map[string]dbus.Variant{"handle_token": dbus.MakeVariant(token)}
	obj := c.conn.Object(portalBusName, portalPath)
	if err := obj.CallWithContext(ctx, cameraIface+".AccessCamera", 0, options).Store(&handle); err != nil {
		return fmt.Errorf("AccessCamera: %w", err)
	}
	if handle != expected {
		// Old portals ignore handle_token and pick their own path.
		logger.Debug("[Portal] request handle %s differs from expected %s", handle, expected)
		actual := responseMatch(handle)
		if err := c.conn.AddMatchSignalContext(ctx, actual...); err != nil {
			return fmt.Errorf("subscribe to portal response on %s: %w", handle, err)
		}
		defer c.conn.RemoveMatchSignal(actual...)
	}

	return waitResponse(ctx, signals, handle)
}

func responseMatch(path dbus.ObjectPath) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchInterface(requestIface),
		dbus.WithMatchMember("Response"),
		dbus.WithMatchObjectPath(path),
	}
}

// waitResponse returns the outcome of the first Response signal emitted on handle.
func waitResponse(ctx context.Context, signals <-chan *dbus.Signal, handle dbus.ObjectPath) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for portal response: %w", ctx.Err())
		case sig, ok := <-signals:
			if !ok {
				return errors.New("session bus closed while waiting for portal response")
			}
			if sig.Path != handle || sig.Name != requestIface+".Response" || len(sig.Body) == 0 {
				continue
			}
			code, ok := sig.Body[0].(uint32)
			if !ok {
				return fmt.Errorf("unexpected portal response body %v", sig.Body)
			}
			logger.Debug("[Portal] AccessCamera response %d", code)
			return responseError(code)
		}
	}
}

// withDefaultTimeout applies d only when ctx carries no deadline of its own.
func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// responseError maps an org.freedesktop.portal.Request response code.
func responseError(code uint32) error {
	switch code {
	case 0:
		return nil
	case 1:
		return ErrAccessDenied
	case 2:
		return ErrAccessCancelled
	default:
		return fmt.Errorf("portal request ended with code %d", code)
	}
}

// requestPath predicts the Request object path for a unique bus name and token:
// ":1.42" becomes "/org/freedesktop/portal/desktop/request/1_42/<token>".
func requestPath(uniqueName, token string) dbus.ObjectPath {
	sender := strings.ReplaceAll(strings.TrimPrefix(uniqueName, ":"), ".", "_")
	return dbus.ObjectPath(fmt.Sprintf("%s/request/%s/%s", portalPath, sender, token))
}

func nextToken() string {
	return fmt.Sprintf("cameramodules_%d_%d", os.Getpid(), tokenSeq.Add(1))
}

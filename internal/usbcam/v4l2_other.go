//go:build !linux

package usbcam

import (
	"errors"
	"runtime"
)

var errNoV4L2 = errors.New("V4L2 is not available on " + runtime.GOOS)

func queryDevice(devPath string) (DeviceInfo, error) {
	return DeviceInfo{}, errNoV4L2
}

func enumFormats(devPath string) ([]VideoFormat, error) {
	return nil, errNoV4L2
}

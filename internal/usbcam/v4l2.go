//go:build linux

package usbcam

import (
	"encoding/binary"
	"fmt"
	"syscall"
	"unsafe"
)

// V4L2 ioctl request codes (Linux x86_64 / arm64)
const (
	vidiocQuerycap           = 0x80685600 // VIDIOC_QUERYCAP
	vidiocEnumFmt            = 0xC0405602 // VIDIOC_ENUM_FMT
	vidiocEnumFramesizes     = 0xC02C564A // VIDIOC_ENUM_FRAMESIZES
	vidiocEnumFrameintervals = 0xC034564B // VIDIOC_ENUM_FRAMEINTERVALS
)

const (
	v4l2CapVideoCapture       = 0x00000001
	v4l2CapVideoCaptureMplane = 0x00001000
	v4l2CapDeviceCaps         = 0x80000000
)

const (
	v4l2BufTypeVideoCapture = 1
	v4l2FrmsizeTypeDiscrete = 1
	v4l2FrmivalTypeDiscrete = 1
)

// v4l2Capability matches struct v4l2_capability (104 bytes)
type v4l2Capability struct {
	Driver       [16]byte
	Card         [32]byte
	BusInfo      [32]byte
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
	Reserved     [3]uint32
}

// v4l2FmtDesc matches struct v4l2_fmtdesc (64 bytes)
type v4l2FmtDesc struct {
	Index       uint32
	Type        uint32
	Flags       uint32
	Description [32]byte
	PixelFormat uint32
	MbusCode    uint32
	Reserved    [3]uint32
}

// v4l2FrmSizeEnum matches struct v4l2_frmsizeenum (44 bytes)
type v4l2FrmSizeEnum struct {
	Index       uint32
	PixelFormat uint32
	Type        uint32
	Union       [24]byte // discrete (w,h) or stepwise (min/max/step)
	Reserved    [2]uint32
}

// v4l2FrmIvalEnum matches struct v4l2_frmivalenum (52 bytes)
type v4l2FrmIvalEnum struct {
	Index       uint32
	PixelFormat uint32
	Width       uint32
	Height      uint32
	Type        uint32
	Union       [24]byte
	Reserved    [2]uint32
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) syscall.Errno {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	return errno
}

// queryDevice runs VIDIOC_QUERYCAP and reports the identity of the node.
func queryDevice(devPath string) (DeviceInfo, error) {
	fd, err := syscall.Open(devPath, syscall.O_RDONLY, 0)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("open %s: %w", devPath, err)
	}
	defer syscall.Close(fd)

	var cap v4l2Capability
	if errno := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&cap)); errno != 0 {
		return DeviceInfo{}, fmt.Errorf("VIDIOC_QUERYCAP on %s: %w", devPath, errno)
	}

	// device_caps describes this node on multi-function devices
	caps := cap.Capabilities
	if caps&v4l2CapDeviceCaps != 0 {
		caps = cap.DeviceCaps
	}

	return DeviceInfo{
		Driver:    bytesToString(cap.Driver[:]),
		Card:      bytesToString(cap.Card[:]),
		BusInfo:   bytesToString(cap.BusInfo[:]),
		IsCapture: caps&v4l2CapVideoCapture != 0 || caps&v4l2CapVideoCaptureMplane != 0,
	}, nil
}

// enumFormats lists every discrete (pixel format, frame size) pair in the order
// the driver reports them. Stepwise and continuous sizes are skipped.
func enumFormats(devPath string) ([]VideoFormat, error) {
	fd, err := syscall.Open(devPath, syscall.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", devPath, err)
	}
	defer syscall.Close(fd)

	var formats []VideoFormat

	for fmtIdx := uint32(0); ; fmtIdx++ {
		desc := v4l2FmtDesc{Index: fmtIdx, Type: v4l2BufTypeVideoCapture}
		if errno := ioctl(fd, vidiocEnumFmt, unsafe.Pointer(&desc)); errno != 0 {
			break // EINVAL ends the list
		}
		pixFmt := fourccToString(desc.PixelFormat)

		for sizeIdx := uint32(0); ; sizeIdx++ {
			frmSize := v4l2FrmSizeEnum{Index: sizeIdx, PixelFormat: desc.PixelFormat}
			if errno := ioctl(fd, vidiocEnumFramesizes, unsafe.Pointer(&frmSize)); errno != 0 {
				break
			}
			if frmSize.Type != v4l2FrmsizeTypeDiscrete {
				continue
			}

			width := binary.LittleEndian.Uint32(frmSize.Union[0:4])
			height := binary.LittleEndian.Uint32(frmSize.Union[4:8])

			formats = append(formats, VideoFormat{
				PixelFormat: pixFmt,
				Width:       int(width),
				Height:      int(height),
				FPS:         enumFrameRates(fd, desc.PixelFormat, width, height),
			})
		}
	}

	return formats, nil
}

func enumFrameRates(fd int, pixelFormat, width, height uint32) []int {
	var fpsList []int
	for ivalIdx := uint32(0); ; ivalIdx++ {
		frmIval := v4l2FrmIvalEnum{
			Index:       ivalIdx,
			PixelFormat: pixelFormat,
			Width:       width,
			Height:      height,
		}
		if errno := ioctl(fd, vidiocEnumFrameintervals, unsafe.Pointer(&frmIval)); errno != 0 {
			break
		}
		if frmIval.Type != v4l2FrmivalTypeDiscrete {
			continue
		}

		// v4l2_fract: numerator/denominator seconds per frame
		numerator := binary.LittleEndian.Uint32(frmIval.Union[0:4])
		denominator := binary.LittleEndian.Uint32(frmIval.Union[4:8])
		if numerator > 0 {
			if fps := int(denominator / numerator); fps > 0 {
				fpsList = append(fpsList, fps)
			}
		}
	}
	return deduplicateFPS(fpsList)
}

package usbcam

import (
	"sort"
	"strings"
)

// fourccToString converts a V4L2 FourCC pixel format code to a string.
func fourccToString(fourcc uint32) string {
	return string([]byte{
		byte(fourcc & 0xFF),
		byte((fourcc >> 8) & 0xFF),
		byte((fourcc >> 16) & 0xFF),
		byte((fourcc >> 24) & 0xFF),
	})
}

// bytesToString extracts a null-terminated string from a byte array.
func bytesToString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// deduplicateFPS removes duplicate FPS values and sorts highest first.
func deduplicateFPS(fpsList []int) []int {
	if len(fpsList) == 0 {
		return fpsList
	}
	seen := make(map[int]bool)
	var unique []int
	for _, fps := range fpsList {
		if !seen[fps] {
			seen[fps] = true
			unique = append(unique, fps)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(unique)))
	return unique
}

// FFmpegInputFormat converts a V4L2 pixel format name to the ffmpeg -input_format value.
func FFmpegInputFormat(pixFmt string) string {
	switch pixFmt {
	case "MJPG":
		return "mjpeg"
	case "NV12":
		return "nv12"
	case "YUYV":
		return "yuyv422"
	case "YU12":
		return "yuv420p"
	case "H264":
		return "h264"
	default:
		return strings.ToLower(pixFmt)
	}
}

package point

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Size is the encoded width of one coordinate in bytes
const Size = 4

// Scale is the fixed-point factor (7 decimal places, ~1.1cm at the equator)
const Scale = 1e7

// Format selects how a coordinate is packed into its 4 bytes
type Format int

const (
	// Float32 stores the coordinate as an IEEE-754 single, little-endian.
	// This is the layout georender readers expect.
	Float32 Format = iota
	// Fixed stores round(coord * 1e7) as a signed 32-bit little-endian int.
	// ±180 * 1e7 stays below 2^31 so the range always fits.
	Fixed
)

var formatNames = map[Format]string{
	Float32: "float32",
	Fixed:   "fixed",
}

// String returns the flag spelling of the format
func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat parses "float32" or "fixed"
func ParseFormat(s string) (Format, error) {
	for f, name := range formatNames {
		if strings.EqualFold(s, name) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unsupported point format: %s (supported: float32, fixed)", s)
}

// EncodeAt writes c into buf at off and returns the bytes written (always 4)
// A short buffer is a sizing bug in the caller and panics.
func (f Format) EncodeAt(c float64, buf []byte, off int) int {
	if off < 0 || off+Size > len(buf) {
		panic(fmt.Sprintf("point: buffer too small: need %d bytes at offset %d, have %d", Size, off, len(buf)))
	}
	var bits uint32
	switch f {
	case Fixed:
		bits = uint32(ScaleCoord(c))
	default:
		bits = math.Float32bits(float32(c))
	}
	binary.LittleEndian.PutUint32(buf[off:], bits)
	return Size
}

// Decode reads one coordinate from the first 4 bytes of buf
func (f Format) Decode(buf []byte) float64 {
	bits := binary.LittleEndian.Uint32(buf)
	switch f {
	case Fixed:
		return UnscaleCoord(int32(bits))
	default:
		return float64(math.Float32frombits(bits))
	}
}

// ScaleCoord converts degrees to the rounded fixed-point integer
func ScaleCoord(c float64) int32 {
	return int32(math.Round(c * Scale))
}

// UnscaleCoord converts a fixed-point integer back to degrees
func UnscaleCoord(v int32) float64 {
	return float64(v) / Scale
}

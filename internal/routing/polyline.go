package routing

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"tourplan/internal/model"
)

// Compact polyline codec: delta-encoded coordinates, zig-zag signed,
// split into little-endian 5-bit groups with a continuation bit, mapped
// onto a base64-like alphabet. A two-value header carries the format
// version, the coordinate precision and an optional third-dimension
// descriptor.

const polylineVersion = 1

const encodingTable = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

var (
	ErrPolylineVersion      = errors.New("polyline: unsupported format version")
	ErrPolylineDangling     = errors.New("polyline: unfinished continuation sequence")
	ErrPolylineBadChar      = errors.New("polyline: invalid character")
	ErrPolylineIncomplete   = errors.New("polyline: truncated coordinate tuple")
	ErrPolylineMissingHdr   = errors.New("polyline: missing header")
	ErrPolylineBadPrecision = errors.New("polyline: precision out of range")
)

var decodingTable [128]int8

func init() {
	for i := range decodingTable {
		decodingTable[i] = -1
	}
	for i, c := range encodingTable {
		decodingTable[c] = int8(i)
	}
}

// EncodePolyline encodes points at the given decimal precision (0..15)
// with no third dimension.
func EncodePolyline(points []model.GeoPoint, precision uint) (string, error) {
	if precision > 15 {
		return "", ErrPolylineBadPrecision
	}
	var sb strings.Builder
	encodeUnsigned(&sb, polylineVersion)
	encodeUnsigned(&sb, uint64(precision)) // third-dim type and precision are zero

	scale := math.Pow10(int(precision))
	var prevLat, prevLng int64
	for _, p := range points {
		lat := int64(math.Round(p.Lat * scale))
		lng := int64(math.Round(p.Lng * scale))
		encodeSigned(&sb, lat-prevLat)
		encodeSigned(&sb, lng-prevLng)
		prevLat, prevLng = lat, lng
	}
	return sb.String(), nil
}

// DecodePolyline is the left inverse of EncodePolyline and also accepts
// input carrying a third dimension, which is consumed and dropped.
func DecodePolyline(s string) ([]model.GeoPoint, error) {
	values, err := decodeValues(s)
	if err != nil {
		return nil, err
	}
	if len(values) < 2 {
		return nil, ErrPolylineMissingHdr
	}
	if values[0] != polylineVersion {
		return nil, fmt.Errorf("%w: %d", ErrPolylineVersion, values[0])
	}
	header := values[1]
	precision := header & 15
	thirdDimType := (header >> 4) & 7
	if precision > 15 {
		return nil, ErrPolylineBadPrecision
	}

	dims := 2
	if thirdDimType != 0 {
		dims = 3
	}
	body := values[2:]
	if len(body)%dims != 0 {
		return nil, ErrPolylineIncomplete
	}

	scale := math.Pow10(int(precision))
	out := make([]model.GeoPoint, 0, len(body)/dims)
	var lat, lng int64
	for i := 0; i < len(body); i += dims {
		lat += unZigZag(body[i])
		lng += unZigZag(body[i+1])
		out = append(out, model.GeoPoint{
			Lat: float64(lat) / scale,
			Lng: float64(lng) / scale,
		})
	}
	return out, nil
}

func encodeUnsigned(sb *strings.Builder, v uint64) {
	for v >= 0x20 {
		sb.WriteByte(encodingTable[(v&0x1f)|0x20])
		v >>= 5
	}
	sb.WriteByte(encodingTable[v])
}

func encodeSigned(sb *strings.Builder, v int64) {
	encodeUnsigned(sb, uint64((v<<1)^(v>>63)))
}

func unZigZag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// decodeValues splits the string into raw unsigned values. A value left
// open by a trailing continuation bit is rejected.
func decodeValues(s string) ([]uint64, error) {
	var values []uint64
	var cur uint64
	var shift uint
	inValue := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 128 || decodingTable[c] < 0 {
			return nil, fmt.Errorf("%w: %q at %d", ErrPolylineBadChar, c, i)
		}
		chunk := uint64(decodingTable[c])
		cur |= (chunk & 0x1f) << shift
		if chunk&0x20 != 0 {
			shift += 5
			inValue = true
			continue
		}
		values = append(values, cur)
		cur, shift, inValue = 0, 0, false
	}
	if inValue {
		return nil, ErrPolylineDangling
	}
	return values, nil
}

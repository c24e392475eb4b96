package routing

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"tourplan/internal/model"
)

func TestPolylineRoundTrip(t *testing.T) {
	points := []model.GeoPoint{
		{Lat: 52.52000, Lng: 13.40500},
		{Lat: 52.51500, Lng: 13.41000},
		{Lat: 52.50000, Lng: 13.39000},
		{Lat: -1.28333, Lng: 36.81667},
	}
	enc, err := EncodePolyline(points, 5)
	require.NoError(t, err)

	dec, err := DecodePolyline(enc)
	require.NoError(t, err)
	require.Len(t, dec, len(points))
	for i := range points {
		require.InDelta(t, points[i].Lat, dec[i].Lat, 1e-5)
		require.InDelta(t, points[i].Lng, dec[i].Lng, 1e-5)
	}
}

func TestPolylineRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	points := make([]model.GeoPoint, 0, 500)
	for i := 0; i < 500; i++ {
		points = append(points, model.GeoPoint{
			Lat: rng.Float64()*180 - 90,
			Lng: rng.Float64()*360 - 180,
		})
	}
	enc, err := EncodePolyline(points, 6)
	require.NoError(t, err)
	dec, err := DecodePolyline(enc)
	require.NoError(t, err)
	require.Len(t, dec, len(points))
	for i := range points {
		require.InDelta(t, points[i].Lat, dec[i].Lat, 1e-6)
		require.InDelta(t, points[i].Lng, dec[i].Lng, 1e-6)
	}
}

func TestPolylineEmptyBody(t *testing.T) {
	enc, err := EncodePolyline(nil, 5)
	require.NoError(t, err)
	dec, err := DecodePolyline(enc)
	require.NoError(t, err)
	require.Empty(t, dec)
}

func TestDecodeRejectsDanglingContinuation(t *testing.T) {
	enc, err := EncodePolyline([]model.GeoPoint{{Lat: 52.5, Lng: 13.4}}, 5)
	require.NoError(t, err)

	// the last character of a valid encoding never carries the
	// continuation bit; force one to leave a value unfinished
	broken := enc[:len(enc)-1] + string(encodingTable[0x20|0x01])
	_, err = DecodePolyline(broken)
	require.ErrorIs(t, err, ErrPolylineDangling)
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	enc, err := EncodePolyline([]model.GeoPoint{{Lat: 52.5, Lng: 13.4}}, 5)
	require.NoError(t, err)

	// version 1 encodes as single character 'B'; bump it
	broken := string(encodingTable[2]) + enc[1:]
	_, err = DecodePolyline(broken)
	require.ErrorIs(t, err, ErrPolylineVersion)
}

func TestDecodeRejectsInvalidCharacter(t *testing.T) {
	_, err := DecodePolyline("B!!!")
	require.ErrorIs(t, err, ErrPolylineBadChar)
}

func TestDecodeRejectsTruncatedTuple(t *testing.T) {
	enc, err := EncodePolyline([]model.GeoPoint{{Lat: 52.5, Lng: 13.4}, {Lat: 52.6, Lng: 13.5}}, 5)
	require.NoError(t, err)

	// append one extra complete value: an odd number of deltas cannot
	// form coordinate pairs
	broken := enc + string(encodingTable[3])
	_, err = DecodePolyline(broken)
	require.ErrorIs(t, err, ErrPolylineIncomplete)
}

func TestDecodeRejectsMissingHeader(t *testing.T) {
	_, err := DecodePolyline("")
	require.ErrorIs(t, err, ErrPolylineMissingHdr)
	_, err = DecodePolyline("B")
	require.ErrorIs(t, err, ErrPolylineMissingHdr)
}

func TestEncodeRejectsExcessivePrecision(t *testing.T) {
	_, err := EncodePolyline(nil, 16)
	require.ErrorIs(t, err, ErrPolylineBadPrecision)
}

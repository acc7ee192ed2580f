package decoder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDecoder() *Decoder {
	return New(80, DefaultMaxSliceSize)
}

func recognitionHeader(candidates ...RawCandidate) *RawFaceRecognition {
	return &RawFaceRecognition{
		Face:       RawFaceData{Sex: 1, Age: 34, FaceQuality: 88},
		Candidates: candidates,
	}
}

func TestDecodeUnknownKindDropped(t *testing.T) {
	t.Parallel()

	d := newTestDecoder()
	assert.Nil(t, d.Decode(0, KindUnknown, nil, nil))
	assert.Nil(t, d.Decode(0, EventKind(999), nil, nil))
}

func TestDecodeMismatchedHeaderDropped(t *testing.T) {
	t.Parallel()

	d := newTestDecoder()
	assert.Nil(t, d.Decode(0, KindFaceRecognition, &RawTrafficJunction{}, nil))
}

func TestDecodePanicIsolated(t *testing.T) {
	t.Parallel()

	d := newTestDecoder()
	var nilHeader *RawFaceRecognition
	assert.NotPanics(t, func() {
		assert.Nil(t, d.Decode(0, KindFaceRecognition, nilHeader, nil))
	})
}

func TestDecodeFaceRecognitionSelectsMaxSimilarity(t *testing.T) {
	t.Parallel()

	d := newTestDecoder()
	header := recognitionHeader(
		RawCandidate{Name: "first", Similarity: 85},
		RawCandidate{Name: "peak", Similarity: 92},
		RawCandidate{Name: "alsoPeak", Similarity: 92},
		RawCandidate{Name: "low", Similarity: 60},
	)

	event := d.Decode(3, KindFaceRecognition, header, nil)
	require.NotNil(t, event)

	rec, ok := event.(*RecognitionEvent)
	require.True(t, ok)

	// Ties break by original array order, first seen wins.
	require.NotNil(t, rec.Candidate)
	assert.Equal(t, "peak", rec.Candidate.Name)
	assert.Equal(t, 92, rec.Similarity)
	assert.True(t, rec.Significant)
	assert.Equal(t, 3, rec.Channel)
	assert.Equal(t, TypeRecognition, rec.Type)
}

func TestDecodeSignificanceThreshold(t *testing.T) {
	t.Parallel()

	d := newTestDecoder()

	tests := []struct {
		name        string
		similarity  int
		significant bool
	}{
		{"at threshold", 80, true},
		{"above threshold", 81, true},
		{"below threshold", 79, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := d.Decode(0, KindFaceRecognition,
				recognitionHeader(RawCandidate{Name: "x", Similarity: tt.similarity}), nil)
			rec := event.(*RecognitionEvent)
			assert.Equal(t, tt.significant, rec.Significant)
		})
	}
}

func TestDecodeNoCandidateNeverSignificant(t *testing.T) {
	t.Parallel()

	d := newTestDecoder()
	event := d.Decode(0, KindFaceRecognition, recognitionHeader(), nil)
	rec := event.(*RecognitionEvent)
	assert.Nil(t, rec.Candidate)
	assert.False(t, rec.Significant)
}

func TestDecodeBadImageOffsetStillProducesEvent(t *testing.T) {
	t.Parallel()

	d := newTestDecoder()
	header := recognitionHeader(RawCandidate{Name: "x", Similarity: 90})
	header.GlobalScene = true
	header.GlobalScenePic = PicInfo{Offset: 90, Length: 20} // beyond the 100-byte buffer
	header.FacePic = PicInfo{Offset: 0, Length: 10}

	event := d.Decode(0, KindFaceRecognition, header, make([]byte, 100))
	require.NotNil(t, event)

	rec := event.(*RecognitionEvent)
	assert.Nil(t, rec.SceneImage, "out-of-range image field dropped")
	assert.Len(t, rec.FaceImage, 10, "valid image field kept")
	assert.True(t, rec.Significant)
}

func TestDecodeFaceDetectionUsesWholeBuffer(t *testing.T) {
	t.Parallel()

	d := newTestDecoder()
	payload := []byte{0xFF, 0xD8, 0xFF, 0x00, 0x01}

	event := d.Decode(1, KindFaceDetection, &RawFaceDetection{Face: RawFaceData{Sex: 2, Age: 29}}, payload)
	require.NotNil(t, event)

	rec := event.(*RecognitionEvent)
	assert.Equal(t, TypeDetection, rec.Type)
	assert.Equal(t, payload, rec.SceneImage)
	assert.Nil(t, rec.Candidate)
	assert.Equal(t, "Female", rec.Attributes.Sex)
}

func TestDecodeSequenceMonotonic(t *testing.T) {
	t.Parallel()

	d := newTestDecoder()
	first := d.Decode(0, KindFaceDetection, &RawFaceDetection{}, nil).(*RecognitionEvent)
	second := d.Decode(0, KindFaceDetection, &RawFaceDetection{}, nil).(*RecognitionEvent)
	assert.Greater(t, second.Sequence, first.Sequence)
}

func TestDecodeTrafficJunction(t *testing.T) {
	t.Parallel()

	d := newTestDecoder()
	ts := time.Date(2026, 8, 30, 14, 3, 5, 0, time.UTC)
	header := &RawTrafficJunction{
		EventID:     42,
		UTC:         ts,
		ChannelID:   7,
		Direction:   3,
		Speed:       55,
		Confidence:  91,
		ObjectType:  "Vehicle",
		FrontPlate:  "AB-123-CD",
		BoundingBox: Rect{X: 10, Y: 20, Width: 100, Height: 50},
		EventAction: 1,
	}

	event := d.Decode(2, KindTrafficJunction, header, nil)
	require.NotNil(t, event)

	traffic, ok := event.(*TrafficEvent)
	require.True(t, ok)
	assert.Equal(t, "7_42_20260830140305", traffic.EventID)
	assert.Equal(t, "Car", traffic.VehicleType)
	assert.Equal(t, DirectionLeftTurn, traffic.Direction)
	assert.Equal(t, "AB-123-CD", traffic.PlateNumber)
	assert.Equal(t, 5000, traffic.VehicleSize)
	assert.Equal(t, "Start", traffic.EventAction)
	assert.Equal(t, 2, traffic.Channel)
	assert.Equal(t, 7, traffic.JunctionID)
}

func TestPlateNumberPreference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		info RawTrafficJunction
		want string
	}{
		{"front plate wins", RawTrafficJunction{FrontPlate: "F1", BackPlate: "B1", FallbackPlate: "T1"}, "F1"},
		{"front unknown falls to back", RawTrafficJunction{FrontPlate: "Unknown", BackPlate: "B1"}, "B1"},
		{"empty front falls to back", RawTrafficJunction{BackPlate: "B1"}, "B1"},
		{"fallback last", RawTrafficJunction{FrontPlate: "Unknown", BackPlate: "", FallbackPlate: "T1"}, "T1"},
		{"nothing available", RawTrafficJunction{}, "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectPlateNumber(&tt.info))
		})
	}
}

func TestParseDirectionCodes(t *testing.T) {
	t.Parallel()

	want := map[byte]Direction{
		0: DirectionLeft,
		1: DirectionRight,
		2: DirectionStraight,
		3: DirectionLeftTurn,
		4: DirectionRightTurn,
		5: DirectionUTurn,
		6: DirectionUnknown,
	}
	for code, dir := range want {
		assert.Equal(t, dir, parseDirection(code))
	}
}

func TestNormalizeVehicleType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Truck", normalizeVehicleType("Heavy TRUCK"))
	assert.Equal(t, "Car", normalizeVehicleType("vehicle"))
	assert.Equal(t, "Pedestrian", normalizeVehicleType("person"))
	assert.Equal(t, "", normalizeVehicleType("Unknown"))
	assert.Equal(t, "Tractor", normalizeVehicleType("Tractor"))
}

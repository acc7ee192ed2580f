// Package decoder turns raw analyzer callback payloads into validated domain
// events. Parsing faults are contained here; the calling device goroutine
// never observes a panic or error from a malformed payload.
package decoder

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/visiongate/visiongate/internal/logging"
)

// Decoder classifies raw callback payloads into typed domain events.
type Decoder struct {
	similarityThreshold int
	maxImageSize        int64

	// Process-lifetime sequence counter, diagnostics only.
	sequence atomic.Uint64

	logger *slog.Logger
}

// New creates a decoder with the given significance threshold and per-image
// size limit.
func New(similarityThreshold int, maxImageSize int64) *Decoder {
	return &Decoder{
		similarityThreshold: similarityThreshold,
		maxImageSize:        maxImageSize,
		logger:              logging.ForService("decoder"),
	}
}

// Sequence returns the number of events decoded so far.
func (d *Decoder) Sequence() uint64 {
	return d.sequence.Load()
}

// Decode dispatches on the event kind and returns the decoded event, or nil
// when the payload produced no event (unknown kind or a parsing fault).
func (d *Decoder) Decode(channel int, kind EventKind, header any, payload []byte) (event Event) {
	// The device runtime owns the calling goroutine; a fault in one event
	// must never propagate past this boundary.
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while decoding event",
				"channel", channel,
				"kind", kind.String(),
				"panic", r,
			)
			event = nil
		}
	}()

	view := NewBufferView(payload, d.maxImageSize)

	switch kind {
	case KindFaceRecognition:
		info, ok := header.(*RawFaceRecognition)
		if !ok {
			d.logger.Warn("face recognition event with unexpected header type",
				"channel", channel, "header", fmt.Sprintf("%T", header))
			return nil
		}
		return d.decodeFaceRecognition(channel, info, view)

	case KindFaceDetection:
		info, ok := header.(*RawFaceDetection)
		if !ok {
			d.logger.Warn("face detection event with unexpected header type",
				"channel", channel, "header", fmt.Sprintf("%T", header))
			return nil
		}
		return d.decodeFaceDetection(channel, info, view)

	case KindTrafficJunction:
		info, ok := header.(*RawTrafficJunction)
		if !ok {
			d.logger.Warn("traffic junction event with unexpected header type",
				"channel", channel, "header", fmt.Sprintf("%T", header))
			return nil
		}
		return d.decodeTrafficJunction(channel, info, view)

	default:
		d.logger.Debug("unhandled event kind", "kind", uint32(kind), "channel", channel)
		return nil
	}
}

func (d *Decoder) decodeFaceRecognition(channel int, info *RawFaceRecognition, view BufferView) Event {
	event := &RecognitionEvent{
		EventID:    uuid.NewString(),
		Type:       TypeRecognition,
		Timestamp:  time.Now(),
		Channel:    channel,
		Sequence:   d.sequence.Add(1),
		Attributes: parseFaceAttributes(info.Face),
	}

	if view.Len() > 0 {
		if info.GlobalScene {
			event.SceneImage = d.extractImage(view, info.GlobalScenePic, "scene")
		}
		event.FaceImage = d.extractImage(view, info.FacePic, "face")
	}

	if best := selectBestCandidate(info.Candidates); best != nil {
		event.Candidate = &Candidate{
			Name:       best.Name,
			ExternalID: best.ExternalID,
			Sex:        parseSex(best.Sex),
			Birthday:   fmt.Sprintf("%04d-%02d-%02d", best.Year, best.Month, best.Day),
			GroupID:    best.GroupID,
			GroupName:  best.GroupName,
			Similarity: best.Similarity,
		}
		event.Similarity = best.Similarity
		if view.Len() > 0 {
			event.CandidateImage = d.extractImage(view, best.FacePic, "candidate")
		}
	}

	event.Significant = event.Candidate != nil && event.Similarity >= d.similarityThreshold
	return event
}

func (d *Decoder) decodeFaceDetection(channel int, info *RawFaceDetection, view BufferView) Event {
	event := &RecognitionEvent{
		EventID:    uuid.NewString(),
		Type:       TypeDetection,
		Timestamp:  time.Now(),
		Channel:    channel,
		Sequence:   d.sequence.Add(1),
		Attributes: parseFaceAttributes(info.Face),
	}

	// Detection events carry a single global scene image spanning the
	// whole payload buffer.
	if view.Len() > 0 {
		event.SceneImage = d.extractImage(view, PicInfo{Offset: 0, Length: uint32(view.Len())}, "scene")
	}

	return event
}

func (d *Decoder) decodeTrafficJunction(channel int, info *RawTrafficJunction, view BufferView) Event {
	timestamp := info.UTC
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	action := "Stop"
	if info.EventAction == 1 {
		action = "Start"
	}

	event := &TrafficEvent{
		EventID:     fmt.Sprintf("%d_%d_%s", info.ChannelID, info.EventID, timestamp.Format("20060102150405")),
		Timestamp:   timestamp,
		Channel:     channel,
		Sequence:    d.sequence.Add(1),
		JunctionID:  info.ChannelID,
		ObjectID:    info.ObjectID,
		VehicleType: parseVehicleType(info),
		Direction:   parseDirection(info.Direction),
		Speed:       info.Speed,
		PlateNumber: selectPlateNumber(info),
		Color:       vehicleColor(info),
		Confidence:  info.Confidence,
		BoundingBox: info.BoundingBox,
		VehicleSize: info.BoundingBox.Area(),
		EventAction: action,
	}

	if view.Len() > 0 {
		if info.SceneImageSet {
			event.SceneImage = d.extractImage(view, info.ScenePic, "scene")
		}
		if info.ObjectPicSet {
			event.VehicleImage = d.extractImage(view, info.ObjectPic, "vehicle")
		}
		if info.PlatePicSet {
			event.PlateImage = d.extractImage(view, info.PlatePic, "plate")
		} else if info.ObjectPicSet {
			// No dedicated plate crop; the object image contains the
			// vehicle with its plate.
			event.PlateImage = event.VehicleImage
		}
	}

	return event
}

// extractImage resolves one image field. A failed bounds check drops the
// field and leaves the rest of the event intact.
func (d *Decoder) extractImage(view BufferView, pic PicInfo, field string) []byte {
	data, err := view.Slice(pic.Offset, pic.Length)
	if err != nil {
		d.logger.Debug("skipping image field",
			"field", field,
			"offset", pic.Offset,
			"length", pic.Length,
			"error", err,
		)
		return nil
	}
	return data
}

// selectBestCandidate returns the candidate with the maximum similarity.
// Ties are broken by original array order, first seen wins.
func selectBestCandidate(candidates []RawCandidate) *RawCandidate {
	var best *RawCandidate
	for i := range candidates {
		if best == nil || candidates[i].Similarity > best.Similarity {
			best = &candidates[i]
		}
	}
	return best
}

// selectPlateNumber prefers the front plate, then the back plate, then the
// traffic-car fallback field. The first non-empty, non-"Unknown" value wins.
func selectPlateNumber(info *RawTrafficJunction) string {
	for _, plate := range []string{info.FrontPlate, info.BackPlate} {
		if plate != "" && plate != "Unknown" {
			return plate
		}
	}
	if info.FallbackPlate != "" {
		return info.FallbackPlate
	}
	return "Unknown"
}

func vehicleColor(info *RawTrafficJunction) string {
	if info.VehicleColor != "" {
		return info.VehicleColor
	}
	return "Unknown"
}

func parseDirection(code byte) Direction {
	switch code {
	case 0:
		return DirectionLeft
	case 1:
		return DirectionRight
	case 2:
		return DirectionStraight
	case 3:
		return DirectionLeftTurn
	case 4:
		return DirectionRightTurn
	case 5:
		return DirectionUTurn
	default:
		return DirectionUnknown
	}
}

// parseVehicleType derives a normalized vehicle type from the object type
// string, falling back to the sub-type and free-text fields.
func parseVehicleType(info *RawTrafficJunction) string {
	if t := normalizeVehicleType(info.ObjectType); t != "" {
		return t
	}
	if info.ObjectSubType != "" {
		return info.ObjectSubType
	}
	if t := normalizeVehicleType(info.ObjectText); t != "" {
		return t
	}
	return "Unknown"
}

func normalizeVehicleType(s string) string {
	if s == "" || s == "Unknown" {
		return ""
	}
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "truck"):
		return "Truck"
	case strings.Contains(lower, "bus"):
		return "Bus"
	case strings.Contains(lower, "motor"):
		return "Motorcycle"
	case strings.Contains(lower, "bicycle") || strings.Contains(lower, "bike"):
		return "Bicycle"
	case strings.Contains(lower, "person") || strings.Contains(lower, "pedestrian"):
		return "Pedestrian"
	case strings.Contains(lower, "vehicle") || strings.Contains(lower, "car"):
		return "Car"
	default:
		return s
	}
}

func parseFaceAttributes(face RawFaceData) FaceAttributes {
	return FaceAttributes{
		Sex:         parseSex(face.Sex),
		Age:         face.Age,
		SkinTone:    parseRace(face.Race),
		EyeState:    parseEye(face.Eye),
		MouthState:  parseMouth(face.Mouth),
		MaskState:   parseMask(face.Mask),
		BeardState:  parseBeard(face.Beard),
		FaceQuality: face.FaceQuality,
	}
}

func parseSex(code byte) string {
	switch code {
	case 1:
		return "Male"
	case 2:
		return "Female"
	default:
		return "Unknown"
	}
}

func parseRace(code byte) string {
	switch code {
	case 1:
		return "Yellow"
	case 2:
		return "Black"
	case 3:
		return "White"
	default:
		return "Unknown"
	}
}

func parseEye(code byte) string {
	switch code {
	case 1:
		return "Close"
	case 2:
		return "Open"
	default:
		return "Unknown"
	}
}

func parseMouth(code byte) string {
	switch code {
	case 1:
		return "Close"
	case 2:
		return "Open"
	default:
		return "Unknown"
	}
}

func parseMask(code byte) string {
	switch code {
	case 1:
		return "No Mask"
	case 2:
		return "Wearing Mask"
	default:
		return "Unknown"
	}
}

func parseBeard(code byte) string {
	switch code {
	case 1:
		return "No Beard"
	case 2:
		return "Beard"
	default:
		return "Unknown"
	}
}

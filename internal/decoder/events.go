// events.go: domain event types produced by the decoder and the raw
// structures handed over by the device runtime.
package decoder

import (
	"time"
)

// EventKind tags the raw callback payload.
type EventKind uint32

const (
	KindUnknown EventKind = iota
	KindFaceRecognition
	KindFaceDetection
	KindTrafficJunction
)

func (k EventKind) String() string {
	switch k {
	case KindFaceRecognition:
		return "FaceRecognition"
	case KindFaceDetection:
		return "FaceDetection"
	case KindTrafficJunction:
		return "TrafficJunction"
	default:
		return "Unknown"
	}
}

// Event is implemented by every decoded domain event.
type Event interface {
	ID() string
	Chan() int
}

// EventType distinguishes recognition from plain detection.
type EventType string

const (
	TypeRecognition EventType = "Recognition"
	TypeDetection   EventType = "Detection"
)

// FaceAttributes carries the parsed per-face attribute set.
type FaceAttributes struct {
	Sex         string `json:"sex"`
	Age         int    `json:"age"`
	SkinTone    string `json:"skinTone"`
	EyeState    string `json:"eyeState"`
	MouthState  string `json:"mouthState"`
	MaskState   string `json:"maskState"`
	BeardState  string `json:"beardState"`
	FaceQuality int    `json:"faceQuality"`
}

// Candidate identifies a matched person from the device-side face database.
type Candidate struct {
	Name       string `json:"name"`
	ExternalID string `json:"externalId"`
	Sex        string `json:"sex"`
	Birthday   string `json:"birthday"`
	GroupID    string `json:"groupId"`
	GroupName  string `json:"groupName"`
	Similarity int    `json:"similarity"`
}

// RecognitionEvent is a decoded face recognition or face detection event.
type RecognitionEvent struct {
	EventID     string         `json:"eventId"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	Channel     int            `json:"channel"`
	Sequence    uint64         `json:"sequence"`
	Attributes  FaceAttributes `json:"attributes"`
	Candidate   *Candidate     `json:"candidate,omitempty"`
	Similarity  int            `json:"similarity"`
	Significant bool           `json:"significant"`

	SceneImage     []byte `json:"sceneImage,omitempty"`
	FaceImage      []byte `json:"faceImage,omitempty"`
	CandidateImage []byte `json:"candidateImage,omitempty"`
}

func (e *RecognitionEvent) ID() string { return e.EventID }
func (e *RecognitionEvent) Chan() int  { return e.Channel }

// Direction enumerates vehicle movement directions.
type Direction string

const (
	DirectionLeft      Direction = "Left"
	DirectionRight     Direction = "Right"
	DirectionStraight  Direction = "Straight"
	DirectionLeftTurn  Direction = "LeftTurn"
	DirectionRightTurn Direction = "RightTurn"
	DirectionUTurn     Direction = "UTurn"
	DirectionUnknown   Direction = "Unknown"
)

// Rect is an object bounding box in frame coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the box area, used as a rough vehicle size indicator.
func (r Rect) Area() int {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// TrafficEvent is a decoded traffic junction observation.
type TrafficEvent struct {
	EventID     string    `json:"eventId"`
	Timestamp   time.Time `json:"timestamp"`
	Channel     int       `json:"channel"`
	Sequence    uint64    `json:"sequence"`
	JunctionID  int       `json:"junctionId"`
	ObjectID    int       `json:"objectId"`
	VehicleType string    `json:"vehicleType"`
	Direction   Direction `json:"direction"`
	Speed       int       `json:"speed"`
	PlateNumber string    `json:"plateNumber"`
	Color       string    `json:"color"`
	Confidence  int       `json:"confidence"`
	BoundingBox Rect      `json:"boundingBox"`
	VehicleSize int       `json:"vehicleSize"`
	EventAction string    `json:"eventAction"`

	SceneImage   []byte `json:"sceneImage,omitempty"`
	VehicleImage []byte `json:"vehicleImage,omitempty"`
	PlateImage   []byte `json:"plateImage,omitempty"`
}

func (e *TrafficEvent) ID() string { return e.EventID }
func (e *TrafficEvent) Chan() int  { return e.Channel }

// Raw device structures. These mirror the wire layout handed to the analyzer
// callback; all offset/length pairs are untrusted and resolved through
// BufferView.

// PicInfo addresses an embedded image inside the callback payload buffer.
type PicInfo struct {
	Offset uint32
	Length uint32
}

// RawFaceData is the per-face attribute block of the event header.
type RawFaceData struct {
	Sex         byte
	Race        byte
	Eye         byte
	Mouth       byte
	Mask        byte
	Beard       byte
	Age         int
	FaceQuality int
}

// RawCandidate is a single face-database match inside a recognition header.
type RawCandidate struct {
	Name       string
	ExternalID string
	Sex        byte
	Year       uint16
	Month      byte
	Day        byte
	GroupID    string
	GroupName  string
	Similarity int
	FacePic    PicInfo
}

// RawFaceRecognition is the FaceRecognition event header.
type RawFaceRecognition struct {
	Face           RawFaceData
	GlobalScene    bool
	GlobalScenePic PicInfo
	FacePic        PicInfo
	Candidates     []RawCandidate
}

// RawFaceDetection is the FaceDetection event header.
type RawFaceDetection struct {
	Face RawFaceData
}

// RawTrafficJunction is the TrafficJunction event header.
type RawTrafficJunction struct {
	EventID       uint32
	UTC           time.Time
	ChannelID     int
	ObjectID      int
	Direction     byte
	Speed         int
	Confidence    int
	ObjectType    string
	ObjectSubType string
	ObjectText    string
	BoundingBox   Rect
	FrontPlate    string
	BackPlate     string
	FallbackPlate string
	VehicleColor  string
	EventAction   byte

	SceneImageSet bool
	ScenePic      PicInfo
	ObjectPicSet  bool
	ObjectPic     PicInfo
	PlatePicSet   bool
	PlatePic      PicInfo
}

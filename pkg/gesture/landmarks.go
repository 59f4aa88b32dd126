package gesture

import "time"

// LandmarkCount is the number of tracked points per hand.
const LandmarkCount = 21

// Landmark roles, indexed as the hand tracker reports them.
const (
	Wrist = iota
	ThumbCMC
	ThumbMCP
	ThumbIP
	ThumbTip
	IndexMCP
	IndexPIP
	IndexDIP
	IndexTip
	MiddleMCP
	MiddlePIP
	MiddleDIP
	MiddleTip
	RingMCP
	RingPIP
	RingDIP
	RingTip
	PinkyMCP
	PinkyPIP
	PinkyDIP
	PinkyTip
)

// Point is a landmark in normalized image space: X grows to the right, Y grows
// downwards, both in [0,1]. Z is relative depth.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Landmarks is the point set for one detected hand.
type Landmarks []Point

// Complete reports whether every landmark role is present.
func (l Landmarks) Complete() bool { return len(l) >= LandmarkCount }

// Frame is everything the hand tracker saw in one video frame. It is only
// valid for the duration of its processing.
type Frame struct {
	Hands []Landmarks
	At    time.Time
}

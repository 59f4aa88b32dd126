package gesture

import (
	"math"
	"strings"
)

// Label is the closed vocabulary of recognised hand shapes.
type Label int

const (
	None Label = iota
	ThumbsUp
	Peace
	Stop
	OK
)

func (l Label) String() string {
	switch l {
	case ThumbsUp:
		return "thumbs_up"
	case Peace:
		return "peace"
	case Stop:
		return "stop"
	case OK:
		return "ok"
	default:
		return "none"
	}
}

// ParseLabel maps a label name such as "thumbs_up" back to its Label.
func ParseLabel(name string) (Label, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	for _, l := range []Label{None, ThumbsUp, Peace, Stop, OK} {
		if l.String() == key {
			return l, true
		}
	}
	return None, false
}

// Phrase is the confirmation text for a label.
func (l Label) Phrase() string {
	switch l {
	case ThumbsUp:
		return "👍 Pouce levé"
	case Peace:
		return "✌️ Victoire"
	case Stop:
		return "✋ Stop"
	case OK:
		return "👌 OK"
	default:
		return ""
	}
}

// DefaultTouchTolerance is the per-axis distance under which thumb and index
// tips count as touching.
const DefaultTouchTolerance = 0.05

// Classifier maps a hand's landmarks to a Label. It is stateless.
type Classifier struct {
	TouchTolerance float64
}

// NewClassifier returns a classifier; a non-positive tolerance selects the default.
func NewClassifier(tolerance float64) Classifier {
	if tolerance <= 0 {
		tolerance = DefaultTouchTolerance
	}
	return Classifier{TouchTolerance: tolerance}
}

// Classify uses the default tolerance.
func Classify(l Landmarks) Label {
	return NewClassifier(DefaultTouchTolerance).Classify(l)
}

// Classify evaluates the rules in priority order; the first match wins.
func (c Classifier) Classify(l Landmarks) Label {
	if !l.Complete() {
		return None
	}
	tol := c.TouchTolerance
	if tol <= 0 {
		tol = DefaultTouchTolerance
	}

	index := extended(l, IndexTip, IndexDIP)
	middle := extended(l, MiddleTip, MiddleDIP)
	ring := extended(l, RingTip, RingDIP)
	pinky := extended(l, PinkyTip, PinkyDIP)

	switch {
	case extended(l, ThumbTip, ThumbIP) &&
		curled(l, IndexTip, IndexDIP) && curled(l, MiddleTip, MiddleDIP) &&
		curled(l, RingTip, RingDIP) && curled(l, PinkyTip, PinkyDIP):
		return ThumbsUp
	case index && middle && curled(l, RingTip, RingDIP) && curled(l, PinkyTip, PinkyDIP):
		return Peace
	case touching(l[ThumbTip], l[IndexTip], tol) && middle && ring && pinky:
		return OK
	case index && middle && ring && pinky:
		return Stop
	}
	return None
}

// extended: the tip sits above the joint below it.
func extended(l Landmarks, tip, joint int) bool { return l[tip].Y < l[joint].Y }

// curled: the tip sits below the joint below it. A tip level with its joint
// is neither extended nor curled.
func curled(l Landmarks, tip, joint int) bool { return l[tip].Y > l[joint].Y }

func touching(a, b Point, tol float64) bool {
	return math.Abs(a.X-b.X) < tol && math.Abs(a.Y-b.Y) < tol
}

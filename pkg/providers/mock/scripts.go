package mock

import (
	"strings"

	"github.com/harunnryd/mimo/pkg/gesture"
	"github.com/harunnryd/mimo/pkg/speech"
)

// Hand synthesises landmarks that classify as label. None yields a closed fist.
func Hand(label gesture.Label) gesture.Landmarks {
	var thumb, index, middle, ring, pinky bool
	switch label {
	case gesture.ThumbsUp:
		thumb = true
	case gesture.Peace:
		index, middle = true, true
	case gesture.Stop:
		index, middle, ring, pinky = true, true, true, true
	case gesture.OK:
		middle, ring, pinky = true, true, true
	}

	l := make(gesture.Landmarks, gesture.LandmarkCount)
	for i := range l {
		l[i] = gesture.Point{X: 0.5, Y: 0.6}
	}
	finger := func(tip, joint int, x float64, up bool) {
		l[joint] = gesture.Point{X: x, Y: 0.5}
		l[tip] = gesture.Point{X: x, Y: 0.7}
		if up {
			l[tip].Y = 0.3
		}
	}
	finger(gesture.ThumbTip, gesture.ThumbIP, 0.25, thumb)
	finger(gesture.IndexTip, gesture.IndexDIP, 0.4, index)
	finger(gesture.MiddleTip, gesture.MiddleDIP, 0.5, middle)
	finger(gesture.RingTip, gesture.RingDIP, 0.6, ring)
	finger(gesture.PinkyTip, gesture.PinkyDIP, 0.7, pinky)
	if label == gesture.OK {
		l[gesture.ThumbTip] = l[gesture.IndexTip]
	}
	return l
}

// Frames builds one single-hand frame per label; None becomes an empty frame.
func Frames(labels ...gesture.Label) []gesture.Frame {
	out := make([]gesture.Frame, 0, len(labels))
	for _, label := range labels {
		if label == gesture.None {
			out = append(out, gesture.Frame{})
			continue
		}
		out = append(out, gesture.Frame{Hands: []gesture.Landmarks{Hand(label)}})
	}
	return out
}

// Utterance builds the fragments a recogniser would report for text: one
// interim fragment per growing word prefix, then the final.
func Utterance(index int, text string) []speech.Fragment {
	words := strings.Fields(text)
	out := make([]speech.Fragment, 0, len(words)+1)
	for i := 1; i < len(words); i++ {
		out = append(out, speech.Interim(index, strings.Join(words[:i], " ")))
	}
	return append(out, speech.Final(index, text))
}

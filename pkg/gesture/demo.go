package gesture

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/harunnryd/mimo/pkg/events"
)

// DefaultDemoClear is how long a demo confirmation stays on screen.
const DefaultDemoClear = 2 * time.Second

// DemoGesture is one entry of the demo menu.
type DemoGesture struct {
	Name        string
	Emoji       string
	Description string
}

// Text is the event text sent to the application.
func (g DemoGesture) Text() string { return g.Emoji + " " + g.Description }

// Label is the confirmation shown while the demo gesture is displayed.
func (g DemoGesture) Label() string { return g.Emoji + " " + g.Name }

// DemoMenu is the fixed set of gestures available without a camera.
var DemoMenu = []DemoGesture{
	{Name: "Pouce levé", Emoji: "👍", Description: "Pouce levé - Super!"},
	{Name: "Victoire", Emoji: "✌️", Description: "Victoire - Bravo!"},
	{Name: "Stop", Emoji: "✋", Description: "Stop - D'accord!"},
	{Name: "OK", Emoji: "👌", Description: "OK - Parfait!"},
	{Name: "Bonjour", Emoji: "👋", Description: "Bonjour - Salut!"},
	{Name: "Cœur", Emoji: "❤️", Description: "Cœur - Je t'aime!"},
}

// DemoPad synthesises gesture events without the camera or the classifier.
// It works in every camera state.
type DemoPad struct {
	sink       events.Sink
	confirm    *Confirmation
	clearAfter time.Duration
}

func NewDemoPad(sink events.Sink, confirm *Confirmation, clearAfter time.Duration) *DemoPad {
	if sink == nil {
		sink = events.Discard
	}
	if confirm == nil {
		confirm = NewConfirmation(nil, nil)
	}
	if clearAfter <= 0 {
		clearAfter = DefaultDemoClear
	}
	return &DemoPad{sink: sink, confirm: confirm, clearAfter: clearAfter}
}

func (d *DemoPad) Menu() []DemoGesture {
	out := make([]DemoGesture, len(DemoMenu))
	copy(out, DemoMenu)
	return out
}

// Trigger emits the event for the named gesture. The name is matched without
// regard to case or accents; the emoji is accepted as well.
func (d *DemoPad) Trigger(name string) (events.DomainEvent, error) {
	g, ok := LookupDemo(name)
	if !ok {
		return events.DomainEvent{}, fmt.Errorf("unknown demo gesture %q", name)
	}
	ev := events.New(g.Text(), events.ModalityGesture)
	d.confirm.Flash(g.Label(), d.clearAfter)
	d.sink.Emit(ev)
	return ev, nil
}

// LookupDemo finds a demo menu entry by name or emoji.
func LookupDemo(name string) (DemoGesture, bool) {
	key := fold(name)
	for _, g := range DemoMenu {
		if fold(g.Name) == key || g.Emoji == strings.TrimSpace(name) {
			return g, true
		}
	}
	return DemoGesture{}, false
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		out = s
	}
	return strings.ReplaceAll(strings.ToLower(out), "œ", "oe")
}

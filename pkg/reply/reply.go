// Package reply answers domain events with canned replies.
package reply

import (
	"strings"

	"github.com/harunnryd/mimo/pkg/events"
)

// Generator turns event text into a reply. Implementations must always
// return a reply.
type Generator interface {
	Reply(text string) string
}

// Rule answers Reply when the lowercased input contains any of Keywords.
type Rule struct {
	Keywords []string
	Reply    string
}

// DefaultFallback answers anything no rule matches.
const DefaultFallback = "C'est intéressant! Raconte-moi en plus! 😊 Tu peux aussi essayer de me parler avec ta voix ou tes gestes!"

// DefaultRules are checked in order; the first match wins.
var DefaultRules = []Rule{
	{Keywords: []string{"bonjour", "salut", "hello"}, Reply: "Bonjour! Comment puis-je t'aider aujourd'hui? 😊"},
	{Keywords: []string{"temps", "météo"}, Reply: "Il fait beau aujourd'hui! Le soleil brille! ☀️ C'est parfait pour jouer dehors!"},
	{Keywords: []string{"couleur", "rouge", "bleu"}, Reply: "Les couleurs sont magnifiques! Rouge comme une pomme 🍎, bleu comme le ciel 🌤️, jaune comme le soleil ☀️!"},
	{Keywords: []string{"compter", "nombre"}, Reply: "Comptons ensemble! 1, 2, 3, 4, 5! 🎵 Tu es super!"},
	{Keywords: []string{"animal", "chat", "chien"}, Reply: "J'adore les animaux! Les chats font \"miaou\" 🐱 et les chiens font \"ouaf\" 🐕!"},
	{Keywords: []string{"merci"}, Reply: "De rien! Je suis toujours là pour t'aider! 💙"},
	{Keywords: []string{"pouce levé", "👍"}, Reply: "Super! Continue comme ça! Tu es génial! 🌟"},
	{Keywords: []string{"victoire", "✌️"}, Reply: "Victoire! Bravo champion! 🏆"},
	{Keywords: []string{"stop", "✋"}, Reply: "D'accord, je m'arrête! Dis-moi quand tu es prêt! 🤚"},
	{Keywords: []string{"apprendre", "éducation"}, Reply: "J'adore apprendre! On peut apprendre les couleurs, les nombres, les animaux... Que veux-tu apprendre? 📚"},
}

// Keyword is a rule-table Generator.
type Keyword struct {
	rules    []Rule
	fallback string
}

// NewKeyword builds a generator; nil rules or an empty fallback select the
// defaults.
func NewKeyword(rules []Rule, fallback string) *Keyword {
	if rules == nil {
		rules = DefaultRules
	}
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultFallback
	}
	return &Keyword{rules: rules, fallback: fallback}
}

func (k *Keyword) Reply(text string) string {
	lower := strings.ToLower(text)
	for _, r := range k.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r.Reply
			}
		}
	}
	return k.fallback
}

// Responder answers every event it receives.
type Responder struct {
	gen     Generator
	onReply func(ev events.DomainEvent, reply string)
}

// NewResponder calls onReply with the reply to each event.
func NewResponder(gen Generator, onReply func(ev events.DomainEvent, reply string)) *Responder {
	if gen == nil {
		gen = NewKeyword(nil, "")
	}
	return &Responder{gen: gen, onReply: onReply}
}

func (r *Responder) Emit(ev events.DomainEvent) {
	if r.onReply != nil {
		r.onReply(ev, r.gen.Reply(ev.Text()))
	}
}

var _ events.Sink = (*Responder)(nil)

package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\+?\d[\d\s.\-]{7,}\d\b`)
	ibanRe  = regexp.MustCompile(`\b[A-Z]{2}\d{2}(?:\s?[A-Z0-9]{4}){3,7}(?:\s?[A-Z0-9]{1,3})?\b`)
)

// Redactor masks personal data in transcripts before they are logged or
// written to timelines. A nil Redactor passes text through.
type Redactor struct {
	enabled atomic.Bool
}

// New returns a redactor, active when enabled is true.
func New(enabled bool) *Redactor {
	r := &Redactor{}
	r.enabled.Store(enabled)
	return r
}

// SetEnabled toggles PII redaction.
func (r *Redactor) SetEnabled(v bool) {
	r.enabled.Store(v)
}

// Enabled returns true when redaction is active.
func (r *Redactor) Enabled() bool {
	return r != nil && r.enabled.Load()
}

// Text redacts IBANs, emails and phone numbers when enabled.
func (r *Redactor) Text(in string) string {
	if !r.Enabled() || strings.TrimSpace(in) == "" {
		return in
	}
	out := ibanRe.ReplaceAllString(in, "[REDACTED_IBAN]")
	out = emailRe.ReplaceAllString(out, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

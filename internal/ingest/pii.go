package ingest

import (
	"regexp"
	"sort"
	"strings"
)

// Redactor masks personally identifying information in text before anything
// persists. Structured patterns run before the broad ones so URLs keep
// their token even when they contain an address-like path.
type Redactor struct {
	knownNames *regexp.Regexp
}

var (
	emailPattern = regexp.MustCompile(`[^<>\s()]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`(\+36|06)[\s-]?\d{1,2}[\s-]?\d{3}[\s-]?\d{3,4}`)
	idPattern    = regexp.MustCompile(`\b\d{6}[A-Z]{2}\d{2}[A-Z]{2}\d{3}\b`)
	cardPattern  = regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)
	ipPattern    = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	urlPattern   = regexp.MustCompile(`https?://\S+`)
)

// NewRedactor builds a redactor that also masks the given roster names and
// their individual name tokens of three or more characters.
func NewRedactor(roster Roster) *Redactor {
	var alternatives []string
	for _, name := range roster.Names() {
		alternatives = append(alternatives, regexp.QuoteMeta(name))
		for _, token := range strings.Fields(name) {
			if len(token) >= 3 {
				alternatives = append(alternatives, regexp.QuoteMeta(token))
			}
		}
	}
	r := &Redactor{}
	if len(alternatives) > 0 {
		// Longest first so full names win over single tokens.
		sort.Slice(alternatives, func(i, j int) bool {
			return len(alternatives[i]) > len(alternatives[j])
		})
		seen := make(map[string]bool, len(alternatives))
		uniq := alternatives[:0]
		for _, a := range alternatives {
			if !seen[a] {
				seen[a] = true
				uniq = append(uniq, a)
			}
		}
		r.knownNames = regexp.MustCompile(strings.Join(uniq, "|"))
	}
	return r
}

// Redact replaces PII occurrences with their placeholder tokens.
func (r *Redactor) Redact(text string) string {
	if text == "" {
		return text
	}
	out := urlPattern.ReplaceAllString(text, "[URL]")
	out = emailPattern.ReplaceAllString(out, "[EMAIL]")
	out = idPattern.ReplaceAllString(out, "[ID]")
	out = cardPattern.ReplaceAllString(out, "[CARD]")
	out = ipPattern.ReplaceAllString(out, "[IP]")
	out = phonePattern.ReplaceAllString(out, "[PHONE]")
	if r.knownNames != nil {
		out = r.knownNames.ReplaceAllString(out, "[NAME]")
	}
	return out
}

// RedactThread rewrites a thread in place: bodies and subjects are masked,
// correspondent identities collapse to their roster tokens.
func (r *Redactor) RedactThread(t *Thread, roster Roster) {
	for i := range t.Messages {
		msg := &t.Messages[i]
		msg.Body = r.Redact(msg.Body)
		msg.Subject = r.Redact(msg.Subject)
		msg.From = redactPerson(msg.From, roster)
		for j := range msg.To {
			msg.To[j] = redactPerson(msg.To[j], roster)
		}
		for j := range msg.Cc {
			msg.Cc[j] = redactPerson(msg.Cc[j], roster)
		}
	}
	t.Subject = r.Redact(t.Subject)
}

func redactPerson(p Person, roster Roster) Person {
	return Person{
		Name: roster.Token(p.Email),
		Role: p.Role,
	}
}

package ingest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Export date layout used by the communication dumps.
const dateLayout = "2006.01.02 15:04"

var (
	// From lines appear in three shapes: "Name (addr)", "Name <addr>",
	// "Name addr". Groups pair up name/address per alternative.
	fromPattern = regexp.MustCompile(
		`From:\s*(.+?)\s*\(([^)]+)\)` +
			`|From:\s*(.+?)\s*<([^>]+)>` +
			`|From:\s*(.+?)\s+(\S+@\S+)`)

	headerPattern = map[string]*regexp.Regexp{
		"To":      regexp.MustCompile(`(?m)^To:\s*(.+)$`),
		"Cc":      regexp.MustCompile(`(?m)^Cc:\s*(.+)$`),
		"Date":    regexp.MustCompile(`(?m)^Date:\s*(.+)$`),
		"Subject": regexp.MustCompile(`(?m)^Subject:\s*(.+)$`),
	}

	recipientEmail = regexp.MustCompile(`([^<>\s(]+@[^\s>)]+)`)
	replyPrefix    = regexp.MustCompile(`(?i)^(RE:|FW:|FWD:)\s*`)
	slugInvalid    = regexp.MustCompile(`[^a-z0-9]+`)
)

// ParseThread parses one plain-text export into an ordered thread. Messages
// that cannot be parsed are skipped; an export with no parseable message is
// an error.
func ParseThread(content string, roster Roster) (*Thread, error) {
	var messages []Message
	for _, raw := range splitMessages(content) {
		msg, err := parseMessage(raw, roster)
		if err != nil {
			continue
		}
		messages = append(messages, *msg)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("no parseable messages in export")
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Date.Before(messages[j].Date)
	})

	canonical := messages[0].CanonicalSubject
	t := &Thread{
		ID:               fmt.Sprintf("%s_%d", Slug(canonical), len(messages)),
		Subject:          messages[0].Subject,
		CanonicalSubject: canonical,
		Messages:         messages,
	}
	return t, nil
}

// splitMessages cuts a multi-message export on "From:" line boundaries.
func splitMessages(content string) []string {
	var (
		blocks  []string
		current []string
	)
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "From:") {
			if len(current) > 0 {
				blocks = append(blocks, strings.Join(current, "\n"))
			}
			current = []string{line}
		} else if len(current) > 0 {
			current = append(current, line)
		}
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}

func parseMessage(raw string, roster Roster) (*Message, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty message")
	}

	m := fromPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, fmt.Errorf("no From line")
	}
	var name, email string
	switch {
	case m[2] != "":
		name, email = m[1], m[2]
	case m[4] != "":
		name, email = m[3], m[4]
	default:
		name, email = m[5], m[6]
	}
	from := roster.Resolve(strings.TrimSpace(name), strings.TrimSpace(email))

	subject := headerValue(raw, "Subject")
	date, _ := time.Parse(dateLayout, headerValue(raw, "Date"))

	msg := &Message{
		From:             from,
		To:               parseRecipients(headerValue(raw, "To"), roster),
		Cc:               parseRecipients(headerValue(raw, "Cc"), roster),
		Date:             date,
		Subject:          subject,
		CanonicalSubject: CanonicalSubject(subject),
		Body:             messageBody(raw),
	}
	return msg, nil
}

func headerValue(raw, key string) string {
	if m := headerPattern[key].FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// messageBody returns everything after the first blank line.
func messageBody(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		if i > 0 && strings.TrimSpace(line) == "" {
			return strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		}
	}
	return ""
}

func parseRecipients(list string, roster Roster) []Person {
	if list == "" {
		return nil
	}
	var out []Person
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		email := ""
		if m := recipientEmail.FindStringSubmatch(part); m != nil {
			email = m[1]
		}
		name := strings.Trim(strings.TrimSpace(strings.ReplaceAll(part, email, "")), "<>() ")
		out = append(out, roster.Resolve(name, email))
	}
	return out
}

// CanonicalSubject strips reply and forward prefixes until none remain and
// lowercases the rest, so "RE: FW: Budget" and "budget" thread together.
func CanonicalSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		stripped := replyPrefix.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = strings.TrimSpace(stripped)
	}
	return strings.ToLower(s)
}

// Slug reduces a canonical subject to an identifier-safe form.
func Slug(s string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(s), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "thread"
	}
	return slug
}

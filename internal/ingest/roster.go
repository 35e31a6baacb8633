package ingest

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
)

// Roster maps correspondent emails to roster entries. Entry order follows
// the roster file, which keeps the redaction tokens ([P01], [P02], ...)
// stable across runs.
type Roster struct {
	byEmail map[string]rosterEntry
	order   []string
}

type rosterEntry struct {
	person Person
	token  string // redaction token, e.g. "[P03]"
}

var rosterLine = regexp.MustCompile(`^(.+?):\s*(.+?)\s*\((.+?)\)\s*$`)

// ParseRoster parses a roster file of "Role: Name (email)" lines. Header
// lines such as "Characters:" and blanks are skipped.
func ParseRoster(content string) Roster {
	r := Roster{byEmail: make(map[string]rosterEntry)}
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "Characters:") {
			continue
		}
		m := rosterLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		role, name, email := strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), strings.TrimSpace(m[3])
		if _, dup := r.byEmail[email]; dup {
			continue
		}
		r.byEmail[email] = rosterEntry{
			person: Person{Name: name, Email: email, Role: role},
			token:  fmt.Sprintf("[P%02d]", len(r.order)+1),
		}
		r.order = append(r.order, email)
	}
	return r
}

// Resolve fills in roster data for an address. Unknown addresses keep the
// name from the message itself and get role "Unknown".
func (r Roster) Resolve(name, email string) Person {
	if entry, ok := r.byEmail[email]; ok {
		return entry.person
	}
	if name == "" {
		name = "Unknown"
	}
	return Person{Name: name, Email: email, Role: "Unknown"}
}

// Token returns the stable redaction token for an address, or "[PERSON]"
// for people outside the roster.
func (r Roster) Token(email string) string {
	if entry, ok := r.byEmail[email]; ok {
		return entry.token
	}
	return "[PERSON]"
}

// Names returns every roster name for redaction pattern building.
func (r Roster) Names() []string {
	names := make([]string, 0, len(r.order))
	for _, email := range r.order {
		names = append(names, r.byEmail[email].person.Name)
	}
	return names
}

// Len reports the roster size.
func (r Roster) Len() int { return len(r.order) }

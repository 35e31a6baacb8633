package score

import (
	"sort"
	"strings"
)

// RoleNormalizer maps free-form owner hints ("Senior Developer", "Proj Mgr")
// onto the canonical keys of the role weight table.
type RoleNormalizer struct {
	canonical map[string]bool
	aliases   map[string]string
	scan      []scanEntry
}

type scanEntry struct {
	needle string
	target string
}

// Alias table for hints that never match a canonical key directly. Keys are
// lowercase; longer phrases are matched before shorter ones by the contains
// scan below.
var builtinAliases = map[string]string{
	"developer":         "dev",
	"engineer":          "dev",
	"software engineer": "dev",
	"qa":                "dev",
	"project manager":   "pm",
	"product manager":   "pm",
	"proj mgr":          "pm",
	"manager":           "pm",
	"business analyst":  "ba",
	"analyst":           "ba",
	"program director":  "director",
	"managing director": "director",
}

// NewRoleNormalizer builds a normalizer for the given weight table keys.
func NewRoleNormalizer(roleWeights map[string]float64) *RoleNormalizer {
	n := &RoleNormalizer{
		canonical: make(map[string]bool, len(roleWeights)),
		aliases:   make(map[string]string, len(builtinAliases)),
	}
	for k := range roleWeights {
		n.canonical[strings.ToLower(k)] = true
	}
	for alias, target := range builtinAliases {
		if n.canonical[target] {
			n.aliases[alias] = target
		}
	}
	for key := range n.canonical {
		n.scan = append(n.scan, scanEntry{needle: key, target: key})
	}
	for alias, target := range n.aliases {
		n.scan = append(n.scan, scanEntry{needle: alias, target: target})
	}
	// Longest needle first so "project manager" beats "manager"; length ties
	// break lexically to keep phrase resolution stable across runs.
	sort.Slice(n.scan, func(i, j int) bool {
		if len(n.scan[i].needle) != len(n.scan[j].needle) {
			return len(n.scan[i].needle) > len(n.scan[j].needle)
		}
		return n.scan[i].needle < n.scan[j].needle
	})
	return n
}

// Normalize resolves a hint to a canonical role key. The second return is
// false when nothing matches; callers then apply the lowest tier.
func (n *RoleNormalizer) Normalize(hint string) (string, bool) {
	h := strings.ToLower(strings.TrimSpace(hint))
	for _, prefix := range []string{"senior ", "lead ", "junior ", "acting "} {
		h = strings.TrimPrefix(h, prefix)
	}
	if h == "" {
		return "", false
	}
	if n.canonical[h] {
		return h, true
	}
	if target, ok := n.aliases[h]; ok {
		return target, true
	}
	// Phrase hints like "the project manager for Alpha": the first
	// word-bounded needle in the scan order wins.
	for _, e := range n.scan {
		if containsWord(h, e.needle) {
			return e.target, true
		}
	}
	return "", false
}

// containsWord reports whether needle appears in s on word boundaries, so
// "ba" does not match inside "basketball".
func containsWord(s, needle string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		leftOK := start == 0 || !isWordChar(s[start-1])
		rightOK := end == len(s) || !isWordChar(s[end])
		if leftOK && rightOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

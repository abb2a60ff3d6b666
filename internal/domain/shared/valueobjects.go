package shared

import (
	"sort"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Student ID
// ═══════════════════════════════════════════════════════════════════════════

// StudentID represents the platform-wide identifier of a student.
type StudentID string

// IsValid checks if the student ID is non-empty and has no surrounding whitespace.
func (s StudentID) IsValid() bool {
	return s != "" && strings.TrimSpace(string(s)) == string(s)
}

// String returns the string representation.
func (s StudentID) String() string {
	return string(s)
}

// NewStudentID creates a new StudentID with validation.
func NewStudentID(id string) (StudentID, error) {
	sid := StudentID(id)
	if !sid.IsValid() {
		return "", ErrInvalidStudentID
	}
	return sid, nil
}

// PairKey returns an order-independent key for two student IDs.
// PairKey(a, b) == PairKey(b, a).
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// ═══════════════════════════════════════════════════════════════════════════
// Tag Set
// ═══════════════════════════════════════════════════════════════════════════

// TagSet is a case-insensitive set of free-text labels (topics, interests, languages).
// Labels are trimmed and lowercased; blank labels are dropped.
type TagSet map[string]struct{}

// NewTagSet builds a TagSet from raw labels.
func NewTagSet(labels []string) TagSet {
	set := make(TagSet, len(labels))
	for _, l := range labels {
		key := strings.ToLower(strings.TrimSpace(l))
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	return set
}

// Len returns the number of distinct labels.
func (s TagSet) Len() int {
	return len(s)
}

// Contains reports whether the label is in the set, ignoring case.
func (s TagSet) Contains(label string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(label))]
	return ok
}

// IntersectionCount returns how many labels both sets share.
func (s TagSet) IntersectionCount(other TagSet) int {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	n := 0
	for k := range small {
		if _, ok := large[k]; ok {
			n++
		}
	}
	return n
}

// Intersection returns the shared labels in sorted order.
func (s TagSet) Intersection(other TagSet) []string {
	out := make([]string, 0)
	for k := range s {
		if _, ok := other[k]; ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

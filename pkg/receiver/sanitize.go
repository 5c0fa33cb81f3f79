package receiver

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
)

// SanitizePattern is one redaction rule: a compiled pattern, its
// replacement, and a priority controlling apply order. Higher-priority
// patterns run first; equal-priority patterns keep insertion order.
type SanitizePattern struct {
	Pattern     *regexp.Regexp
	Replacement string
	Priority    int
	Name        string
}

// Sanitizer redacts sensitive-looking values out of a rendered node
// tree's props before export, targeting exportSnapshot.Nodes[i].Props
// since props are exactly where a Guest-supplied secret (an auth token
// passed as a prop value) could otherwise leak into a debug export.
//
// Thread Safety:
//
//	Safe for concurrent use after construction; patterns must not be
//	mutated concurrently with a Sanitize call.
type Sanitizer struct {
	patterns []SanitizePattern
}

// NewSanitizer returns a Sanitizer with the default patterns: password,
// token/bearer, api key, and secret/private-key, each case-insensitive
// and redacting only the value half of a "key: value" pair.
func NewSanitizer() *Sanitizer {
	s := &Sanitizer{patterns: make([]SanitizePattern, 0, 4)}
	s.AddPattern(`(?i)(password|passwd|pwd)(["'\s:=]+)([^\s"']+)`, "${1}${2}[REDACTED]")
	s.AddPattern(`(?i)(token|bearer)(["'\s:=]+)([^\s"']+)`, "${1}${2}[REDACTED]")
	s.AddPattern(`(?i)(api[_-]?key|apikey)(["'\s:=]+)([^\s"']+)`, "${1}${2}[REDACTED]")
	s.AddPattern(`(?i)(secret|private[_-]?key)(["'\s:=]+)([^\s"']+)`, "${1}${2}[REDACTED]")
	return s
}

// AddPattern adds a pattern with default priority 0. Panics if pattern
// does not compile: a bad pattern is a construction-time programmer
// error, not a runtime condition to recover from.
func (s *Sanitizer) AddPattern(pattern, replacement string) {
	re := regexp.MustCompile(pattern)
	s.patterns = append(s.patterns, SanitizePattern{
		Pattern:     re,
		Replacement: replacement,
		Priority:    0,
		Name:        fmt.Sprintf("pattern_%d", len(s.patterns)),
	})
}

// AddPatternWithPriority adds a pattern with explicit priority and
// name, returning a compile error instead of panicking.
func (s *Sanitizer) AddPatternWithPriority(pattern, replacement string, priority int, name string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("receiver: invalid sanitize pattern: %w", err)
	}
	if name == "" {
		name = fmt.Sprintf("pattern_%d", len(s.patterns))
	}
	s.patterns = append(s.patterns, SanitizePattern{Pattern: re, Replacement: replacement, Priority: priority, Name: name})
	return nil
}

func (s *Sanitizer) sortPatterns() {
	sort.SliceStable(s.patterns, func(i, j int) bool {
		return s.patterns[i].Priority > s.patterns[j].Priority
	})
}

// SanitizeValue recursively redacts val, applying every pattern to
// every string it finds anywhere in a map, slice, or struct. Non-string
// leaves pass through unchanged.
func (s *Sanitizer) SanitizeValue(val any) any {
	if val == nil {
		return nil
	}
	s.sortPatterns()
	return s.sanitizeValue(reflect.ValueOf(val))
}

func (s *Sanitizer) sanitizeValue(v reflect.Value) any {
	switch v.Kind() {
	case reflect.String:
		str := v.String()
		for _, p := range s.patterns {
			str = p.Pattern.ReplaceAllString(str, p.Replacement)
		}
		return str

	case reflect.Map:
		result := reflect.MakeMapWithSize(v.Type(), v.Len())
		for _, key := range v.MapKeys() {
			sanitized := s.sanitizeValue(v.MapIndex(key))
			result.SetMapIndex(key, reflect.ValueOf(sanitized))
		}
		return result.Interface()

	case reflect.Slice, reflect.Array:
		result := reflect.MakeSlice(reflect.SliceOf(v.Type().Elem()), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			sanitized := s.sanitizeValue(v.Index(i))
			result.Index(i).Set(reflect.ValueOf(sanitized))
		}
		return result.Interface()

	case reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		sanitized := s.sanitizeValue(v.Elem())
		result := reflect.New(v.Elem().Type())
		result.Elem().Set(reflect.ValueOf(sanitized))
		return result.Interface()

	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return s.sanitizeValue(v.Elem())

	default:
		if !v.IsValid() {
			return nil
		}
		return v.Interface()
	}
}

// SanitizeProps returns a redacted copy of props, leaving the original
// untouched. Function-valued props (callback proxies) pass through
// unchanged: the default type switch in sanitizeValue falls to its
// default case for reflect.Func, returning the value as-is since a
// callable has no string content to redact.
func (s *Sanitizer) SanitizeProps(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	sanitized := s.SanitizeValue(props)
	out, _ := sanitized.(map[string]any)
	return out
}

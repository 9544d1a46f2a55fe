package patterns

import "strings"

// matchGlob matches an event type dotted string against a glob. Custom,
// user-supplied globs are restricted to exact, "prefix*", "*suffix", or a
// single middle "prefix*suffix" — enforced for callers by ValidateGlob.
// The canonical built-in table itself uses two-wildcard globs
// ("system*.*.degraded", "system*.unexpected.*"), so the matching engine
// supports any number of segments split on '*' in order, the way
// filepath.Match treats repeated wildcards; ValidateGlob remains the
// gate applied to anything added through configuration or learning mode.
func matchGlob(glob, eventType string) bool {
	if !strings.Contains(glob, "*") {
		return glob == eventType
	}
	segments := strings.Split(glob, "*")

	rest := eventType
	if !strings.HasPrefix(rest, segments[0]) {
		return false
	}
	rest = rest[len(segments[0]):]

	last := len(segments) - 1
	if !strings.HasSuffix(rest, segments[last]) {
		return false
	}
	if last > 0 {
		rest = rest[:len(rest)-len(segments[last])]
	}

	for _, segment := range segments[1:last] {
		if segment == "" {
			continue
		}
		idx := strings.Index(rest, segment)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(segment):]
	}
	return true
}

// ValidateGlob reports whether glob conforms to the restricted
// single-wildcard grammar applied to custom and learned pattern specs.
func ValidateGlob(glob string) bool {
	return strings.Count(glob, "*") <= 1
}

// MatchGlob exports matchGlob for callers outside this package that
// need the same restricted wildcard grammar against event types —
// the Coordinator's block_patterns rule, in particular.
func MatchGlob(glob, eventType string) bool {
	return matchGlob(glob, eventType)
}

// matchAny reports whether eventType matches any glob in globs.
func matchAny(globs []string, eventType string) bool {
	for _, glob := range globs {
		if matchGlob(glob, eventType) {
			return true
		}
	}
	return false
}

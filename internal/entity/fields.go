// Package entity models records fetched from the remote platform.
//
// Remote entities carry ad-hoc, string-keyed field sets that vary by entity
// type and are not known at compile time. Fields is therefore a dynamic map
// with typed accessors rather than a fixed struct. Accessors have explicit
// default-on-missing semantics: a missing or mistyped field yields the zero
// value (or the caller's default), matching how reconciliation scripts read
// platform data.
package entity

// Fields is the dynamic field map of one remote entity.
//
// Values are the shapes encoding/json produces for untyped documents:
// float64, string, bool, nil, []any and map[string]any. The map is treated
// as read-only once fetched within a run.
type Fields map[string]any

// ID returns the entity's unique id, or "" if absent.
// The platform stores it under "_id".
func (f Fields) ID() string {
	return f.String("_id")
}

// Number returns the named field as a float64.
// Missing, null, or non-numeric fields yield 0.
func (f Fields) Number(key string) float64 {
	switch v := f[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// NumberOr returns the named field as a float64, or def when the field is
// missing, null, or not numeric.
func (f Fields) NumberOr(key string, def float64) float64 {
	switch v := f[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// String returns the named field as a string, or "" if absent or mistyped.
func (f Fields) String(key string) string {
	if s, ok := f[key].(string); ok {
		return s
	}
	return ""
}

// Bool reports whether the named field is truthy.
//
// The platform is inconsistent about boolean encoding: toggles arrive either
// as JSON booleans or as the strings "Yes"/"true". Both forms count as true.
func (f Fields) Bool(key string) bool {
	switch v := f[key].(type) {
	case bool:
		return v
	case string:
		return v == "Yes" || v == "yes" || v == "true"
	default:
		return false
	}
}

// List returns the named field as a slice, or nil if absent or mistyped.
func (f Fields) List(key string) []any {
	if l, ok := f[key].([]any); ok {
		return l
	}
	return nil
}

// StringList returns the named field as a slice of strings.
// Non-string elements are skipped.
func (f Fields) StringList(key string) []string {
	raw := f.List(key)
	if raw == nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Map returns the named field as a nested field map, or nil if absent.
func (f Fields) Map(key string) Fields {
	if m, ok := f[key].(map[string]any); ok {
		return Fields(m)
	}
	return nil
}

// Has reports whether the field is present (even if null).
func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

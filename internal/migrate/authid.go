package migrate

// authIDOverrides maps legacy identity keys to the keys those accounts use
// in the current identity provider. Keys are matched exactly.
var authIDOverrides = map[string]string{}

// AuthIDTransform rewrites legacy identity keys. The zero value passes every
// key through.
type AuthIDTransform struct {
	enabled   bool
	overrides map[string]string
}

// NewAuthIDTransform returns a transform over the built-in override table.
func NewAuthIDTransform(enabled bool) AuthIDTransform {
	return NewAuthIDTransformWith(enabled, authIDOverrides)
}

// NewAuthIDTransformWith returns a transform over overrides. The map is
// copied.
func NewAuthIDTransformWith(enabled bool, overrides map[string]string) AuthIDTransform {
	m := make(map[string]string, len(overrides))
	for k, v := range overrides {
		m[k] = v
	}
	return AuthIDTransform{enabled: enabled, overrides: m}
}

// Transform returns the override for key, or key itself.
func (t AuthIDTransform) Transform(key string) string {
	if !t.enabled {
		return key
	}
	if v, ok := t.overrides[key]; ok {
		return v
	}
	return key
}

package dpc

import "fmt"

// MaxKeyLength is the longest dictionary key accepted.
const MaxKeyLength = 255

// Paths within a .dpc document.
const (
	PathEnabled    = "dictionary.enabled"
	PathLabel      = "dictionary.label"
	PathSerial     = "dictionary.sn"
	PathGeneration = "dictionary.generation"
	PathAdd        = "dictionary.add"
	PathConfigKeys = "dictionary.config.key"
	PathLogKeys    = "dictionary.log.key"
)

// ValidKey reports whether k may be used as a dictionary key: it must start
// with a letter or digit and contain only letters, digits, '_', '-' and '/'.
// Dots are excluded because they separate path segments.
func ValidKey(k string) bool {
	if len(k) == 0 || len(k) > MaxKeyLength {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case i > 0 && (c == '_' || c == '-' || c == '/'):
		default:
			return false
		}
	}
	return true
}

// ConfigKey returns the path of a config key block, or of a field below it.
func ConfigKey(key string, field ...string) string {
	return join(PathConfigKeys, key, field)
}

// LogKey returns the path of a log key block, or of a field below it.
func LogKey(key string, field ...string) string {
	return join(PathLogKeys, key, field)
}

func join(base, key string, field []string) string {
	p := fmt.Sprintf("%s.%s", base, key)
	for _, f := range field {
		p += "." + f
	}
	return p
}

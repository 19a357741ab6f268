package psychologists

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxSanitizePasses bounds the decode/strip loop for nested entity encodings.
const maxSanitizePasses = 4

// fieldSanitizer strips markup from free-text profile fields.
type fieldSanitizer struct {
	policy *bluemonday.Policy
}

func newFieldSanitizer() *fieldSanitizer {
	return &fieldSanitizer{policy: bluemonday.StrictPolicy()}
}

// clean returns nil for absent or blank input. Entities are decoded before
// each strip, so encoded markup is removed rather than revived; the loop ends
// once a pass changes nothing, meaning the plain text carries no tags. Input
// that keeps changing is stored in the policy's escaped form.
func (s *fieldSanitizer) clean(value *string) *string {
	if value == nil {
		return nil
	}
	current := *value
	stable := false
	for range maxSanitizePasses {
		next := html.UnescapeString(s.policy.Sanitize(html.UnescapeString(current)))
		if next == current {
			stable = true
			break
		}
		current = next
	}
	if !stable {
		current = s.policy.Sanitize(html.UnescapeString(current))
	}

	cleaned := strings.TrimSpace(current)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

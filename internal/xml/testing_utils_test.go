package xml

import (
	"regexp"
	"strings"
)

// normalizeXML removes whitespace differences and XML declaration for test comparisons
func normalizeXML(s string) string {
	// First remove the XML declaration
	s = regexp.MustCompile(`<\?xml[^>]*\?>`).ReplaceAllString(s, "")

	// Remove all whitespace between elements
	s = regexp.MustCompile(`>\s+<`).ReplaceAllString(s, "><")
	s = regexp.MustCompile(`\s+/>`).ReplaceAllString(s, "/>")

	return strings.TrimSpace(s)
}

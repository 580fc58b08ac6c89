package breakpoints

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lunadap/lunadap/internal/adapter/runtime"
)

// Private-use-area stand-ins for literal braces while the {expr} pattern is
// being substituted, exactly as the Python original does it (so a
// logMessage containing "{{" never gets misread as an interpolation).
const (
	escapedOpenBrace  = ""
	escapedCloseBrace = ""
)

var exprPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// FormatLogMessage renders a log-point template against a frame's locals
// and globals (spec §4.4): "{expr}" is evaluated and substituted,
// "{{"/"}}" yield literal braces, and an evaluation error substitutes
// "<error>" rather than failing the whole render.
func FormatLogMessage(template string, frame runtime.Frame) string {
	s := strings.ReplaceAll(template, "{{", escapedOpenBrace)
	s = strings.ReplaceAll(s, "}}", escapedCloseBrace)

	s = exprPattern.ReplaceAllStringFunc(s, func(match string) string {
		expr := exprPattern.FindStringSubmatch(match)[1]
		val, err := frame.Evaluate(expr)
		if err != nil {
			return "<error>"
		}
		return fmt.Sprintf("%v", val)
	})

	s = strings.ReplaceAll(s, escapedOpenBrace, "{")
	s = strings.ReplaceAll(s, escapedCloseBrace, "}")
	return s
}

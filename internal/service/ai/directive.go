package ai

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/helpbyexperts/ava/backend/internal/model/script"
)

// CategoryTag is the annotation prefix the model is told to emit.
const CategoryTag = "CATEGORY"

// BuildDirective renders the script directive with its placeholders filled and
// appends the hand-off annotation rules.
func BuildDirective(s script.Script) string {
	replacer := strings.NewReplacer(
		"{{assistant}}", s.AssistantName,
		"{{brand}}", s.Brand,
		"{{questions}}", strconv.Itoa(s.QuestionLimit),
		"{{sentinel}}", s.Sentinel,
	)
	base := strings.TrimSpace(replacer.Replace(s.Directive))

	if len(s.Categories) == 0 {
		return base
	}

	return fmt.Sprintf(`%s

HAND-OFF FORMAT:
- Only when you end a message with %s, put the case category on its own line right before it: [%s: <label>]
- <label> must be exactly one of: %s. Use %s when nothing fits.
- Never mention the category or the marker in any other message.`,
		base,
		s.Sentinel,
		CategoryTag,
		strings.Join(s.Categories, ", "),
		s.FallbackCategory,
	)
}

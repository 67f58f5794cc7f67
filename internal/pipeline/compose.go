package pipeline

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// DefaultContext stands in for an empty last search.
const DefaultContext = "a personal search idea"

const composeTemplate = `
Create a surreal, high-contrast black and white image using only pure black and pure white ink (no grayscale, no gray tones).
Eliminate all background.
The image must blend these ideas into one unified, imaginative subject:
1. %s
2. %s
3. %s
The result must be a single bold, ink-only visual suitable for printmaking transfer. No soft gradients. Only black and white lines or fills.`

// ComposePrompt builds the image-model prompt from its three parts, on a
// single line.
func ComposePrompt(sanitizedPrompt, sanitizedContext, topic string) string {
	context := lo.Ternary(strings.TrimSpace(sanitizedContext) == "", DefaultContext, sanitizedContext)
	out := fmt.Sprintf(composeTemplate, sanitizedPrompt, context, topic)
	return strings.Join(strings.Fields(out), " ")
}

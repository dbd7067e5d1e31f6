// Package speechtext prepares tutor replies for speech synthesis.
package speechtext

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const defaultPassLimit = 30

// CodeOmitted replaces fenced code blocks, which read badly aloud.
const CodeOmitted = "(code omitted)"

var (
	fencedCode     = regexp.MustCompile("(?s)```.*?(```|$)")
	inlineCode     = regexp.MustCompile("`([^`]*)`")
	markdownLink   = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	headingMarker  = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	bulletMarker   = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	emphasisMarker = regexp.MustCompile(`(\*\*|__|~~|\*)`)
	htmlTag        = regexp.MustCompile(`<[^>]+>`)
	spaceRun       = regexp.MustCompile(`[ \t]+`)
	blankLines     = regexp.MustCompile(`\n{2,}`)
)

// Normalizer strips markup and applies user substitutions until stable.
type Normalizer struct {
	substitutions []substitution
	passLimit     int
}

// NewNormalizer loads optional substitutions from path. A missing file means
// built-in cleanup only.
func NewNormalizer(path string, passLimit int) (*Normalizer, error) {
	if passLimit <= 0 {
		passLimit = defaultPassLimit
	}
	n := &Normalizer{passLimit: passLimit}

	if strings.TrimSpace(path) == "" {
		return n, nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return n, nil
		}
		return nil, fmt.Errorf("failed to read speech rules %q: %w", path, err)
	}

	subs, err := parseSubstitutions(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse speech rules %q: %w", path, err)
	}
	n.substitutions = subs
	return n, nil
}

// Normalize implements ports.SpeechNormalizer.
func (n *Normalizer) Normalize(text string) string {
	text = stripMarkup(text)
	if n == nil || len(n.substitutions) == 0 {
		return text
	}

	for pass := 0; pass < n.passLimit; pass++ {
		changed := false
		for _, sub := range n.substitutions {
			if next := sub.apply(text); next != text {
				text = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return strings.TrimSpace(text)
}

func stripMarkup(text string) string {
	text = fencedCode.ReplaceAllString(text, CodeOmitted)
	text = inlineCode.ReplaceAllString(text, "$1")
	text = markdownLink.ReplaceAllString(text, "$1")
	text = htmlTag.ReplaceAllString(text, " ")
	text = headingMarker.ReplaceAllString(text, "")
	text = bulletMarker.ReplaceAllString(text, "")
	text = emphasisMarker.ReplaceAllString(text, "")
	text = spaceRun.ReplaceAllString(text, " ")
	text = blankLines.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

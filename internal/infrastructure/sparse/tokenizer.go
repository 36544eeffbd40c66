package sparse

import (
	"regexp"
	"strings"
)

// tokenRe keeps word and number tokens including hyphen/dot compounds, so
// forms like "10-K" or "basel-iii" survive as single terms.
var tokenRe = regexp.MustCompile(`[\p{L}\p{N}_]+(?:[-.][\p{L}\p{N}_]+)*`)

// Tokenize case-folds and extracts word/number tokens. The same tokenizer is
// applied to corpus passages and queries; any asymmetry here silently breaks
// term matching.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

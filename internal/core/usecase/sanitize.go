package usecase

import "strings"

var lexicalSpecialChars = strings.NewReplacer(
	"/", " ",
	":", " ",
	"*", " ",
	"^", " ",
)

// sanitizeLexicalPhrase turns free-form question text into a safe literal
// phrase for the lexical engine's MATCH grammar: embedded quotes are doubled,
// syntax characters are blanked out, and the whole string is wrapped in
// quotes so it matches as one phrase instead of boolean terms. Trades recall
// (exact-phrase-only matching) for immunity to query-syntax injection.
func sanitizeLexicalPhrase(text string) string {
	text = strings.ReplaceAll(text, `"`, `""`)
	text = lexicalSpecialChars.Replace(text)
	return `"` + strings.TrimSpace(text) + `"`
}

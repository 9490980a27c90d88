package detect

import "strings"

var normalizer = strings.NewReplacer(
	// Zero-width characters and BOM show up in model output and would
	// split otherwise-matchable words. Spelled as escapes: a literal BOM
	// byte anywhere past the start of a file is a scanner error.
	"\u200b", "", // zero width space
	"\u200c", "", // zero width non-joiner
	"\u200d", "", // zero width joiner
	"\u2060", "", // word joiner
	"\ufeff", "", // BOM
	// Curly quotes to straight, so possessives match either form.
	"\u2018", "'",
	"\u2019", "'",
	"\u201c", `"`,
	"\u201d", `"`,
	// Markdown emphasis markers wrap names in chat prose ("*Alice* said").
	"*", "",
	"_", "",
	// Non-breaking and narrow no-break spaces to plain space.
	"\u00a0", " ",
	"\u202f", " ",
)

// NormalizeText strips invisible characters and markdown emphasis and
// canonicalises quote characters. It runs once per appended token, before
// the text enters the session buffer, so buffer offsets always refer to
// normalized text.
func NormalizeText(s string) string {
	return normalizer.Replace(s)
}

// Package filename recovers chapter numbering, titles and translator groups
// from human-authored chapter archive names such as
//
//	Vol.03 Ch.0022 - Chika Fujiwara Wants to be Eaten (en) [Psylocke Scans].cbz
//
// Parse never fails: the worst case is a Chapter whose title is the
// filename without its extension.
package filename

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/banux/cbz-edit/internal/catalog"
)

// chapterPrefixes are the case-insensitive words that introduce a chapter
// number, either alone ("Chapter 12") or glued to it ("Ch.12").
var chapterPrefixes = []string{
	"ch", "ch.", "chap", "chap.", "chapter", "chapter.",
	"ep", "ep.", "episode", "episode.",
}

// decimalRe matches plain decimal numbers. strconv.ParseFloat alone would
// also accept "inf", "NaN" and hex floats, which are title words here.
var decimalRe = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// Parse builds a Chapter for the archive at path whose base name is name.
func Parse(path, name string) catalog.Chapter {
	core := stripExt(name)

	translators, core := extractTranslators(core)
	core = stripLanguageTag(core)

	ch := catalog.Chapter{
		Path:        path,
		Translators: translators,
	}

	tokens := tokenize(core)
	var leftovers []string

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if isVolumeToken(tok) {
			if v, ok := parseVolume(tok); ok {
				ch.Volume = &v
				continue
			}
			if i+1 < len(tokens) {
				if v, ok := parseUint(tokens[i+1]); ok {
					ch.Volume = &v
					i++
					continue
				}
			}
			leftovers = append(leftovers, tok)
			continue
		}

		if ch.Number == nil && isChapterPrefix(tok) {
			num := strings.TrimLeftFunc(tok, func(r rune) bool {
				return unicode.IsLetter(r) || r == '.' || r == '#'
			})
			if num == "" && i+1 < len(tokens) {
				if _, ok := parseNumber(tokens[i+1]); ok {
					num = tokens[i+1]
					i++
				}
			}
			if n, ok := parseNumber(num); ok {
				ch.Number = &n
			} else {
				leftovers = append(leftovers, tok)
			}
			continue
		}

		// A bare number is the chapter when nothing better was seen, and it
		// stays in the title ("Night 44").
		if n, ok := parseNumber(tok); ok && ch.Number == nil {
			ch.Number = &n
		}
		leftovers = append(leftovers, tok)
	}

	ch.Title = strings.Join(leftovers, " ")
	if ch.Translators == nil {
		ch.Translators = []string{}
	}
	return ch
}

// stripExt removes a trailing .cbz extension, ignoring case.
func stripExt(name string) string {
	ext := catalog.ArchiveExt
	if len(name) >= len(ext) && strings.EqualFold(name[len(name)-len(ext):], ext) {
		return name[:len(name)-len(ext)]
	}
	return name
}

// extractTranslators splits the last [a, b] group off s. Everything from the
// opening bracket onwards is dropped from the returned core.
func extractTranslators(s string) ([]string, string) {
	start := strings.LastIndex(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return nil, s
	}

	var names []string
	for _, part := range strings.Split(s[start+1:end], ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names, strings.TrimSpace(s[:start])
}

// stripLanguageTag drops a trailing (en) / (jpn) style group.
func stripLanguageTag(s string) string {
	start := strings.LastIndex(s, "(")
	end := strings.LastIndex(s, ")")
	if start < 0 || end <= start {
		return s
	}
	if n := len([]rune(s[start+1 : end])); n < 2 || n > 3 {
		return s
	}
	return strings.TrimSpace(s[:start])
}

// tokenize splits on whitespace, '-' and ':' except inside [brackets], where
// separators belong to the token ("Volume[1-2]").
func tokenize(s string) []string {
	var (
		tokens []string
		buf    strings.Builder
		depth  int
	)
	flush := func() {
		if buf.Len() > 0 {
			tokens = append(tokens, buf.String())
			buf.Reset()
		}
	}

	for _, r := range s {
		switch {
		case r == '[':
			depth++
			buf.WriteRune(r)
		case r == ']':
			if depth > 0 {
				depth--
			}
			buf.WriteRune(r)
		case depth == 0 && (r == '-' || r == ':' || unicode.IsSpace(r)):
			flush()
		default:
			buf.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// isVolumeToken reports whether tok is "vol", "vol.", "volume" or
// "volume." optionally followed by digits. Bracketed tokens never are.
func isVolumeToken(tok string) bool {
	if strings.ContainsAny(tok, "[]") {
		return false
	}
	rest, ok := trimVolumePrefix(tok)
	if !ok {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func trimVolumePrefix(tok string) (string, bool) {
	low := strings.ToLower(tok)
	for _, p := range []string{"volume", "vol"} {
		if strings.HasPrefix(low, p) {
			return strings.TrimPrefix(tok[len(p):], "."), true
		}
	}
	return "", false
}

// parseVolume reads digits embedded in the volume token itself ("Vol.03").
func parseVolume(tok string) (uint32, bool) {
	rest, _ := trimVolumePrefix(tok)
	return parseUint(rest)
}

func parseUint(s string) (uint32, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "+"), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func parseNumber(s string) (float64, bool) {
	if !decimalRe.MatchString(s) {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// isChapterPrefix reports whether tok is a chapter prefix word, a prefix
// glued to digits ("Ch.12", "ep3"), or a "#12" style token.
func isChapterPrefix(tok string) bool {
	low := strings.ToLower(tok)
	for _, p := range chapterPrefixes {
		if low == p {
			return true
		}
		if rest, ok := strings.CutPrefix(low, p); ok && rest != "" && rest[0] >= '0' && rest[0] <= '9' {
			return true
		}
	}

	if rest, ok := strings.CutPrefix(low, "#"); ok {
		for _, r := range rest {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	}
	return false
}

// Package comicinfo models the ComicInfo.xml record embedded in CBZ archives,
// its XML codec and the merge policies used to combine an archive's stored
// record with a newly supplied one.
package comicinfo

import (
	"strings"

	"golang.org/x/text/language"
)

// EntryName is the name of the metadata entry at the archive root.
const EntryName = "ComicInfo.xml"

// Manga tells readers whether the book is a manga and its reading direction.
type Manga int

const (
	MangaUnknown Manga = iota
	MangaYes
	MangaNo
	MangaYesAndRightToLeft
)

var mangaText = [...]string{"Unknown", "Yes", "No", "YesAndRightToLeft"}

func (m Manga) String() string {
	if m < 0 || int(m) >= len(mangaText) {
		return mangaText[MangaUnknown]
	}
	return mangaText[m]
}

// ParseManga maps text to a Manga value. Unrecognized text is MangaUnknown.
func ParseManga(s string) Manga {
	s = strings.TrimSpace(s)
	for i, text := range mangaText {
		if strings.EqualFold(s, text) {
			return Manga(i)
		}
	}
	return MangaUnknown
}

// MarshalText implements encoding.TextMarshaler.
func (m Manga) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. It never fails.
func (m *Manga) UnmarshalText(b []byte) error {
	*m = ParseManga(string(b))
	return nil
}

// AgeRating is the audience rating of the book.
type AgeRating int

const (
	AgeUnknown AgeRating = iota
	AgeEveryone
	AgeTeen
	AgeMature17Plus
	AgeAdultsOnly18Plus
)

var ageText = [...]string{"Unknown", "Everyone", "Teen", "Mature 17+", "Adults Only 18+"}

// ageAliases are accepted on input in addition to the canonical text.
var ageAliases = map[string]AgeRating{
	"mature17plus":     AgeMature17Plus,
	"mature":           AgeMature17Plus,
	"adultsonly18plus": AgeAdultsOnly18Plus,
	"adults only":      AgeAdultsOnly18Plus,
}

func (a AgeRating) String() string {
	if a < 0 || int(a) >= len(ageText) {
		return ageText[AgeUnknown]
	}
	return ageText[a]
}

// ParseAgeRating maps text to an AgeRating. Unrecognized text is AgeUnknown.
func ParseAgeRating(s string) AgeRating {
	s = strings.TrimSpace(s)
	for i, text := range ageText {
		if strings.EqualFold(s, text) {
			return AgeRating(i)
		}
	}
	if a, ok := ageAliases[strings.ToLower(s)]; ok {
		return a
	}
	return AgeUnknown
}

// AgeRatingFromAge picks the rating for a minimum reader age as used by
// library servers (0 means unrated).
func AgeRatingFromAge(age int) AgeRating {
	switch {
	case age <= 0:
		return AgeUnknown
	case age >= 18:
		return AgeAdultsOnly18Plus
	case age >= 17:
		return AgeMature17Plus
	case age >= 13:
		return AgeTeen
	default:
		return AgeEveryone
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a AgeRating) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. It never fails.
func (a *AgeRating) UnmarshalText(b []byte) error {
	*a = ParseAgeRating(string(b))
	return nil
}

// ComicInfo is the metadata record of one book. Empty strings and nil
// pointers are absent fields and are left out of the encoded document.
type ComicInfo struct {
	Title  string `json:"title"`
	Series string `json:"series"`

	// Number of the book in the series (10.5 for half chapters).
	Number *float64 `json:"number,omitempty"`

	// Volume containing the book.
	Volume *uint32 `json:"volume,omitempty"`

	Summary string `json:"summary,omitempty"`

	Year  *int `json:"year,omitempty"`
	Month *int `json:"month,omitempty"`
	Day   *int `json:"day,omitempty"`

	// Writer, Penciller, Translator and Publisher are comma separated when
	// there are several.
	Writer     string `json:"writer,omitempty"`
	Penciller  string `json:"penciller,omitempty"`
	Translator string `json:"translator,omitempty"`
	Publisher  string `json:"publisher,omitempty"`

	Genre string `json:"genre,omitempty"` // comma separated
	Tags  string `json:"tags,omitempty"`  // comma separated

	// Web holds space separated URLs.
	Web string `json:"web,omitempty"`

	PageCount *uint32 `json:"pageCount,omitempty"`

	// LanguageISO is a language code such as "en" or "pt-BR".
	LanguageISO string `json:"languageISO,omitempty"`

	Manga     Manga     `json:"manga"`
	AgeRating AgeRating `json:"ageRating"`

	// Count is the total number of books in the series.
	Count *uint32 `json:"count,omitempty"`
}

// New returns a record whose title and series are both title.
func New(title string) ComicInfo {
	return ComicInfo{Title: title, Series: title}
}

// SetDate sets the release date parts.
func (c *ComicInfo) SetDate(year, month, day int) {
	c.Year, c.Month, c.Day = &year, &month, &day
}

// Clone returns a deep copy of c.
func (c ComicInfo) Clone() ComicInfo {
	c.Number = clonePtr(c.Number)
	c.Volume = clonePtr(c.Volume)
	c.Year = clonePtr(c.Year)
	c.Month = clonePtr(c.Month)
	c.Day = clonePtr(c.Day)
	c.PageCount = clonePtr(c.PageCount)
	c.Count = clonePtr(c.Count)
	return c
}

// Equal reports whether c and o carry the same values.
func (c ComicInfo) Equal(o ComicInfo) bool {
	return c.Title == o.Title &&
		c.Series == o.Series &&
		eqPtr(c.Number, o.Number) &&
		eqPtr(c.Volume, o.Volume) &&
		c.Summary == o.Summary &&
		eqPtr(c.Year, o.Year) &&
		eqPtr(c.Month, o.Month) &&
		eqPtr(c.Day, o.Day) &&
		c.Writer == o.Writer &&
		c.Penciller == o.Penciller &&
		c.Translator == o.Translator &&
		c.Publisher == o.Publisher &&
		c.Genre == o.Genre &&
		c.Tags == o.Tags &&
		c.Web == o.Web &&
		eqPtr(c.PageCount, o.PageCount) &&
		c.LanguageISO == o.LanguageISO &&
		c.Manga == o.Manga &&
		c.AgeRating == o.AgeRating &&
		eqPtr(c.Count, o.Count)
}

// NormalizeLanguage returns the canonical BCP 47 form of code ("EN_us" ->
// "en-US"). Codes that do not parse are returned trimmed but unchanged.
func NormalizeLanguage(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return code
	}
	return tag.String()
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

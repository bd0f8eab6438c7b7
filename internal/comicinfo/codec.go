package comicinfo

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// ProvenanceComment marks a ComicInfo.xml written by this program.
const ProvenanceComment = " Modified by cbz-edit "

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrEncode is returned when a record holds values the ComicInfo schema
// cannot carry.
var ErrEncode = errors.New("comicinfo: cannot encode record")

// document is the wire form of ComicInfo. Every field is text so that a
// single bad value never rejects the whole document on decode.
type document struct {
	XMLName     xml.Name `xml:"ComicInfo"`
	Title       string   `xml:"Title"`
	Series      string   `xml:"Series"`
	Number      string   `xml:"Number,omitempty"`
	Volume      string   `xml:"Volume,omitempty"`
	Summary     string   `xml:"Summary,omitempty"`
	Year        string   `xml:"Year,omitempty"`
	Month       string   `xml:"Month,omitempty"`
	Day         string   `xml:"Day,omitempty"`
	Writer      string   `xml:"Writer,omitempty"`
	Penciller   string   `xml:"Penciller,omitempty"`
	Translator  string   `xml:"Translator,omitempty"`
	Publisher   string   `xml:"Publisher,omitempty"`
	Genre       string   `xml:"Genre,omitempty"`
	Tags        string   `xml:"Tags,omitempty"`
	Web         string   `xml:"Web,omitempty"`
	PageCount   string   `xml:"PageCount,omitempty"`
	LanguageISO string   `xml:"LanguageISO,omitempty"`
	Manga       string   `xml:"Manga,omitempty"`
	AgeRating   string   `xml:"AgeRating,omitempty"`
	Count       string   `xml:"Count,omitempty"`
}

// Marshal encodes c as an indented ComicInfo document with an XML header.
func Marshal(c ComicInfo) ([]byte, error) {
	if err := validate(c); err != nil {
		return nil, err
	}

	doc := document{
		Title:       c.Title,
		Series:      c.Series,
		Number:      formatFloat(c.Number),
		Volume:      formatUint(c.Volume),
		Summary:     c.Summary,
		Year:        formatInt(c.Year),
		Month:       formatInt(c.Month),
		Day:         formatInt(c.Day),
		Writer:      c.Writer,
		Penciller:   c.Penciller,
		Translator:  c.Translator,
		Publisher:   c.Publisher,
		Genre:       c.Genre,
		Tags:        c.Tags,
		Web:         c.Web,
		PageCount:   formatUint(c.PageCount),
		LanguageISO: c.LanguageISO,
		Count:       formatUint(c.Count),
	}
	if c.Manga != MangaUnknown {
		doc.Manga = c.Manga.String()
	}
	if c.AgeRating != AgeUnknown {
		doc.AgeRating = c.AgeRating.String()
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	var buf bytes.Buffer
	buf.Grow(len(xml.Header) + len(body) + 1)
	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Unmarshal decodes a ComicInfo document. It fails only when the markup
// itself is unusable; individual fields that do not parse are left empty.
func Unmarshal(data []byte) (ComicInfo, error) {
	var doc document
	d := xml.NewDecoder(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	d.CharsetReader = charsetReader
	if err := d.Decode(&doc); err != nil {
		return ComicInfo{}, fmt.Errorf("decode %s: %w", EntryName, err)
	}

	c := ComicInfo{
		Title:       doc.Title,
		Series:      doc.Series,
		Number:      parseFloat(doc.Number),
		Volume:      parseUint(doc.Volume),
		Summary:     doc.Summary,
		Year:        parseInt(doc.Year, 0, math.MaxInt32),
		Month:       parseInt(doc.Month, 1, 12),
		Day:         parseInt(doc.Day, 1, 31),
		Writer:      doc.Writer,
		Penciller:   doc.Penciller,
		Translator:  doc.Translator,
		Publisher:   doc.Publisher,
		Genre:       doc.Genre,
		Tags:        doc.Tags,
		Web:         doc.Web,
		PageCount:   parseUint(doc.PageCount),
		LanguageISO: doc.LanguageISO,
		Manga:       ParseManga(doc.Manga),
		AgeRating:   ParseAgeRating(doc.AgeRating),
		Count:       parseUint(doc.Count),
	}
	return c, nil
}

// charsetReader converts documents declaring a non UTF-8 encoding, such as
// ISO-8859-1 or windows-1252, by their IANA name.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

// Decode is the total form of Unmarshal: unusable markup yields the empty
// record. Callers that must tell "no metadata" from "bad metadata" apart
// use Unmarshal.
func Decode(data []byte) ComicInfo {
	c, err := Unmarshal(data)
	if err != nil {
		return ComicInfo{}
	}
	return c
}

// WithProvenance inserts the provenance comment directly before the root
// element of doc.
func WithProvenance(doc []byte) ([]byte, error) {
	d := xml.NewDecoder(bytes.NewReader(doc))
	for {
		offset := d.InputOffset()
		tok, err := d.RawToken()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: no root element", ErrEncode)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEncode, err)
		}
		if _, ok := tok.(xml.StartElement); !ok {
			continue
		}

		var buf bytes.Buffer
		buf.Grow(len(doc) + len(ProvenanceComment) + 8)
		buf.Write(doc[:offset])
		buf.WriteString("<!--" + ProvenanceComment + "-->\n")
		buf.Write(doc[offset:])
		return buf.Bytes(), nil
	}
}

// HasProvenance reports whether doc carries the provenance comment.
func HasProvenance(doc []byte) bool {
	return bytes.Contains(doc, []byte("<!--"+ProvenanceComment+"-->"))
}

func validate(c ComicInfo) error {
	if c.Number != nil && (math.IsNaN(*c.Number) || math.IsInf(*c.Number, 0)) {
		return fmt.Errorf("%w: number %v is not finite", ErrEncode, *c.Number)
	}
	if c.Year != nil && *c.Year < 0 {
		return fmt.Errorf("%w: year %d", ErrEncode, *c.Year)
	}
	if c.Month != nil && (*c.Month < 1 || *c.Month > 12) {
		return fmt.Errorf("%w: month %d", ErrEncode, *c.Month)
	}
	if c.Day != nil && (*c.Day < 1 || *c.Day > 31) {
		return fmt.Errorf("%w: day %d", ErrEncode, *c.Day)
	}
	return nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatUint(v *uint32) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*v), 10)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func parseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func parseUint(s string) *uint32 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return nil
	}
	u := uint32(v)
	return &u
}

func parseInt(s string, lo, hi int) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < lo || v > hi {
		return nil
	}
	return &v
}

// Package opds implements the OPDS Catalog 1.2 feed types used to publish
// the library to reader apps. OPDS is an Atom-based catalog format.
//
// Specification: https://specs.opds.io/opds-1.2
package opds

import (
	"encoding/xml"
	"time"
)

const (
	// Namespaces
	NSAtom    = "http://www.w3.org/2005/Atom"
	NSDC      = "http://purl.org/dc/terms/"
	NSCalibre = "http://calibre.kovidgoyal.net/2009/metadata"

	// OPDS relation types
	RelAcquisitionOpen   = "http://opds-spec.org/acquisition/open-access"
	RelCover             = "http://opds-spec.org/image"
	RelThumbnail         = "http://opds-spec.org/image/thumbnail"
	RelCatalogNavigation = "subsection"
	RelSelf              = "self"
	RelStart             = "start"
	RelUp                = "up"

	// MIME types
	MIMENavigationFeed  = "application/atom+xml;profile=opds-catalog;kind=navigation"
	MIMEAcquisitionFeed = "application/atom+xml;profile=opds-catalog;kind=acquisition"
	MIMECBZ             = "application/vnd.comicbook+zip"
)

// Feed is an OPDS Atom feed, navigation or acquisition.
type Feed struct {
	XMLName      xml.Name `xml:"feed"`
	Xmlns        string   `xml:"xmlns,attr"`
	XmlnsDC      string   `xml:"xmlns:dc,attr,omitempty"`
	XmlnsCalibre string   `xml:"xmlns:calibre,attr,omitempty"`

	ID      string   `xml:"id"`
	Title   Text     `xml:"title"`
	Updated AtomDate `xml:"updated"`

	Links   []Link  `xml:"link"`
	Entries []Entry `xml:"entry"`
}

// NewNavigationFeed creates a navigation feed.
func NewNavigationFeed(id, title string, updated time.Time) *Feed {
	return &Feed{
		Xmlns:   NSAtom,
		ID:      id,
		Title:   Text{Value: title},
		Updated: AtomDate{Time: updated},
	}
}

// NewAcquisitionFeed creates an acquisition feed. The Dublin Core and
// Calibre namespaces are declared for language, publisher and series
// metadata.
func NewAcquisitionFeed(id, title string, updated time.Time) *Feed {
	return &Feed{
		Xmlns:        NSAtom,
		XmlnsDC:      NSDC,
		XmlnsCalibre: NSCalibre,
		ID:           id,
		Title:        Text{Value: title},
		Updated:      AtomDate{Time: updated},
	}
}

// Text is an Atom text construct.
type Text struct {
	Type  string `xml:"type,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Author is the author of an entry.
type Author struct {
	Name string `xml:"name"`
}

// AtomDate wraps time.Time for RFC 3339 serialization.
type AtomDate struct {
	Time time.Time
}

func (d AtomDate) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(d.Time.UTC().Format(time.RFC3339), start)
}

func (d *AtomDate) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := dec.DecodeElement(&s, &start); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// Link is an Atom link element.
type Link struct {
	Rel   string `xml:"rel,attr,omitempty"`
	Href  string `xml:"href,attr"`
	Type  string `xml:"type,attr,omitempty"`
	Title string `xml:"title,attr,omitempty"`
	Count int    `xml:"count,attr,omitempty"`
}

// Entry is a navigation entry pointing to another feed, or an acquisition
// entry pointing to a chapter archive.
type Entry struct {
	ID      string   `xml:"id"`
	Title   Text     `xml:"title"`
	Updated AtomDate `xml:"updated"`
	Summary *Text    `xml:"summary,omitempty"`
	Content *Text    `xml:"content,omitempty"`
	Authors []Author `xml:"author,omitempty"`

	Language  string `xml:"dc:language,omitempty"`
	Publisher string `xml:"dc:publisher,omitempty"`
	Issued    string `xml:"dc:issued,omitempty"`

	CalSeries      string `xml:"calibre:series,omitempty"`
	CalSeriesIndex string `xml:"calibre:series_index,omitempty"`

	Links []Link `xml:"link"`
}

// AddLink appends a link to the feed.
func (f *Feed) AddLink(rel, href, mimeType string) {
	f.Links = append(f.Links, Link{Rel: rel, Href: href, Type: mimeType})
}

// AddEntry appends an entry to the feed.
func (f *Feed) AddEntry(e Entry) {
	f.Entries = append(f.Entries, e)
}

// MarshalToXML serializes the feed with an XML declaration.
func (f *Feed) MarshalToXML() ([]byte, error) {
	data, err := xml.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), data...), nil
}

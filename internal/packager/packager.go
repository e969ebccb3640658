// Package packager converts a finished chapter sequence into an EPUB3
// archive: an OPF package document, an NCX navigation document, one
// XHTML file per chapter, and the zip container. It is the final
// e-book packaging step outside the segmentation core.
package packager

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/novelseg/novelseg/internal/chapter"
)

// Metadata describes the book-level OPF metadata.
type Metadata struct {
	Title     string
	Author    string
	Series    string
	Volume    int
	Language  string
	Publisher string
}

// opfPackage is the OPF package document, populated and marshaled
// rather than decoded.
type opfPackage struct {
	XMLName  xml.Name     `xml:"package"`
	Xmlns    string       `xml:"xmlns,attr"`
	Version  string       `xml:"version,attr"`
	UniqueID string       `xml:"unique-identifier,attr"`
	Metadata opfMetadata  `xml:"metadata"`
	Manifest opfManifest  `xml:"manifest"`
	Spine    opfSpine     `xml:"spine"`
}

type opfMetadata struct {
	XmlnsDC     string        `xml:"xmlns:dc,attr"`
	XmlnsOPF    string        `xml:"xmlns:opf,attr"`
	Title       string        `xml:"dc:title"`
	Creator     string        `xml:"dc:creator"`
	Language    string        `xml:"dc:language"`
	Publisher   string        `xml:"dc:publisher,omitempty"`
	Identifier  opfIdentifier `xml:"dc:identifier"`
	SeriesMeta  []opfMeta     `xml:"meta,omitempty"`
}

type opfIdentifier struct {
	ID     string `xml:"id,attr"`
	Scheme string `xml:"opf:scheme,attr"`
	Value  string `xml:",chardata"`
}

type opfMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type opfManifest struct {
	Items []opfItem `xml:"item"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
}

type opfSpine struct {
	TOC     string      `xml:"toc,attr"`
	ItemRef []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef string `xml:"idref,attr"`
}

// ncxDoc is the NCX navigation document.
type ncxDoc struct {
	XMLName  xml.Name  `xml:"ncx"`
	Xmlns    string    `xml:"xmlns,attr"`
	Version  string    `xml:"version,attr"`
	Head     ncxHead   `xml:"head"`
	DocTitle ncxText   `xml:"docTitle"`
	NavMap   ncxNavMap `xml:"navMap"`
}

type ncxHead struct {
	Meta []opfMeta `xml:"meta"`
}

type ncxText struct {
	Text string `xml:"text"`
}

type ncxNavMap struct {
	NavPoints []ncxNavPoint `xml:"navPoint"`
}

type ncxNavPoint struct {
	ID        string     `xml:"id,attr"`
	PlayOrder int        `xml:"playOrder,attr"`
	Label     ncxText    `xml:"navLabel"`
	Content   ncxContent `xml:"content"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// Write serializes chapters into an EPUB3 archive at w.
func Write(w io.Writer, meta Metadata, chapters []chapter.Chapter) error {
	if meta.Language == "" {
		meta.Language = "en"
	}

	zw := zip.NewWriter(w)
	defer zw.Close()

	if err := writeStored(zw, "mimetype", []byte("application/epub+zip")); err != nil {
		return err
	}

	if err := writeFile(zw, "META-INF/container.xml", containerXML); err != nil {
		return err
	}

	bookID := "urn:uuid:" + uuid.NewString()

	manifestItems := []opfItem{
		{ID: "ncx", Href: "toc.ncx", MediaType: "application/x-dtbncx+xml"},
	}
	var spineRefs []opfItemRef
	var navPoints []ncxNavPoint

	for _, c := range chapters {
		id := fmt.Sprintf("chapter%03d", c.CID)
		href := fmt.Sprintf("OEBPS/%s.xhtml", id)

		if err := writeFile(zw, href, chapterXHTML(c)); err != nil {
			return err
		}

		manifestItems = append(manifestItems, opfItem{
			ID: id, Href: strings.TrimPrefix(href, "OEBPS/"), MediaType: "application/xhtml+xml",
		})
		spineRefs = append(spineRefs, opfItemRef{IDRef: id})

		label := c.Title
		if label == "" {
			label = "Chapter " + strconv.Itoa(c.CID+1)
		}
		navPoints = append(navPoints, ncxNavPoint{
			ID:        "navpoint-" + strconv.Itoa(c.CID+1),
			PlayOrder: c.CID + 1,
			Label:     ncxText{Text: label},
			Content:   ncxContent{Src: strings.TrimPrefix(href, "OEBPS/")},
		})
	}

	pkg := opfPackage{
		Xmlns:    "http://www.idpf.org/2007/opf",
		Version:  "3.0",
		UniqueID: "BookID",
		Metadata: opfMetadata{
			XmlnsDC:   "http://purl.org/dc/elements/1.1/",
			XmlnsOPF:  "http://www.idpf.org/2007/opf",
			Title:     meta.Title,
			Creator:   meta.Author,
			Language:  meta.Language,
			Publisher: meta.Publisher,
			Identifier: opfIdentifier{
				ID: "BookID", Scheme: "UUID", Value: bookID,
			},
			SeriesMeta: seriesMeta(meta),
		},
		Manifest: opfManifest{Items: manifestItems},
		Spine:    opfSpine{TOC: "ncx", ItemRef: spineRefs},
	}

	opfBytes, err := marshalXML(pkg)
	if err != nil {
		return fmt.Errorf("packager: marshal opf: %w", err)
	}
	if err := writeFile(zw, "OEBPS/content.opf", string(opfBytes)); err != nil {
		return err
	}

	ncx := ncxDoc{
		Xmlns:    "http://www.daisy.org/z3986/2005/ncx/",
		Version:  "2005-1",
		Head:     ncxHead{Meta: []opfMeta{{Name: "dtb:uid", Content: bookID}}},
		DocTitle: ncxText{Text: meta.Title},
		NavMap:   ncxNavMap{NavPoints: navPoints},
	}

	ncxBytes, err := marshalXML(ncx)
	if err != nil {
		return fmt.Errorf("packager: marshal ncx: %w", err)
	}
	if err := writeFile(zw, "OEBPS/toc.ncx", string(ncxBytes)); err != nil {
		return err
	}

	return nil
}

func seriesMeta(meta Metadata) []opfMeta {
	if meta.Series == "" {
		return nil
	}
	return []opfMeta{
		{Name: "calibre:series", Content: meta.Series},
		{Name: "calibre:series_index", Content: strconv.Itoa(meta.Volume)},
	}
}

func marshalXML(v any) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func writeStored(zw *zip.Writer, name string, data []byte) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
	if err != nil {
		return fmt.Errorf("packager: create %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("packager: write %s: %w", name, err)
	}
	return nil
}

func writeFile(zw *zip.Writer, name, content string) error {
	fw, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("packager: create %s: %w", name, err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		return fmt.Errorf("packager: write %s: %w", name, err)
	}
	return nil
}

const containerXML = xml.Header + `<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

func chapterXHTML(c chapter.Chapter) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<html xmlns=\"http://www.w3.org/1999/xhtml\"><head><title>")
	xml.EscapeText(&b, []byte(c.Title))
	b.WriteString("</title></head><body>\n<h1>")
	xml.EscapeText(&b, []byte(c.Title))
	b.WriteString("</h1>\n")
	if c.Subtitle != "" {
		b.WriteString("<h2>")
		xml.EscapeText(&b, []byte(c.Subtitle))
		b.WriteString("</h2>\n")
	}
	for _, para := range strings.Split(c.Body, "\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		b.WriteString("<p>")
		xml.EscapeText(&b, []byte(para))
		b.WriteString("</p>\n")
	}
	b.WriteString("</body></html>")
	return b.String()
}

package selector

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
)

// ContentType describes how a document's text should be interpreted.
type ContentType string

const (
	// ContentAuto sniffs the content type from the text.
	ContentAuto ContentType = ""
	// ContentHTML is markup.
	ContentHTML ContentType = "html"
	// ContentJSON is JSON text or decoded JSON-like data.
	ContentJSON ContentType = "json"
	// ContentText is plain text.
	ContentText ContentType = "text"
)

// Document is a read-only source document. Parsed representations are built
// lazily and at most once, so a Document may be shared by concurrent
// evaluations.
type Document struct {
	text        string
	contentType ContentType

	htmlOnce sync.Once
	root     *html.Node
	htmlErr  error

	dataOnce sync.Once
	data     interface{}
	dataOK   bool
}

// NewDocument creates a document from text. An empty content type is sniffed.
func NewDocument(text string, contentType ContentType) *Document {
	if contentType == ContentAuto {
		contentType = sniff(text)
	}
	return &Document{text: text, contentType: contentType}
}

// NewDataDocument creates a JSON document from already decoded data such as
// a map[string]interface{} or []interface{}.
func NewDataDocument(v interface{}) (*Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document data: %w", err)
	}
	return NewDocument(string(raw), ContentJSON), nil
}

// Text returns the document treated as text.
func (d *Document) Text() string {
	return d.text
}

// ContentType returns the document content type.
func (d *Document) ContentType() ContentType {
	return d.contentType
}

// Fingerprint returns a stable hash of the document text.
func (d *Document) Fingerprint() uint64 {
	return xxhash.Sum64String(d.text)
}

// HTML returns the parsed markup tree. Any text parses; non-markup text
// yields a tree with the text in its body.
func (d *Document) HTML() (*html.Node, error) {
	d.htmlOnce.Do(func() {
		d.root, d.htmlErr = html.Parse(strings.NewReader(d.text))
	})
	return d.root, d.htmlErr
}

// Query returns a goquery view of the parsed markup tree.
func (d *Document) Query() (*goquery.Document, error) {
	root, err := d.HTML()
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromNode(root), nil
}

// Data returns the decoded JSON value of the document, and false when the
// document is not valid JSON.
func (d *Document) Data() (interface{}, bool) {
	d.dataOnce.Do(func() {
		if !gjson.Valid(d.text) {
			return
		}
		d.data = gjson.Parse(d.text).Value()
		d.dataOK = true
	})
	return d.data, d.dataOK
}

func sniff(text string) ContentType {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ContentText
	}
	switch trimmed[0] {
	case '{', '[':
		if gjson.Valid(trimmed) {
			return ContentJSON
		}
	case '<':
		return ContentHTML
	}
	return ContentText
}

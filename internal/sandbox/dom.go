package sandbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// MaxMarkupBytes bounds markup read by LoadMarkup
const MaxMarkupBytes = 4 << 20

// DOM provides a small document for sandboxed JavaScript, parsed from the
// markup supplied with a run. Scripts can query it and change attributes or
// text; every change is recorded as a Mutation.
type DOM struct {
	doc       *goquery.Document
	mutations []Mutation
	mu        sync.RWMutex
}

// NewDOM parses markup into a DOM
func NewDOM(markup string) (*DOM, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	return &DOM{doc: doc, mutations: []Mutation{}}, nil
}

// Query returns the element nodes matching a CSS selector. An invalid
// selector matches nothing.
func (d *DOM) Query(selector string) []*html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doc.Find(selector).Nodes
}

// Evaluate returns the element nodes selected by an XPath expression
func (d *DOM) Evaluate(expr string) ([]*html.Node, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	nodes, err := htmlquery.QueryAll(d.doc.Nodes[0], expr)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", expr, err)
	}
	elements := nodes[:0]
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			elements = append(elements, n)
		}
	}
	return elements, nil
}

// ByID returns the element with the given id, or nil
func (d *DOM) ByID(id string) *html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var found *html.Node
	d.doc.Find("[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.AttrOr("id", "") == id {
			found = s.Get(0)
			return false
		}
		return true
	})
	return found
}

// Attribute returns the value of name on n
func (d *DOM) Attribute(n *html.Node, name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doc.FindNodes(n).Attr(name)
}

// Text returns the text content of n
func (d *DOM) Text(n *html.Node) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doc.FindNodes(n).Text()
}

// SetAttribute sets an attribute and records the change
func (d *DOM) SetAttribute(n *html.Node, name, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc.FindNodes(n).SetAttr(name, value)
	d.mutations = append(d.mutations, Mutation{Type: "set_attribute", Target: describe(n), Name: name, Value: value})
}

// SetText replaces the children of n with text and records the change
func (d *DOM) SetText(n *html.Node, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc.FindNodes(n).SetText(text)
	d.mutations = append(d.mutations, Mutation{Type: "set_text", Target: describe(n), Value: text})
}

// Mutations returns accumulated DOM changes
func (d *DOM) Mutations() []Mutation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Mutation{}, d.mutations...)
}

// describe renders n as a short selector: tag, then #id, then .classes
func describe(n *html.Node) string {
	var id, classes string
	for _, a := range n.Attr {
		switch a.Key {
		case "id":
			id = "#" + a.Val
		case "class":
			for _, c := range strings.Fields(a.Val) {
				classes += "." + c
			}
		}
	}
	return n.Data + id + classes
}

// LoadMarkup reads markup and returns it as UTF-8. Input that is not
// valid UTF-8 is decoded from the charset chardet detects.
func LoadMarkup(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxMarkupBytes+1))
	if err != nil {
		return "", fmt.Errorf("read markup: %w", err)
	}
	if len(data) > MaxMarkupBytes {
		return "", fmt.Errorf("markup exceeds %d bytes", MaxMarkupBytes)
	}

	if utf8.Valid(data) {
		return string(data), nil
	}

	name := "windows-1252"
	if best, err := chardet.NewTextDetector().DetectBest(data); err == nil && best != nil {
		name = strings.ToLower(best.Charset)
	}
	decoded, err := charset.NewReader(bytes.NewReader(data), "text/html; charset="+name)
	if err != nil {
		return string(data), nil
	}
	out, err := io.ReadAll(decoded)
	if err != nil {
		return "", fmt.Errorf("decode markup as %s: %w", name, err)
	}
	return string(out), nil
}

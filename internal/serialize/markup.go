package serialize

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/soeminnminn/run-js/internal/format"
)

// Element is a host markup element: a tag with attributes and children
// whose markup is available as text.
type Element interface {
	TagName() string
	Attributes() map[string]string
	InnerHTML() string
	ChildCount() int
}

var (
	validTagName  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9\-]*$`)
	validAttrName = regexp.MustCompile(`^[^\s"'>/=\x00-\x1f]+$`)
)

// markupTransform owns the scratch document elements are rebuilt in. It is
// not safe for concurrent Decode calls.
type markupTransform struct {
	sanitizer *bluemonday.Policy
	logger    *zap.Logger
	scratch   *html.Node
}

// Markup handles *html.Node elements and Element values. Decoded elements
// are built inside a detached scratch document; with a sanitizer, inner
// markup is cleaned and event handler attributes are dropped.
func Markup(sanitizer *bluemonday.Policy, logger *zap.Logger) Transform {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &markupTransform{sanitizer: sanitizer, logger: logger}
}

func (*markupTransform) Type() string { return "HTMLElement" }

func (*markupTransform) Match(v any) bool {
	switch x := v.(type) {
	case *html.Node:
		return x != nil && x.Type == html.ElementNode
	case Element:
		return x != nil
	}
	return false
}

func (*markupTransform) Encode(v any, _ *Encoder) any {
	if n, ok := v.(*html.Node); ok {
		attrs := make(map[string]any, len(n.Attr))
		for _, a := range n.Attr {
			name := a.Key
			if a.Namespace != "" {
				name = a.Namespace + ":" + a.Key
			}
			attrs[name] = a.Val
		}
		inner, err := goquery.NewDocumentFromNode(n).Html()
		if err != nil {
			inner = ""
		}
		return map[string]any{
			"tagName":    strings.ToLower(n.Data),
			"attributes": attrs,
			"innerHTML":  inner,
		}
	}

	el := v.(Element)
	attrs := make(map[string]any)
	for name, value := range el.Attributes() {
		attrs[name] = value
	}
	return map[string]any{
		"tagName":    strings.ToLower(el.TagName()),
		"attributes": attrs,
		"innerHTML":  el.InnerHTML(),
	}
}

func (t *markupTransform) Decode(body any, _ *Decoder) any {
	m, ok := body.(map[string]any)
	if !ok {
		return body
	}
	tag, _ := m["tagName"].(string)
	tag = strings.ToLower(tag)
	if !validTagName.MatchString(tag) {
		return body
	}
	inner, _ := m["innerHTML"].(string)
	if t.sanitizer != nil {
		inner = t.sanitizer.Sanitize(inner)
	}

	el := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	t.fill(el, inner)

	attrs, _ := m["attributes"].(map[string]any)
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t.setAttribute(el, name, attrs[name])
	}
	return el
}

// fill parses inner with el as the fragment context while el is attached to
// the scratch document, then detaches el again.
func (t *markupTransform) fill(el *html.Node, inner string) {
	body := t.document()
	body.AppendChild(el)
	defer body.RemoveChild(el)

	nodes, err := html.ParseFragmentWithOptions(strings.NewReader(inner), el, html.ParseOptionEnableScripting(false))
	if err != nil {
		t.logger.Debug("Discarding unparsable inner markup", zap.Error(err))
		return
	}
	for _, n := range nodes {
		el.AppendChild(n)
	}
}

func (t *markupTransform) setAttribute(el *html.Node, name string, value any) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Debug("Skipping attribute", zap.String("name", name), zap.Any("panic", r))
		}
	}()

	if !validAttrName.MatchString(name) {
		t.logger.Debug("Skipping invalid attribute name", zap.String("name", name))
		return
	}
	key := strings.ToLower(name)
	if t.sanitizer != nil && strings.HasPrefix(key, "on") {
		return
	}
	val, ok := value.(string)
	if !ok {
		val = format.Stringify(value)
	}
	for i := range el.Attr {
		if el.Attr[i].Key == key {
			el.Attr[i].Val = val
			return
		}
	}
	el.Attr = append(el.Attr, html.Attribute{Key: key, Val: val})
}

// document returns the body of the scratch document, creating it on first
// use.
func (t *markupTransform) document() *html.Node {
	if t.scratch != nil {
		return t.scratch
	}
	doc, err := html.Parse(strings.NewReader("<!DOCTYPE html><html><head><title>sandbox</title></head><body></body></html>"))
	if err == nil {
		t.scratch = goquery.NewDocumentFromNode(doc).Find("body").Get(0)
	}
	if t.scratch == nil {
		t.scratch = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	return t.scratch
}

package rss

import (
	"errors"
	"io"
	"strings"

	xpp "github.com/mmcdole/goxpp"
	"golang.org/x/net/html/charset"

	"github.com/bryan-buckman/cringecast/internal/model"
)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

// BuildTree converts an RSS, RDF or Atom document into generic metadata: the
// channel (or Atom feed) element and each item (or entry) in document order.
//
// Elements holding only text become strings, attributes are stored under
// "@name", text next to attributes or children under "#text", and repeated
// elements become slices. Namespaced names keep their document prefix, e.g.
// "itunes:episode".
func BuildTree(r io.Reader) (model.Metadata, []model.Metadata, error) {
	p := xpp.NewXMLPullParser(r, false, charset.NewReaderLabel)
	for {
		ev, err := p.Next()
		if err != nil {
			return nil, nil, err
		}
		if ev == xpp.EndDocument {
			return nil, nil, errors.New("document has no root element")
		}
		if ev == xpp.StartTag {
			break
		}
	}

	rootName := p.Name
	root, err := readElement(p)
	if err != nil {
		return nil, nil, err
	}
	rootMeta, _ := root.(model.Metadata)
	if rootMeta == nil {
		return nil, nil, errors.New("document root is empty")
	}

	switch strings.ToLower(rootName) {
	case "rss":
		channel, _ := first(rootMeta["channel"]).(model.Metadata)
		if channel == nil {
			return nil, nil, errors.New("rss document has no channel")
		}
		return channel, children(channel["item"]), nil
	case "rdf":
		channel, _ := first(rootMeta["channel"]).(model.Metadata)
		return channel, children(rootMeta["item"]), nil
	case "feed":
		return rootMeta, children(rootMeta["entry"]), nil
	default:
		return nil, nil, errors.New("unsupported document root " + rootName)
	}
}

func readElement(p *xpp.XMLPullParser) (any, error) {
	node := model.Metadata{}
	for _, attr := range p.Attrs {
		if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
			continue
		}
		node["@"+qualify(p, attr.Name.Space, attr.Name.Local)] = attr.Value
	}

	var text strings.Builder
	for {
		ev, err := p.Next()
		if err != nil {
			return nil, err
		}
		switch ev {
		case xpp.StartTag:
			name := qualify(p, p.Space, p.Name)
			child, err := readElement(p)
			if err != nil {
				return nil, err
			}
			addChild(node, name, child)
		case xpp.Text:
			text.WriteString(p.Text)
		case xpp.EndTag:
			t := strings.TrimSpace(text.String())
			if len(node) == 0 {
				return t, nil
			}
			if t != "" {
				node["#text"] = t
			}
			return node, nil
		case xpp.EndDocument:
			return nil, io.ErrUnexpectedEOF
		}
	}
}

// qualify maps a resolved namespace back to the prefix the document used.
func qualify(p *xpp.XMLPullParser, space, local string) string {
	if space == "" {
		return local
	}
	if space == xmlNamespace {
		return "xml:" + local
	}
	prefix, ok := p.Spaces[space]
	if !ok {
		// Undeclared prefixes are left untranslated by the decoder.
		prefix = space
	}
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

func addChild(node model.Metadata, name string, child any) {
	existing, ok := node[name]
	if !ok {
		node[name] = child
		return
	}
	if list, ok := existing.([]any); ok {
		node[name] = append(list, child)
		return
	}
	node[name] = []any{existing, child}
}

func first(v any) any {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return v
}

func children(v any) []model.Metadata {
	var values []any
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		values = t
	default:
		values = []any{t}
	}
	out := make([]model.Metadata, 0, len(values))
	for _, value := range values {
		switch m := value.(type) {
		case model.Metadata:
			out = append(out, m)
		case string:
			// An empty <item/> collapses to text.
			out = append(out, model.Metadata{"#text": m})
		}
	}
	return out
}

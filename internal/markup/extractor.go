// Package markup extracts ordering question definitions from presentation HTML.
//
// An ordering question is written as
//
//	<asq-order-q uid="..." sortable="li" attr-for-sorted="name">
//	  <asq-stem>Order the lifecycle callbacks</asq-stem>
//	  <ol><li name="created">..</li><li name="attached">..</li></ol>
//	</asq-order-q>
//
// Items are the attr-for-sorted values (default "name") of descendants matching
// the sortable CSS selector (default "*"), in document order. The HTML parser
// lowercases attribute names, so attr-for-sorted is matched case-insensitively.
package markup

import (
	"bytes"
	"fmt"
	"strings"

	"asq-order-service/internal/domain"
	"github.com/andybalholm/cascadia"
	"github.com/oklog/ulid/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	stemTag            = "asq-stem"
	defaultSortable    = "*"
	defaultAttrForSort = "name"
	attrUID            = "uid"
	attrSortable       = "sortable"
	attrAttrForSorted  = "attr-for-sorted"
)

// Extractor finds ordering questions in markup. NewUID generates uids for
// questions that lack one.
type Extractor struct {
	NewUID func() string
}

func NewExtractor() *Extractor {
	return &Extractor{NewUID: func() string { return ulid.Make().String() }}
}

// Extract returns the markup with missing uids filled in, plus one question per
// ordering element.
func (e *Extractor) Extract(presentationID, src string) (string, []domain.Question, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return "", nil, fmt.Errorf("parse markup: %w", err)
	}

	questions := make([]domain.Question, 0)
	for _, n := range nodes {
		var walkErr error
		walk(n, func(el *html.Node) bool {
			if el.Data != domain.QuestionType {
				return true
			}
			q, err := e.process(presentationID, el)
			if err != nil {
				walkErr = err
				return false
			}
			questions = append(questions, q)
			// nested questions are not supported
			return false
		})
		if walkErr != nil {
			return "", nil, walkErr
		}
	}

	var out bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&out, n); err != nil {
			return "", nil, fmt.Errorf("render markup: %w", err)
		}
	}
	return out.String(), questions, nil
}

func (e *Extractor) process(presentationID string, el *html.Node) (domain.Question, error) {
	uid := strings.TrimSpace(attr(el, attrUID))
	if uid == "" {
		uid = e.NewUID()
		setAttr(el, attrUID, uid)
	}

	sortable := attr(el, attrSortable)
	if sortable == "" {
		sortable = defaultSortable
	}
	sel, err := cascadia.Compile(sortable)
	if err != nil {
		return domain.Question{}, fmt.Errorf("question %s: sortable selector %q: %w", uid, sortable, err)
	}
	attrForSorted := strings.ToLower(attr(el, attrAttrForSorted))
	if attrForSorted == "" {
		attrForSorted = defaultAttrForSort
	}

	stem := ""
	items := make([]string, 0)
	stemFound := false
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		walk(c, func(d *html.Node) bool {
			if !stemFound && d.Data == stemTag {
				stem = innerHTML(d)
				stemFound = true
			}
			if sel.Match(d) {
				if v, ok := lookupAttr(d, attrForSorted); ok {
					items = append(items, v)
				}
			}
			return true
		})
	}

	var outer bytes.Buffer
	if err := html.Render(&outer, el); err != nil {
		return domain.Question{}, fmt.Errorf("render question %s: %w", uid, err)
	}

	return domain.Question{
		UID:            uid,
		Type:           domain.QuestionType,
		PresentationID: presentationID,
		Stem:           stem,
		HTML:           outer.String(),
		Items:          items,
	}, nil
}

// walk visits element nodes depth-first; visit returns false to skip children.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if n.Type == html.ElementNode && !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func innerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return strings.TrimSpace(buf.String())
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

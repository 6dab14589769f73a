// Package htmlquery implements XPath schema extraction using
// antchfx/htmlquery.
package htmlquery

import (
	"context"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"github.com/fwojciec/crawlkit"
	"golang.org/x/net/html"
)

var (
	_ crawlkit.ExtractionStrategy = (*SchemaStrategy)(nil)
	_ crawlkit.Fingerprinter      = (*SchemaStrategy)(nil)
)

// SchemaStrategy extracts repeated records described by an XPath schema.
// Field selectors are evaluated relative to each base node.
type SchemaStrategy struct {
	schema crawlkit.ExtractionSchema
	base   *xpath.Expr
	fields []compiledField
}

type compiledField struct {
	crawlkit.SchemaField
	expr *xpath.Expr
}

// NewSchemaStrategy compiles schema. It returns EINVALID when the schema is
// incomplete or any expression is malformed.
func NewSchemaStrategy(schema crawlkit.ExtractionSchema) (*SchemaStrategy, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	base, err := xpath.Compile(schema.BaseSelector)
	if err != nil {
		return nil, crawlkit.Errorf(crawlkit.EINVALID, "invalid base xpath %q: %v", schema.BaseSelector, err)
	}

	s := &SchemaStrategy{schema: schema, base: base}
	for _, f := range schema.Fields {
		cf := compiledField{SchemaField: f}
		if f.Selector != "" {
			expr, err := xpath.Compile(f.Selector)
			if err != nil {
				return nil, crawlkit.Errorf(crawlkit.EINVALID, "invalid xpath for field %q: %v", f.Name, err)
			}
			cf.expr = expr
		}
		s.fields = append(s.fields, cf)
	}
	return s, nil
}

func (s *SchemaStrategy) Name() string {
	return "xpath"
}

func (s *SchemaStrategy) Fingerprint() string {
	return s.schema.Fingerprint()
}

func (s *SchemaStrategy) InputFormat() crawlkit.InputFormat {
	return crawlkit.InputHTML
}

// Extract returns one map per base node across all chunks.
func (s *SchemaStrategy) Extract(ctx context.Context, _ string, chunks []string) (any, error) {
	records := []map[string]string{}
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := htmlquery.Parse(strings.NewReader(chunk))
		if err != nil {
			return nil, crawlkit.Errorf(crawlkit.EINVALID, "failed to parse HTML: %v", err)
		}
		for _, n := range htmlquery.QuerySelectorAll(doc, s.base) {
			if rec := s.record(n); len(rec) > 0 {
				records = append(records, rec)
			}
		}
	}
	return records, nil
}

func (s *SchemaStrategy) record(n *html.Node) map[string]string {
	rec := make(map[string]string, len(s.fields))
	for _, f := range s.fields {
		target := n
		if f.expr != nil {
			target = htmlquery.QuerySelector(n, f.expr)
		}
		if target == nil {
			continue
		}
		rec[f.Name] = fieldValue(target, f.SchemaField)
	}
	return rec
}

func fieldValue(n *html.Node, f crawlkit.SchemaField) string {
	switch f.Type {
	case crawlkit.FieldAttribute:
		return htmlquery.SelectAttr(n, f.Attribute)
	case crawlkit.FieldHTML:
		return strings.TrimSpace(htmlquery.OutputHTML(n, false))
	default:
		if n.Type == html.TextNode { // htmlquery returns attribute selections as TextNode
			return strings.TrimSpace(htmlquery.InnerText(n))
		}
		return strings.Join(strings.Fields(htmlquery.InnerText(n)), " ")
	}
}

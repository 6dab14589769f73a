package goquery

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/fwojciec/crawlkit"
)

var (
	_ crawlkit.ExtractionStrategy = (*SchemaStrategy)(nil)
	_ crawlkit.Fingerprinter      = (*SchemaStrategy)(nil)
)

// SchemaStrategy extracts repeated records described by a CSS schema. Each
// element matched by the base selector becomes one record.
type SchemaStrategy struct {
	schema crawlkit.ExtractionSchema
	base   cascadia.Selector
	fields []compiledField
}

type compiledField struct {
	crawlkit.SchemaField
	matcher cascadia.Selector
}

// NewSchemaStrategy compiles schema. It returns EINVALID when the schema is
// incomplete or any selector is malformed.
func NewSchemaStrategy(schema crawlkit.ExtractionSchema) (*SchemaStrategy, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	base, err := cascadia.Compile(schema.BaseSelector)
	if err != nil {
		return nil, crawlkit.Errorf(crawlkit.EINVALID, "invalid base selector %q: %v", schema.BaseSelector, err)
	}

	s := &SchemaStrategy{schema: schema, base: base}
	for _, f := range schema.Fields {
		cf := compiledField{SchemaField: f}
		if f.Selector != "" {
			m, err := cascadia.Compile(f.Selector)
			if err != nil {
				return nil, crawlkit.Errorf(crawlkit.EINVALID, "invalid selector for field %q: %v", f.Name, err)
			}
			cf.matcher = m
		}
		s.fields = append(s.fields, cf)
	}
	return s, nil
}

func (s *SchemaStrategy) Name() string {
	return "css"
}

func (s *SchemaStrategy) Fingerprint() string {
	return s.schema.Fingerprint()
}

func (s *SchemaStrategy) InputFormat() crawlkit.InputFormat {
	return crawlkit.InputHTML
}

// Extract returns one map per base element across all chunks. Fields whose
// selector matches nothing are omitted from the record.
func (s *SchemaStrategy) Extract(ctx context.Context, _ string, chunks []string) (any, error) {
	records := []map[string]string{}
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(chunk))
		if err != nil {
			return nil, crawlkit.Errorf(crawlkit.EINVALID, "failed to parse HTML: %v", err)
		}
		doc.FindMatcher(s.base).Each(func(_ int, el *goquery.Selection) {
			if rec := s.record(el); len(rec) > 0 {
				records = append(records, rec)
			}
		})
	}
	return records, nil
}

func (s *SchemaStrategy) record(el *goquery.Selection) map[string]string {
	rec := make(map[string]string, len(s.fields))
	for _, f := range s.fields {
		target := el
		if f.matcher != nil {
			target = el.FindMatcher(f.matcher).First()
		}
		if target.Length() == 0 {
			continue
		}
		if v, ok := fieldValue(target, f.SchemaField); ok {
			rec[f.Name] = v
		}
	}
	return rec
}

func fieldValue(sel *goquery.Selection, f crawlkit.SchemaField) (string, bool) {
	switch f.Type {
	case crawlkit.FieldAttribute:
		return sel.Attr(f.Attribute)
	case crawlkit.FieldHTML:
		h, err := sel.Html()
		if err != nil {
			return "", false
		}
		return strings.TrimSpace(h), true
	default:
		return strings.Join(strings.Fields(sel.Text()), " "), true
	}
}

// Package htmltomarkdown generates markdown from cleaned HTML using
// JohannesKaufmann/html-to-markdown.
package htmltomarkdown

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/fwojciec/crawlkit"
)

var _ crawlkit.MarkdownGenerator = (*Generator)(nil)

// Generator converts HTML to markdown. With a content filter it also
// produces fit markdown from the filtered HTML.
type Generator struct {
	conv   *converter.Converter
	filter crawlkit.ContentFilter
}

// NewGenerator returns a Generator. filter may be nil.
func NewGenerator(filter crawlkit.ContentFilter) *Generator {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	return &Generator{conv: conv, filter: filter}
}

// Generate converts html, resolving relative links against baseURL. A
// filter failure leaves the fit fields empty without failing the call.
func (g *Generator) Generate(html, baseURL string) (*crawlkit.MarkdownResult, error) {
	if strings.TrimSpace(html) == "" {
		return nil, crawlkit.Errorf(crawlkit.EINVALID, "empty HTML input")
	}

	md, err := g.convert(html, baseURL)
	if err != nil {
		return nil, err
	}
	result := &crawlkit.MarkdownResult{Markdown: md}

	if g.filter == nil {
		return result, nil
	}
	fit, err := g.filter.Filter(html, baseURL)
	if err != nil || strings.TrimSpace(fit) == "" {
		return result, nil
	}
	fitMD, err := g.convert(fit, baseURL)
	if err != nil {
		return result, nil
	}
	result.FitHTML = fit
	result.FitMarkdown = fitMD
	return result, nil
}

func (g *Generator) convert(html, baseURL string) (string, error) {
	var opts []converter.ConvertOptionFunc
	if baseURL != "" {
		opts = append(opts, converter.WithDomain(baseURL))
	}
	md, err := g.conv.ConvertString(html, opts...)
	if err != nil {
		return "", crawlkit.Errorf(crawlkit.EINTERNAL, "markdown conversion failed: %v", err)
	}
	return md, nil
}

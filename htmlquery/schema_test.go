package htmlquery_test

import (
	"context"
	"testing"

	"github.com/fwojciec/crawlkit"
	"github.com/fwojciec/crawlkit/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articles = `<div>
	<article><h2>First</h2><a href="/first">read</a><time datetime="2024-01-01">Jan 1</time></article>
	<article><h2>Second <em>post</em></h2><a href="/second">read</a></article>
</div>`

func TestSchemaStrategy(t *testing.T) {
	t.Parallel()

	t.Run("extracts records relative to each base node", func(t *testing.T) {
		t.Parallel()

		s, err := htmlquery.NewSchemaStrategy(crawlkit.ExtractionSchema{
			BaseSelector: "//article",
			Fields: []crawlkit.SchemaField{
				{Name: "title", Selector: ".//h2"},
				{Name: "href", Selector: ".//a", Type: crawlkit.FieldAttribute, Attribute: "href"},
				{Name: "date", Selector: ".//time", Type: crawlkit.FieldAttribute, Attribute: "datetime"},
			},
		})
		require.NoError(t, err)

		got, err := s.Extract(context.Background(), "https://blog.example.com", []string{articles})

		require.NoError(t, err)
		assert.Equal(t, []map[string]string{
			{"title": "First", "href": "/first", "date": "2024-01-01"},
			{"title": "Second post", "href": "/second"},
		}, got)
	})

	t.Run("reads inner html", func(t *testing.T) {
		t.Parallel()

		s, err := htmlquery.NewSchemaStrategy(crawlkit.ExtractionSchema{
			BaseSelector: "//article",
			Fields:       []crawlkit.SchemaField{{Name: "heading", Selector: ".//h2", Type: crawlkit.FieldHTML}},
		})
		require.NoError(t, err)

		got, err := s.Extract(context.Background(), "", []string{articles})

		require.NoError(t, err)
		records := got.([]map[string]string)
		require.Len(t, records, 2)
		assert.Equal(t, "Second <em>post</em>", records[1]["heading"])
	})

	t.Run("declares html input", func(t *testing.T) {
		t.Parallel()

		s, err := htmlquery.NewSchemaStrategy(crawlkit.ExtractionSchema{
			BaseSelector: "//li",
			Fields:       []crawlkit.SchemaField{{Name: "text"}},
		})
		require.NoError(t, err)

		assert.Equal(t, "xpath", s.Name())
		assert.Equal(t, crawlkit.InputHTML, s.InputFormat())
	})

	t.Run("rejects malformed expressions", func(t *testing.T) {
		t.Parallel()

		_, err := htmlquery.NewSchemaStrategy(crawlkit.ExtractionSchema{
			BaseSelector: "//article[",
			Fields:       []crawlkit.SchemaField{{Name: "text"}},
		})

		assert.Equal(t, crawlkit.EINVALID, crawlkit.ErrorCode(err))
	})
}

func TestSchemaStrategy_Fingerprint(t *testing.T) {
	t.Parallel()

	schema := func(title string) crawlkit.ExtractionSchema {
		return crawlkit.ExtractionSchema{
			BaseSelector: "//article",
			Fields:       []crawlkit.SchemaField{{Name: "title", Selector: title}},
		}
	}
	a, err := htmlquery.NewSchemaStrategy(schema(".//h2"))
	require.NoError(t, err)
	b, err := htmlquery.NewSchemaStrategy(schema(".//h3"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

// Package gemini implements LLM-driven extraction using Google Gemini.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fwojciec/crawlkit"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

// Extractor defaults.
const (
	DefaultModel          = "gemini-2.5-flash"
	DefaultTokenBudget    = 2048
	DefaultMaxConcurrency = 4
)

var (
	_ crawlkit.ExtractionStrategy = (*Extractor)(nil)
	_ crawlkit.Fingerprinter      = (*Extractor)(nil)
)

// Models is the part of *genai.Models the extractor calls.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// TokenCounter counts tokens in text.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// Extractor asks Gemini to extract JSON records from text chunks. Chunks
// are merged into batches of at most TokenBudget tokens; each batch is one
// request and the returned arrays are concatenated in chunk order.
type Extractor struct {
	models      Models
	instruction string

	Model          string
	TokenBudget    int
	MaxConcurrency int

	// Counter sizes batches. Nil estimates four tokens per three words.
	Counter TokenCounter
}

// NewExtractor returns an Extractor that follows instruction, e.g. "list
// every product with its name and price".
func NewExtractor(models Models, instruction string) *Extractor {
	return &Extractor{
		models:         models,
		instruction:    instruction,
		Model:          DefaultModel,
		TokenBudget:    DefaultTokenBudget,
		MaxConcurrency: DefaultMaxConcurrency,
	}
}

func (e *Extractor) Name() string {
	return "llm"
}

// Fingerprint covers the instruction, the model and the batching budget.
func (e *Extractor) Fingerprint() string {
	return fmt.Sprintf("model=%s|budget=%d|%q", e.model(), e.TokenBudget, e.instruction)
}

func (e *Extractor) InputFormat() crawlkit.InputFormat {
	return crawlkit.InputText
}

// Extract implements crawlkit.ExtractionStrategy.
func (e *Extractor) Extract(ctx context.Context, url string, chunks []string) (any, error) {
	if e.models == nil {
		return nil, crawlkit.Errorf(crawlkit.EINVALID, "gemini client required")
	}
	if strings.TrimSpace(e.instruction) == "" {
		return nil, crawlkit.Errorf(crawlkit.EINVALID, "extraction instruction required")
	}

	batches, err := e.batch(ctx, chunks)
	if err != nil {
		return nil, err
	}

	results := make([][]any, len(batches))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.MaxConcurrency, 1))
	for i, b := range batches {
		g.Go(func() error {
			records, err := e.extractBatch(ctx, url, i, b)
			if err != nil {
				return err
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := []any{}
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

func (e *Extractor) extractBatch(ctx context.Context, url string, index int, text string) ([]any, error) {
	result, err := e.models.GenerateContent(ctx, e.model(),
		[]*genai.Content{{
			Parts: []*genai.Part{{Text: BuildUserPrompt(url, text)}},
		}},
		BuildConfig(e.instruction),
	)
	if err != nil {
		return nil, crawlkit.Errorf(crawlkit.EUNAVAILABLE, "gemini: %v", err)
	}
	if result == nil {
		return nil, crawlkit.Errorf(crawlkit.EINTERNAL, "gemini returned nil result")
	}
	return parseRecords(index, result.Text()), nil
}

// parseRecords decodes a JSON array reply. A single object is wrapped; any
// other reply is kept verbatim as an error record.
func parseRecords(index int, reply string) []any {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimSuffix(strings.TrimPrefix(reply, "```"), "```")

	var records []any
	if err := json.Unmarshal([]byte(reply), &records); err == nil {
		return records
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(reply), &record); err == nil {
		return []any{record}
	}
	return []any{map[string]any{
		"index":   index,
		"error":   true,
		"content": reply,
	}}
}

// batch merges consecutive chunks while they fit the token budget. A chunk
// larger than the budget forms its own batch.
func (e *Extractor) batch(ctx context.Context, chunks []string) ([]string, error) {
	budget := e.TokenBudget
	if budget <= 0 {
		budget = DefaultTokenBudget
	}

	var batches []string
	var current []string
	var used int
	for _, c := range chunks {
		if strings.TrimSpace(c) == "" {
			continue
		}
		n, err := e.countTokens(ctx, c)
		if err != nil {
			return nil, err
		}
		if len(current) > 0 && used+n > budget {
			batches = append(batches, strings.Join(current, "\n\n"))
			current, used = nil, 0
		}
		current = append(current, c)
		used += n
	}
	if len(current) > 0 {
		batches = append(batches, strings.Join(current, "\n\n"))
	}
	return batches, nil
}

func (e *Extractor) countTokens(ctx context.Context, text string) (int, error) {
	if e.Counter == nil {
		return len(strings.Fields(text)) * 4 / 3, nil
	}
	n, err := e.Counter.CountTokens(ctx, text)
	if err != nil {
		return 0, crawlkit.Errorf(crawlkit.EINTERNAL, "count tokens: %v", err)
	}
	return n, nil
}

func (e *Extractor) model() string {
	if e.Model == "" {
		return DefaultModel
	}
	return e.Model
}

// BuildConfig returns the GenerateContentConfig for extraction calls.
func BuildConfig(instruction string) *genai.GenerateContentConfig {
	temp := float32(0.1)
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{
				Text: "You extract structured data from web page content. Reply with a JSON array of objects and nothing else. " +
					"Use only information present in the content. Return an empty array when nothing matches.\n\n" +
					"Instruction: " + instruction,
			}},
		},
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}
}

// BuildUserPrompt builds the user prompt carrying a page's content.
func BuildUserPrompt(url, content string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<url>%s</url>\n", url)
	fmt.Fprintf(&sb, "<content>\n%s\n</content>", content)
	return sb.String()
}

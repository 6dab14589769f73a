// Package chunk provides the chunking strategies used to split page text
// before extraction.
package chunk

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fwojciec/crawlkit"
)

// Defaults for the word-based strategies.
const (
	DefaultPattern       = `\n\n+`
	DefaultWordsPerChunk = 100
	DefaultWindowSize    = 100
	DefaultStepSize      = 50
	DefaultOverlap       = 20
)

// Strategy names accepted by New.
const (
	NameIdentity          = "identity"
	NameRegex             = "regex"
	NameFixedLengthWord   = "fixed_length_word"
	NameSlidingWindow     = "sliding_window"
	NameOverlappingWindow = "overlapping_window"
)

var (
	_ crawlkit.Chunker = Identity{}
	_ crawlkit.Chunker = (*Regex)(nil)
	_ crawlkit.Chunker = FixedLengthWord{}
	_ crawlkit.Chunker = SlidingWindow{}
	_ crawlkit.Chunker = OverlappingWindow{}

	_ crawlkit.Fingerprinter = (*Regex)(nil)
	_ crawlkit.Fingerprinter = FixedLengthWord{}
	_ crawlkit.Fingerprinter = SlidingWindow{}
	_ crawlkit.Fingerprinter = OverlappingWindow{}
)

// New returns the named strategy with its default parameters.
func New(name string) (crawlkit.Chunker, error) {
	switch name {
	case NameIdentity:
		return Identity{}, nil
	case "", NameRegex:
		return NewRegex()
	case NameFixedLengthWord:
		return FixedLengthWord{}, nil
	case NameSlidingWindow:
		return SlidingWindow{}, nil
	case NameOverlappingWindow:
		return OverlappingWindow{}, nil
	}
	return nil, crawlkit.Errorf(crawlkit.EINVALID, "unknown chunking strategy %q", name)
}

// Identity returns the content as a single chunk.
type Identity struct{}

func (Identity) Name() string { return NameIdentity }

func (Identity) Chunk(content string) []string {
	if content == "" {
		return []string{}
	}
	return []string{content}
}

var defaultPattern = regexp.MustCompile(DefaultPattern)

// Default returns the Regex strategy splitting on blank lines.
func Default() *Regex {
	return &Regex{patterns: []*regexp.Regexp{defaultPattern}}
}

// Regex splits content on each of its patterns in turn. Pieces are trimmed
// and empty pieces are dropped.
type Regex struct {
	patterns []*regexp.Regexp
}

// NewRegex compiles the patterns. With no patterns DefaultPattern is used.
func NewRegex(patterns ...string) (*Regex, error) {
	if len(patterns) == 0 {
		patterns = []string{DefaultPattern}
	}
	r := &Regex{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, crawlkit.Errorf(crawlkit.EINVALID, "invalid chunking pattern %q: %v", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

func (r *Regex) Name() string { return NameRegex }

func (r *Regex) Fingerprint() string {
	patterns := make([]string, len(r.patterns))
	for i, re := range r.patterns {
		patterns[i] = fmt.Sprintf("%q", re.String())
	}
	return strings.Join(patterns, ",")
}

func (r *Regex) Chunk(content string) []string {
	pieces := []string{content}
	for _, re := range r.patterns {
		var next []string
		for _, p := range pieces {
			next = append(next, re.Split(p, -1)...)
		}
		pieces = next
	}

	chunks := []string{}
	for _, p := range pieces {
		if p = strings.TrimSpace(p); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks
}

// FixedLengthWord groups consecutive words into chunks of WordsPerChunk words.
type FixedLengthWord struct {
	// WordsPerChunk defaults to DefaultWordsPerChunk.
	WordsPerChunk int
}

func (FixedLengthWord) Name() string { return NameFixedLengthWord }

func (f FixedLengthWord) Fingerprint() string {
	return fmt.Sprintf("size=%d", f.size())
}

func (f FixedLengthWord) Chunk(content string) []string {
	size := f.size()
	return windows(strings.Fields(content), size, size)
}

func (f FixedLengthWord) size() int {
	if f.WordsPerChunk <= 0 {
		return DefaultWordsPerChunk
	}
	return f.WordsPerChunk
}

// SlidingWindow emits a window of WindowSize words every StepSize words.
type SlidingWindow struct {
	WindowSize int
	StepSize   int
}

func (SlidingWindow) Name() string { return NameSlidingWindow }

func (s SlidingWindow) Fingerprint() string {
	size, step := s.params()
	return fmt.Sprintf("size=%d|step=%d", size, step)
}

func (s SlidingWindow) Chunk(content string) []string {
	size, step := s.params()
	return windows(strings.Fields(content), size, step)
}

func (s SlidingWindow) params() (size, step int) {
	size, step = s.WindowSize, s.StepSize
	if size <= 0 {
		size = DefaultWindowSize
	}
	if step <= 0 {
		step = DefaultStepSize
	}
	return size, step
}

// OverlappingWindow emits chunks of ChunkSize words where consecutive chunks
// share Overlap words. Overlap is clamped below ChunkSize. The zero value
// uses DefaultWindowSize and DefaultOverlap.
type OverlappingWindow struct {
	ChunkSize int
	Overlap   int
}

func (OverlappingWindow) Name() string { return NameOverlappingWindow }

func (o OverlappingWindow) Fingerprint() string {
	size, overlap := o.params()
	return fmt.Sprintf("size=%d|overlap=%d", size, overlap)
}

func (o OverlappingWindow) Chunk(content string) []string {
	size, overlap := o.params()
	return windows(strings.Fields(content), size, size-overlap)
}

func (o OverlappingWindow) params() (size, overlap int) {
	size, overlap = o.ChunkSize, o.Overlap
	if size <= 0 {
		size = DefaultWindowSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if o.Overlap == 0 && o.ChunkSize == 0 {
		overlap = DefaultOverlap
	}
	return size, min(overlap, size-1)
}

// windows joins words[i:i+size] for every i that is a multiple of step.
func windows(words []string, size, step int) []string {
	chunks := []string{}
	for i := 0; i < len(words); i += step {
		end := min(i+size, len(words))
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}

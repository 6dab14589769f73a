package chunk_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/fwojciec/crawlkit"
	"github.com/fwojciec/crawlkit/chunk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(w, " ")
}

func allStrategies(t *testing.T) []crawlkit.Chunker {
	t.Helper()

	regex, err := chunk.NewRegex()
	require.NoError(t, err)
	return []crawlkit.Chunker{
		chunk.Identity{},
		regex,
		chunk.FixedLengthWord{},
		chunk.SlidingWindow{},
		chunk.OverlappingWindow{},
	}
}

func TestChunk_EmptyInput(t *testing.T) {
	t.Parallel()

	for _, c := range allStrategies(t) {
		t.Run(c.Name(), func(t *testing.T) {
			t.Parallel()

			got := c.Chunk("")
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	t.Run("returns content as single chunk", func(t *testing.T) {
		t.Parallel()

		content := "first paragraph\n\nsecond paragraph"
		assert.Equal(t, []string{content}, chunk.Identity{}.Chunk(content))
	})
}

func TestRegex(t *testing.T) {
	t.Parallel()

	t.Run("splits on blank lines by default", func(t *testing.T) {
		t.Parallel()

		r, err := chunk.NewRegex()
		require.NoError(t, err)

		got := r.Chunk("  one  \n\n\ntwo\n\n   \n\nthree")
		assert.Equal(t, []string{"one", "two", "three"}, got)
	})

	t.Run("applies patterns in turn", func(t *testing.T) {
		t.Parallel()

		r, err := chunk.NewRegex(`\n\n+`, `;`)
		require.NoError(t, err)

		got := r.Chunk("a;b\n\nc")
		assert.Equal(t, []string{"a", "b", "c"}, got)
	})

	t.Run("rejects invalid pattern", func(t *testing.T) {
		t.Parallel()

		_, err := chunk.NewRegex(`(`)
		assert.Equal(t, crawlkit.EINVALID, crawlkit.ErrorCode(err))
	})
}

func TestFixedLengthWord(t *testing.T) {
	t.Parallel()

	t.Run("groups words", func(t *testing.T) {
		t.Parallel()

		got := chunk.FixedLengthWord{WordsPerChunk: 2}.Chunk("a b c d e")
		assert.Equal(t, []string{"a b", "c d", "e"}, got)
	})

	t.Run("defaults to 100 words", func(t *testing.T) {
		t.Parallel()

		got := chunk.FixedLengthWord{}.Chunk(words(250))
		require.Len(t, got, 3)
		assert.Len(t, strings.Fields(got[0]), 100)
		assert.Len(t, strings.Fields(got[2]), 50)
	})

	t.Run("whitespace only yields nothing", func(t *testing.T) {
		t.Parallel()

		assert.Empty(t, chunk.FixedLengthWord{}.Chunk(" \n\t "))
	})
}

func TestSlidingWindow(t *testing.T) {
	t.Parallel()

	t.Run("slides by step", func(t *testing.T) {
		t.Parallel()

		got := chunk.SlidingWindow{WindowSize: 3, StepSize: 2}.Chunk("a b c d e")
		assert.Equal(t, []string{"a b c", "c d e", "e"}, got)
	})

	t.Run("short text is one window", func(t *testing.T) {
		t.Parallel()

		got := chunk.SlidingWindow{}.Chunk("a b c")
		assert.Equal(t, []string{"a b c"}, got)
	})
}

func TestOverlappingWindow(t *testing.T) {
	t.Parallel()

	t.Run("overlaps consecutive chunks", func(t *testing.T) {
		t.Parallel()

		got := chunk.OverlappingWindow{ChunkSize: 4, Overlap: 1}.Chunk("a b c d e f g")
		assert.Equal(t, []string{"a b c d", "d e f g", "g"}, got)
	})

	t.Run("clamps overlap below chunk size", func(t *testing.T) {
		t.Parallel()

		got := chunk.OverlappingWindow{ChunkSize: 2, Overlap: 5}.Chunk("a b c")
		assert.Equal(t, []string{"a b", "b c", "c"}, got)
	})

	t.Run("zero value uses defaults", func(t *testing.T) {
		t.Parallel()

		got := chunk.OverlappingWindow{}.Chunk(words(180))
		require.Len(t, got, 3)
		assert.True(t, strings.HasPrefix(got[1], "w80 "))
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("builds named strategies", func(t *testing.T) {
		t.Parallel()

		for _, name := range []string{
			chunk.NameIdentity,
			chunk.NameRegex,
			chunk.NameFixedLengthWord,
			chunk.NameSlidingWindow,
			chunk.NameOverlappingWindow,
		} {
			c, err := chunk.New(name)
			require.NoError(t, err)
			assert.Equal(t, name, c.Name())
		}
	})

	t.Run("empty name is regex", func(t *testing.T) {
		t.Parallel()

		c, err := chunk.New("")
		require.NoError(t, err)
		assert.Equal(t, chunk.NameRegex, c.Name())
	})

	t.Run("rejects unknown name", func(t *testing.T) {
		t.Parallel()

		_, err := chunk.New("sentences")
		assert.Equal(t, crawlkit.EINVALID, crawlkit.ErrorCode(err))
	})
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	t.Run("regex follows its patterns", func(t *testing.T) {
		t.Parallel()

		def, err := chunk.NewRegex()
		require.NoError(t, err)
		explicit, err := chunk.NewRegex(chunk.DefaultPattern)
		require.NoError(t, err)
		other, err := chunk.NewRegex(`\n`)
		require.NoError(t, err)

		assert.Equal(t, def.Fingerprint(), explicit.Fingerprint())
		assert.NotEqual(t, def.Fingerprint(), other.Fingerprint())
	})

	t.Run("windows follow their effective sizes", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t,
			chunk.FixedLengthWord{}.Fingerprint(),
			chunk.FixedLengthWord{WordsPerChunk: chunk.DefaultWordsPerChunk}.Fingerprint())
		assert.NotEqual(t,
			chunk.FixedLengthWord{WordsPerChunk: 5}.Fingerprint(),
			chunk.FixedLengthWord{WordsPerChunk: 6}.Fingerprint())
		assert.NotEqual(t,
			chunk.SlidingWindow{WindowSize: 10, StepSize: 5}.Fingerprint(),
			chunk.SlidingWindow{WindowSize: 10, StepSize: 2}.Fingerprint())
		assert.Equal(t,
			chunk.OverlappingWindow{}.Fingerprint(),
			chunk.OverlappingWindow{ChunkSize: chunk.DefaultWindowSize, Overlap: chunk.DefaultOverlap}.Fingerprint())
		assert.NotEqual(t,
			chunk.OverlappingWindow{ChunkSize: 10, Overlap: 2}.Fingerprint(),
			chunk.OverlappingWindow{ChunkSize: 10, Overlap: 3}.Fingerprint())
	})
}

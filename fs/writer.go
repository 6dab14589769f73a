// Package fs writes crawl results to the local filesystem.
package fs

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fwojciec/crawlkit"
	"gopkg.in/yaml.v3"
)

// URLToPath converts a page URL to a relative file path.
// Example: https://example.com/docs/api/users → docs/api/users.md
func URLToPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	p := u.Path
	if p == "" || p == "/" {
		return "index.md", nil
	}
	dir := strings.HasSuffix(p, "/")

	// Clean against a rooted path so ".." cannot climb out.
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		return "index.md", nil
	}
	if dir {
		return p + "/index.md", nil
	}
	return p + ".md", nil
}

// Frontmatter is the YAML header written above each page's markdown.
type Frontmatter struct {
	Source     string    `yaml:"source"`
	Redirected string    `yaml:"redirected,omitempty"`
	Title      string    `yaml:"title,omitempty"`
	Status     int       `yaml:"status"`
	Crawled    time.Time `yaml:"crawled"`
}

// FormatResult renders a result as YAML frontmatter followed by markdown.
// Fit markdown is preferred when present.
func FormatResult(r *crawlkit.CrawlResult, crawled time.Time) (string, error) {
	fm := Frontmatter{
		Source:  r.URL,
		Title:   r.Metadata["title"],
		Status:  r.StatusCode,
		Crawled: crawled.UTC(),
	}
	if r.RedirectedURL != r.URL {
		fm.Redirected = r.RedirectedURL
	}
	header, err := yaml.Marshal(fm)
	if err != nil {
		return "", err
	}

	body := r.FitMarkdown
	if body == "" {
		body = r.Markdown
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.String(), nil
}

// Ensure ResultWriter implements crawlkit.ResultWriter at compile time.
var _ crawlkit.ResultWriter = (*ResultWriter)(nil)

// ResultWriter writes successful results as markdown files under a base
// directory, one file per URL: baseDir/host/path.md. Extracted content, when
// present, is written next to it as path.json. Each file is replaced
// atomically so readers never see a partial write.
type ResultWriter struct {
	baseDir string

	// Now returns the crawl timestamp. Defaults to time.Now.
	Now func() time.Time
}

// NewResultWriter creates a ResultWriter rooted at baseDir.
func NewResultWriter(baseDir string) *ResultWriter {
	return &ResultWriter{baseDir: baseDir}
}

// WriteResult writes r and returns the markdown file's path.
func (w *ResultWriter) WriteResult(ctx context.Context, r *crawlkit.CrawlResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r == nil || !r.Success {
		return "", crawlkit.Errorf(crawlkit.EINVALID, "only successful results can be written")
	}
	if strings.HasPrefix(r.URL, crawlkit.RawPrefix) {
		return "", crawlkit.Errorf(crawlkit.EINVALID, "raw html results have no location to write to")
	}

	u, err := url.Parse(r.URL)
	if err != nil || u.Hostname() == "" {
		return "", crawlkit.Errorf(crawlkit.EINVALID, "cannot derive a path from %q", r.URL)
	}
	rel, err := URLToPath(r.URL)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(w.baseDir, u.Hostname(), filepath.FromSlash(rel))

	content, err := FormatResult(r, w.now())
	if err != nil {
		return "", err
	}
	if err := writeAtomic(fullPath, []byte(content)); err != nil {
		return "", err
	}

	if r.ExtractedContent != "" {
		sidecar := strings.TrimSuffix(fullPath, ".md") + ".json"
		if err := writeAtomic(sidecar, []byte(r.ExtractedContent)); err != nil {
			return "", err
		}
	}
	return fullPath, nil
}

func (w *ResultWriter) now() time.Time {
	if w.Now == nil {
		return time.Now()
	}
	return w.Now()
}

// writeAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeAtomic(name string, data []byte) (err error) {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".crawlkit-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.ReadFrom(bytes.NewReader(data)); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}

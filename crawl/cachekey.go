package crawl

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/crawlkit"
)

// CacheKey returns the cache key for url under cfg. When the configuration
// asks for fingerprinted keys, the key also covers the strategies that shape
// the stored output.
func CacheKey(url string, cfg crawlkit.RunConfig) string {
	if !cfg.FingerprintCacheKey {
		return url
	}
	return url + "#" + Fingerprint(cfg)
}

// Fingerprint hashes the output-shaping parts of cfg, including the
// parameters of its chunking and extraction strategies.
func Fingerprint(cfg crawlkit.RunConfig) string {
	parts := []string{
		"css=" + cfg.CSSSelector,
		"words=" + strconv.Itoa(cfg.WordCountThreshold),
	}
	if cfg.Chunking != nil {
		parts = append(parts, "chunk="+strategyID(cfg.Chunking.Name(), cfg.Chunking))
	}
	if crawlkit.ExtractionEnabled(cfg.Extraction) {
		parts = append(parts, "extract="+strategyID(cfg.Extraction.Name(), cfg.Extraction))
	}
	return fmt.Sprintf("%x", xxhash.Sum64String(strings.Join(parts, "|")))
}

// strategyID identifies a strategy by name and parameters. Strategies without
// a fingerprint are identified by their type and value, which for pointers
// is the instance itself.
func strategyID(name string, s any) string {
	if f, ok := s.(crawlkit.Fingerprinter); ok {
		if fp := f.Fingerprint(); fp != "" {
			return name + ":" + fp
		}
	}
	if v := reflect.ValueOf(s); v.Kind() == reflect.Pointer {
		return fmt.Sprintf("%s:%T@%x", name, s, v.Pointer())
	}
	return fmt.Sprintf("%s:%T:%+v", name, s, s)
}

// flightKey identifies crawls that may share one fetch: same cache key,
// same output-shaping settings, same artifacts, same robots policy.
func flightKey(key string, cfg crawlkit.RunConfig) string {
	return fmt.Sprintf("%s|%s|s=%t|p=%t|r=%t|ua=%s",
		key, Fingerprint(cfg), cfg.Screenshot, cfg.PDF, cfg.CheckRobotsTxt, cfg.UserAgent)
}

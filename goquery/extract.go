package goquery

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/crawlkit"
	"golang.org/x/net/publicsuffix"
)

// extractLinks collects anchors under sel, deduplicated by resolved URL in
// document order. A link is internal when its registrable domain matches
// the page's; without a base URL only relative links count as internal.
func extractLinks(sel *goquery.Selection, base *url.URL) crawlkit.Links {
	links := crawlkit.Links{
		Internal: []crawlkit.Link{},
		External: []crawlkit.Link{},
	}
	seen := make(map[string]bool)

	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href == "" || isNonHTTPLink(href) {
			return
		}

		resolved, ok := resolveURL(base, href)
		if !ok || seen[resolved.String()] {
			return
		}
		seen[resolved.String()] = true

		title, _ := a.Attr("title")
		link := crawlkit.Link{
			Href:  resolved.String(),
			Text:  strings.Join(strings.Fields(a.Text()), " "),
			Title: strings.TrimSpace(title),
		}
		if isInternal(base, resolved) {
			links.Internal = append(links.Internal, link)
		} else {
			links.External = append(links.External, link)
		}
	})
	return links
}

// extractMedia collects images, videos and audio under sel. Data URIs are skipped.
func extractMedia(sel *goquery.Selection, base *url.URL) crawlkit.Media {
	media := crawlkit.Media{
		Images: []crawlkit.MediaItem{},
		Videos: []crawlkit.MediaItem{},
		Audios: []crawlkit.MediaItem{},
	}

	collect := func(selector, kind string, dst *[]crawlkit.MediaItem) {
		sel.Find(selector).Each(func(_ int, s *goquery.Selection) {
			src, _ := s.Attr("src")
			if src == "" || isNonHTTPLink(src) {
				return
			}
			resolved, ok := resolveURL(base, src)
			if !ok {
				return
			}
			alt, _ := s.Attr("alt")
			*dst = append(*dst, crawlkit.MediaItem{
				Src:  resolved.String(),
				Alt:  strings.TrimSpace(alt),
				Type: kind,
			})
		})
	}
	collect("img[src]", "image", &media.Images)
	collect("video[src], video source[src]", "video", &media.Videos)
	collect("audio[src], audio source[src]", "audio", &media.Audios)
	return media
}

// resolveURL resolves href against base and strips the fragment. With a nil
// base, href is returned as parsed.
func resolveURL(base *url.URL, href string) (*url.URL, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	ref.Fragment = ""
	return ref, true
}

func isInternal(base, u *url.URL) bool {
	if u.Host == "" {
		return true
	}
	if base == nil || base.Host == "" {
		return false
	}
	return registrableDomain(u.Hostname()) == registrableDomain(base.Hostname())
}

// registrableDomain returns host's eTLD+1, or host itself when it has none
// (IP addresses, localhost).
func registrableDomain(host string) string {
	host = strings.ToLower(host)
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// isNonHTTPLink checks if a href is a non-HTTP link that should be skipped.
func isNonHTTPLink(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:") ||
		strings.HasPrefix(href, "#")
}

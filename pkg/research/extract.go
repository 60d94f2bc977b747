package research

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"gitlab.com/golang-commonmark/linkify"
	"golang.org/x/net/idna"
)

const (
	minCandidateLength = 9
	maxCanonicalPasses = 8
	defaultScheme      = "https://"
	trailingTrimSet    = ".,;:!?>'\"*_`|"
	leadingTrimSet     = "([{<'\"*_`|"
)

// closers map a trailing bracket to its opener. A closer is only trimmed
// when the candidate does not also contain the opener.
var closers = map[byte]byte{')': '(', ']': '[', '}': '{'}

var trackingParams = map[string]struct{}{
	"fbclid": {},
	"gclid":  {},
	"mc_cid": {},
	"mc_eid": {},
}

// ExtractSources recognizes links in unstructured text and returns them as
// an ordered set keyed by canonical URL. Titles and snippets are left empty;
// callers that know more about a link fill them through SourceSet.Add.
func ExtractSources(text string) []Source {
	set := NewSourceSet()
	for _, candidate := range linkCandidates(text) {
		if src, ok := NewSource(candidate, "", ""); ok {
			set.Add(src)
		}
	}
	return set.List()
}

func linkCandidates(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	links := linkify.Links(text)
	out := make([]string, 0, len(links))
	for _, link := range links {
		if link.Scheme == "mailto:" || link.Start < 0 || link.End > len(text) || link.Start >= link.End {
			continue
		}
		out = append(out, trimCandidate(text[link.Start:link.End]))
	}
	return out
}

// ReplaceLinks rewrites every recognized link in text whose canonical form
// replace accepts. Links it rejects are left untouched.
func ReplaceLinks(text string, replace func(canonical string) (string, bool)) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	var b strings.Builder
	last := 0
	for _, link := range linkify.Links(text) {
		if link.Scheme == "mailto:" || link.Start < last || link.End > len(text) || link.Start >= link.End {
			continue
		}
		span := text[link.Start:link.End]
		trimmed := trimCandidate(span)
		start := link.Start + strings.Index(span, trimmed)
		end := start + len(trimmed)
		canonical, ok := CanonicalURL(trimmed)
		if !ok {
			continue
		}
		replacement, ok := replace(canonical)
		if !ok {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(replacement)
		last = end
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// NewSource builds a Source from a link, returning false when the link is
// not a usable web reference. rawURL is taken as a whole; links cut out of
// prose go through trimCandidate first.
func NewSource(rawURL, title, snippet string) (Source, bool) {
	canonical, ok := CanonicalURL(rawURL)
	if !ok {
		return Source{}, false
	}
	return Source{
		URL:     canonical,
		Domain:  domainOf(canonical),
		Title:   strings.TrimSpace(title),
		Snippet: strings.TrimSpace(snippet),
	}, true
}

// CanonicalURL normalizes a link candidate. The output is a fixed point:
// CanonicalURL(CanonicalURL(x)) == CanonicalURL(x).
func CanonicalURL(raw string) (string, bool) {
	out, ok := canonicalOnce(raw)
	for i := 0; ok && i < maxCanonicalPasses; i++ {
		next, nextOK := canonicalOnce(out)
		if !nextOK {
			return "", false
		}
		if next == out {
			break
		}
		out = next
	}
	return out, ok
}

func canonicalOnce(raw string) (string, bool) {
	candidate := strings.TrimSpace(raw)
	if len(candidate) < minCandidateLength {
		return "", false
	}

	lower := strings.ToLower(candidate)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
	case strings.Contains(lower, "://"), strings.HasPrefix(lower, "mailto:"):
		return "", false
	case strings.HasPrefix(candidate, "//"):
		candidate = "https:" + candidate
	default:
		candidate = defaultScheme + candidate
	}

	parsed, err := url.Parse(candidate)
	if err != nil || parsed.User != nil {
		return "", false
	}
	host, ok := asciiHost(parsed.Hostname())
	if !ok || !validHost(host) {
		return "", false
	}
	if port := parsed.Port(); port != "" {
		host += ":" + port
	}

	escapedPath := strings.TrimRight(parsed.EscapedPath(), "/")
	path, err := url.PathUnescape(escapedPath)
	if err != nil {
		return "", false
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = host
	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.ForceQuery = false
	parsed.Path = path
	parsed.RawPath = escapedPath

	if parsed.RawQuery != "" {
		query := parsed.Query()
		for key := range query {
			lowerKey := strings.ToLower(key)
			if _, drop := trackingParams[lowerKey]; drop || strings.HasPrefix(lowerKey, "utm_") {
				query.Del(key)
			}
		}
		parsed.RawQuery = query.Encode()
	}

	return parsed.String(), true
}

// trimCandidate strips the punctuation prose wraps around a link. A
// trailing bracket stays when its opener is part of the link, as in
// https://en.wikipedia.org/wiki/Chair_(furniture).
func trimCandidate(raw string) string {
	candidate := strings.TrimSpace(raw)
	for {
		trimmed := strings.TrimRight(strings.TrimLeft(candidate, leadingTrimSet), trailingTrimSet)
		if n := len(trimmed); n > 0 {
			if opener, ok := closers[trimmed[n-1]]; ok && strings.Count(trimmed, string(opener)) < strings.Count(trimmed, string(trimmed[n-1])) {
				trimmed = trimmed[:n-1]
			}
		}
		if trimmed == candidate {
			return candidate
		}
		candidate = trimmed
	}
}

// asciiHost lowercases host and converts internationalized names to
// punycode, so a rendered URL reads back as the same host.
func asciiHost(host string) (string, bool) {
	lower := strings.ToLower(host)
	ascii, err := idna.Lookup.ToASCII(lower)
	if err == nil {
		return ascii, true
	}
	// Lookup rejects names such as my_site.example.com that still resolve.
	for i := 0; i < len(lower); i++ {
		if lower[i] >= utf8.RuneSelf {
			return "", false
		}
	}
	return lower, true
}

func validHost(host string) bool {
	if host == "" || !strings.Contains(host, ".") {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" {
			return false
		}
	}
	return true
}

func domainOf(canonical string) string {
	parsed, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// RenderSourceList serializes sources back to text, one URL per line.
func RenderSourceList(sources []Source) string {
	var b strings.Builder
	for _, src := range sources {
		b.WriteString(src.URL)
		b.WriteByte('\n')
	}
	return b.String()
}

// SourceSet is an insertion-ordered set of sources keyed by canonical URL.
// It only grows.
type SourceSet struct {
	order []string
	byURL map[string]Source
}

func NewSourceSet() *SourceSet {
	return &SourceSet{byURL: make(map[string]Source)}
}

// Add inserts src, canonicalizing its URL. It returns true when the URL was
// not yet present. A repeated URL only fills an empty title or snippet.
func (s *SourceSet) Add(src Source) bool {
	canonical, ok := CanonicalURL(src.URL)
	if !ok {
		return false
	}
	src.URL = canonical
	if src.Domain == "" {
		src.Domain = domainOf(canonical)
	}

	existing, found := s.byURL[canonical]
	if !found {
		s.order = append(s.order, canonical)
		s.byURL[canonical] = src
		return true
	}
	if existing.Title == "" && src.Title != "" {
		existing.Title = src.Title
	}
	if existing.Snippet == "" && src.Snippet != "" {
		existing.Snippet = src.Snippet
	}
	s.byURL[canonical] = existing
	return false
}

// Union adds every source and returns how many were new.
func (s *SourceSet) Union(sources []Source) int {
	added := 0
	for _, src := range sources {
		if s.Add(src) {
			added++
		}
	}
	return added
}

func (s *SourceSet) Contains(rawURL string) bool {
	canonical, ok := CanonicalURL(rawURL)
	if !ok {
		return false
	}
	_, found := s.byURL[canonical]
	return found
}

func (s *SourceSet) Len() int {
	return len(s.order)
}

// List returns a copy of the sources in first-seen order.
func (s *SourceSet) List() []Source {
	out := make([]Source, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.byURL[key])
	}
	return out
}

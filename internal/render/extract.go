package render

import (
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

const maxInstructionChars = 10000

var (
	atobRE      = regexp.MustCompile("atob\\(\\s*[`'\"]([A-Za-z0-9+/=\\s]+)[`'\"]\\s*\\)")
	submitURLRE = regexp.MustCompile(`https?://[A-Za-z0-9.:/?=_-]*submit[A-Za-z0-9./?=_-]*`)
	dataURLRE   = regexp.MustCompile(`(?i)https?://[A-Za-z0-9.:/?=_%-]+\.(?:csv|xlsx|xls|pdf|png|jpg|jpeg)\b`)
	dataExts    = []string{".csv", ".xlsx", ".xls", ".pdf", ".png", ".jpg", ".jpeg"}
)

// Extract builds a PageInfo from a page's markup. bodyText is the visible
// text as reported by a browser; when empty it is derived from the markup.
func Extract(sourceURL string, html string, bodyText string) solver.PageInfo {
	page := solver.PageInfo{HTML: html, SourceURL: sourceURL, DataURLs: []string{}}
	// Unparseable markup still yields regex-based results below.
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(html))
	base, _ := url.Parse(sourceURL)

	var scripts []string
	if doc != nil {
		doc.Find("script").Each(func(_ int, s *goquery.Selection) {
			if text := s.Text(); strings.TrimSpace(text) != "" {
				scripts = append(scripts, text)
			}
		})
		if strings.TrimSpace(bodyText) == "" {
			bodyText = doc.Find("body").Text()
		}
	}
	page.Instruction = decodeInstruction(strings.Join(scripts, "\n"))
	if page.Instruction == "" {
		page.Instruction = truncateRunes(strings.TrimSpace(collapseBlankLines(bodyText)), maxInstructionChars)
	}

	page.SubmitURL = findSubmitURL(doc, base, html, bodyText, page.Instruction)
	page.DataURLs = findDataURLs(doc, base, html, page.Instruction)
	return page
}

func decodeInstruction(scripts string) string {
	matches := atobRE.FindAllStringSubmatch(scripts, -1)
	if len(matches) == 0 {
		return ""
	}
	var builder strings.Builder
	for _, match := range matches {
		encoded := strings.Join(strings.Fields(match[1]), "")
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
			if err != nil {
				continue
			}
		}
		builder.Write(decoded)
	}
	return strings.ToValidUTF8(builder.String(), "")
}

func findSubmitURL(doc *goquery.Document, base *url.URL, html string, bodyText string, instruction string) string {
	for _, text := range []string{html, instruction} {
		if match := submitURLRE.FindString(text); match != "" {
			return match
		}
	}
	if base != nil && base.Scheme != "" && base.Host != "" {
		if strings.Contains(html, "/submit") || strings.Contains(bodyText, "/submit") || strings.Contains(instruction, "/submit") {
			return base.Scheme + "://" + base.Host + "/submit"
		}
	}
	if doc == nil {
		return ""
	}
	action, ok := doc.Find("form").First().Attr("action")
	if !ok {
		return ""
	}
	return resolve(base, action)
}

func findDataURLs(doc *goquery.Document, base *url.URL, html string, instruction string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	add := func(candidate string) {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			return
		}
		if _, ok := seen[candidate]; ok {
			return
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}
	for _, match := range dataURLRE.FindAllString(html, -1) {
		add(match)
	}
	if doc != nil {
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			resolved := resolve(base, href)
			if hasDataExtension(resolved) {
				add(resolved)
			}
		})
	}
	for _, match := range dataURLRE.FindAllString(instruction, -1) {
		add(match)
	}
	return out
}

func hasDataExtension(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return false
	}
	path := strings.ToLower(parsed.Path)
	for _, ext := range dataExts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil || parsed.IsAbs() {
		return parsed.String()
	}
	return base.ResolveReference(parsed).String()
}

func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}

func truncateRunes(value string, maxChars int) string {
	runes := []rune(value)
	if len(runes) <= maxChars {
		return value
	}
	return string(runes[:maxChars])
}

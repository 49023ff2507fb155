package challenge

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Cryonoid/TwitLysis/internal/browser"
)

// Page is a rendered page under inspection.
type Page struct {
	URL string
	Doc *goquery.Document
}

// NewPage parses the page source.
func NewPage(url, html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("challenge: parse page: %w", err)
	}
	return &Page{URL: url, Doc: doc}, nil
}

// FromSession captures the current page of a live session.
func FromSession(s browser.Session) (*Page, error) {
	url, err := s.URL()
	if err != nil {
		return nil, fmt.Errorf("challenge: current url: %w", err)
	}
	src, err := s.PageSource()
	if err != nil {
		return nil, fmt.Errorf("challenge: page source: %w", err)
	}
	return NewPage(url, src)
}

// PageDetector reports whether a rendered page shows a challenge.
type PageDetector func(p *Page) (detected bool, source string)

// PageDetectors returns the detectors for the search site's challenge
// surfaces, checked in order.
func PageDetectors() []PageDetector {
	return []PageDetector{
		selectorDetector("recaptcha", `div[class*="g-recaptcha"]`),
		selectorDetector("challenge_response", `input#challenge_response`),
		headingDetector("verify_heading", "Verify you are not a robot"),
		selectorDetector("challenge_form", `form[action*="challenge"]`),
		selectorDetector("arkose", `iframe[src*="arkoselabs"]`),
		urlDetector("captcha_flow", "/i/flow/captcha"),
	}
}

// InspectPage runs p through detectors and returns the first hit.
func InspectPage(p *Page, detectors []PageDetector) Verdict {
	if p == nil {
		return Verdict{}
	}
	for _, d := range detectors {
		if ok, src := d(p); ok {
			return Verdict{Detected: true, Source: src}
		}
	}
	return Verdict{}
}

func selectorDetector(source, selector string) PageDetector {
	return func(p *Page) (bool, string) {
		if p.Doc != nil && p.Doc.Find(selector).Length() > 0 {
			return true, source
		}
		return false, ""
	}
}

func headingDetector(source, text string) PageDetector {
	return func(p *Page) (bool, string) {
		if p.Doc == nil {
			return false, ""
		}
		found := p.Doc.Find("h1").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(s.Text(), text)
		})
		if found.Length() > 0 {
			return true, source
		}
		return false, ""
	}
}

func urlDetector(source, fragment string) PageDetector {
	return func(p *Page) (bool, string) {
		if strings.Contains(strings.ToLower(p.URL), fragment) {
			return true, source
		}
		return false, ""
	}
}

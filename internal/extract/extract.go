// Package extract maps parsed listing and detail documents to company URLs and
// record fields.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/directory-crawler/internal/cfemail"
	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

// Selectors used against the directory markup.
const (
	companyLinkSelector = "div.company-card h3.company-card__title a"
	websiteSelector     = "div.company-header__web-page span"
	websiteAttr         = "data-href"
	nameSelector        = "h2.company-header__title"
	emailSelector       = "a.__cf_email__"
	emailAttr           = "data-cfemail"
	structuredSelector  = `script[type="application/ld+json"]`
)

// Config controls how relative links are resolved.
type Config struct {
	BaseURL string
}

// Extractor pulls company URLs and fields out of directory pages.
type Extractor struct {
	base *url.URL
}

// New builds an Extractor. BaseURL must be an absolute URL.
func New(cfg Config) (*Extractor, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	return &Extractor{base: base}, nil
}

// ParseDocument parses a response body into a goquery document.
func ParseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// CompanyURLs returns the absolute detail URLs listed on a search page, in
// document order.
func (e *Extractor) CompanyURLs(doc *goquery.Document) []string {
	var urls []string
	doc.Find(companyLinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		urls = append(urls, e.base.ResolveReference(ref).String())
	})
	return urls
}

// Detail extracts every record field from a detail page. CompanyURL is left
// for the caller to fill in.
func (e *Extractor) Detail(doc *goquery.Document) crawler.CompanyRecord {
	sd := StructuredData(doc)
	return crawler.CompanyRecord{
		CompanyName: CompanyName(doc),
		Website:     Website(doc),
		Email:       Email(doc),
		Phone:       sd.Phone,
		RatingValue: sd.RatingValue,
		RatingCount: sd.RatingCount,
	}
}

// Website returns the company website advertised in the header, or "".
func Website(doc *goquery.Document) string {
	value, _ := doc.Find(websiteSelector).First().Attr(websiteAttr)
	return strings.TrimSpace(value)
}

// CompanyName returns the trimmed header title in NFC form, or "".
func CompanyName(doc *goquery.Document) string {
	return norm.NFC.String(strings.TrimSpace(doc.Find(nameSelector).First().Text()))
}

// Email decodes the obfuscated e-mail anchor. It returns "" when the anchor is
// missing or cannot be decoded.
func Email(doc *goquery.Document) string {
	encoded, ok := doc.Find(emailSelector).First().Attr(emailAttr)
	if !ok {
		return ""
	}
	email, err := cfemail.Decode(strings.TrimSpace(encoded))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(email)
}

// Rating holds the fields read from the embedded JSON-LD block.
type Rating struct {
	Phone       string
	RatingValue string
	RatingCount string
}

// StructuredData reads phone and rating fields from the first JSON-LD script
// that decodes to an object. Missing or malformed data yields the defaults.
func StructuredData(doc *goquery.Document) Rating {
	out := Rating{RatingValue: crawler.DefaultRating, RatingCount: crawler.DefaultRating}
	doc.Find(structuredSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		obj, ok := decodeObject(s.Text())
		if !ok {
			return true
		}
		if reviewed, ok := obj["itemReviewed"].(map[string]any); ok {
			out.Phone = scalar(reviewed["telephone"], "")
		}
		rating := obj
		if _, direct := obj["ratingValue"]; !direct {
			if nested, ok := obj["aggregateRating"].(map[string]any); ok {
				rating = nested
			}
		}
		out.RatingValue = scalar(rating["ratingValue"], crawler.DefaultRating)
		out.RatingCount = scalar(rating["ratingCount"], crawler.DefaultRating)
		return false
	})
	return out
}

func decodeObject(raw string) (map[string]any, bool) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(raw)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func scalar(v any, fallback string) string {
	switch val := v.(type) {
	case string:
		if s := strings.TrimSpace(val); s != "" {
			return s
		}
	case json.Number:
		return val.String()
	}
	return fallback
}

// Package scrape is the pure-function HTML-to-article-metadata boundary spec
// §1 names ("article text scraping... treated as a pure function
// Scrape(bytes) → ArticleMeta"). It combines go-shiori/go-readability for
// body/byline/excerpt extraction (ported from the teacher's
// internal/infra/fetcher/readability.go, which uses the same library for the
// same purpose) with github.com/PuerkitoBio/goquery for the site metadata
// (og:site_name, favicon link) readability itself doesn't expose — goquery is
// grounded on the teacher's internal/infra/scraper/webflow.go, which already
// uses it for CSS-selector-driven HTML extraction.
package scrape

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Site is the source-website metadata extracted alongside an article, feeding
// the reconciler's pre_scrape_articles hook (spec §4.5) which upserts a Site
// document from it.
type Site struct {
	URL     string `json:"url"`
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

// ArticleMeta is Scrape's result.
type ArticleMeta struct {
	Title       string    `json:"title,omitempty"`
	Authors     []string  `json:"authors,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Text        string    `json:"text,omitempty"`
	PublishDate time.Time `json:"publish_date,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	Site        Site      `json:"site"`
}

// Scrape extracts article metadata from previously-fetched HTML. pageURL is
// the article's own (canonical) URL, used to resolve relative links and to
// derive the site's URL when no better signal is available.
func Scrape(contents []byte, pageURL string) (ArticleMeta, error) {
	pageU, err := url.Parse(pageURL)
	if err != nil {
		return ArticleMeta{}, fmt.Errorf("scrape: invalid page URL: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(contents), pageU)
	if err != nil {
		return ArticleMeta{}, fmt.Errorf("scrape: readability: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(contents))
	if err != nil {
		return ArticleMeta{}, fmt.Errorf("scrape: parse html: %w", err)
	}

	meta := ArticleMeta{
		Title:    strings.TrimSpace(article.Title),
		Summary:  strings.TrimSpace(article.Excerpt),
		Text:     article.TextContent,
		ImageURL: article.Image,
		Keywords: extractKeywords(doc),
		Site:     extractSite(doc, pageU, article.SiteName),
	}
	if meta.ImageURL == "" {
		meta.ImageURL = article.Favicon
	}
	if byline := strings.TrimSpace(article.Byline); byline != "" {
		meta.Authors = splitAuthors(byline)
	}
	if article.PublishedTime != nil {
		meta.PublishDate = *article.PublishedTime
	}

	return meta, nil
}

// extractSite recovers the publishing site's name, URL and favicon from
// og:site_name / link[rel=icon] tags, falling back to readability's own
// SiteName and to the page's host when no metadata is present — mirrors the
// original implementation's _get_site_meta, which falls back to the domain
// name when no site-name meta tag exists.
func extractSite(doc *goquery.Document, pageURL *url.URL, fallbackName string) Site {
	name := strings.TrimSpace(doc.Find(`meta[property="og:site_name"]`).AttrOr("content", ""))
	if name == "" {
		name = strings.TrimSpace(doc.Find(`meta[name="application-name"]`).AttrOr("content", ""))
	}
	if name == "" {
		name = fallbackName
	}
	if name == "" {
		name = pageURL.Hostname()
	}

	iconHref, _ := doc.Find(`link[rel="icon"]`).Attr("href")
	if iconHref == "" {
		iconHref, _ = doc.Find(`link[rel="shortcut icon"]`).Attr("href")
	}

	siteURL := pageURL.Scheme + "://" + pageURL.Host
	return Site{
		URL:     siteURL,
		Name:    name,
		IconURL: resolveURL(pageURL, iconHref),
	}
}

func extractKeywords(doc *goquery.Document) []string {
	content := doc.Find(`meta[name="keywords"]`).AttrOr("content", "")
	if content == "" {
		return nil
	}
	parts := strings.Split(content, ",")
	keywords := make([]string, 0, len(parts))
	for _, p := range parts {
		if kw := strings.TrimSpace(p); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

// splitAuthors turns a byline like "By Jane Doe, John Smith" into individual
// author names.
func splitAuthors(byline string) []string {
	byline = strings.TrimPrefix(byline, "By ")
	byline = strings.TrimPrefix(byline, "by ")
	parts := strings.Split(byline, ",")
	authors := make([]string, 0, len(parts))
	for _, p := range parts {
		if a := strings.TrimSpace(p); a != "" {
			authors = append(authors, a)
		}
	}
	return authors
}

func resolveURL(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}

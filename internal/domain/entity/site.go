package entity

// Site is the publication an article belongs to — derived from an article's
// URL host the first time that article is scraped, and upserted by the
// reconciler's pre_scrape_articles hook thereafter.
type Site struct {
	ID int64

	URL  string // unique
	Name string

	IconResourceID int64 // references Image.ID; 0 if no icon has been found yet
	IconURL        string
}

// Validate checks the site's URL.
func (s *Site) Validate() error {
	return ValidateURL(s.URL)
}

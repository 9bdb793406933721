package entity

// Image is a crawled image resource — typically an article's lead image,
// referenced by Article.ImageURL and mirrored locally so the recsystem bridge
// never depends on a third party still hosting the original.
type Image struct {
	Resource

	Contents    []byte
	ContentType string // MIME type, e.g. "image/jpeg"
}

// NewImage constructs an image discovered via an article's image_url.
func NewImage(url string) *Image {
	img := &Image{Resource: Resource{URL: url}}
	img.NormalizeLang()
	return img
}

// Validate checks the image's URL.
func (img *Image) Validate() error {
	return ValidateURL(img.URL)
}

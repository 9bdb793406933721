package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewImage(t *testing.T) {
	img := NewImage("https://example.com/photo.jpg")
	assert.Equal(t, "https://example.com/photo.jpg", img.URL)
	assert.Equal(t, DefaultLang, img.Lang)
}

func TestImage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "valid url", url: "https://example.com/photo.jpg", wantErr: false},
		{name: "empty url", url: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := &Image{Resource: Resource{URL: tt.url}}
			err := img.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

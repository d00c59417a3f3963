package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		name      string
		stored    string
		canonical string
		scaled    bool
	}{
		{name: "scaled jpeg", stored: "banner-scaled.jpg", canonical: "banner.jpg", scaled: true},
		{name: "scaled with dashes", stored: "my-big-photo-scaled.png", canonical: "my-big-photo.png", scaled: true},
		{name: "scaled twice", stored: "a-scaled-scaled.jpg", canonical: "a.jpg", scaled: true},
		{name: "plain", stored: "photo.jpg", canonical: "photo.jpg"},
		{name: "suffix without extension", stored: "photo-scaled", canonical: "photo-scaled"},
		{name: "suffix only", stored: "-scaled.jpg", canonical: "-scaled.jpg"},
		{name: "scaled in the middle", stored: "photo-scaled-v2.jpg", canonical: "photo-scaled-v2.jpg"},
		{name: "double extension", stored: "archive-scaled.tar.gz", canonical: "archive-scaled.tar.gz"},
		{name: "empty", stored: "", canonical: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canonical, scaled := CanonicalName(tt.stored)
			assert.Equal(t, tt.canonical, canonical)
			assert.Equal(t, tt.scaled, scaled)

			again, scaledAgain := CanonicalName(canonical)
			assert.Equal(t, canonical, again, "canonical name must be idempotent")
			assert.False(t, scaledAgain)
		})
	}
}

func TestScaledName(t *testing.T) {
	assert.Equal(t, "banner-scaled.jpg", ScaledName("banner.jpg"))
	assert.Equal(t, "README-scaled", ScaledName("README"))

	canonical, scaled := CanonicalName(ScaledName("banner.jpg"))
	assert.True(t, scaled)
	assert.Equal(t, "banner.jpg", canonical)
}

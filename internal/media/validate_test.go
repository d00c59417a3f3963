package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	photo := Descriptor{Filename: "photo.jpg", MimeType: "image/jpeg", Width: 800, Height: 600}
	doc := Descriptor{Filename: "report.pdf", MimeType: "application/pdf"}
	banner := Descriptor{Filename: "banner-scaled.jpg", MimeType: "image/jpeg", Width: 2560, Height: 1707}
	bannerOriginal := &Descriptor{Filename: "banner.jpg", MimeType: "image/jpeg", Width: 3000, Height: 2000}

	tests := []struct {
		name     string
		enforce  bool
		existing Descriptor
		scaled   bool
		original *Descriptor
		incoming Descriptor
		reason   []string
	}{
		{
			name:     "identical image",
			enforce:  true,
			existing: photo,
			incoming: Descriptor{Filename: "photo.jpg", MimeType: "image/jpeg", Width: 800, Height: 600},
		},
		{
			name:     "directory components are ignored",
			enforce:  true,
			existing: photo,
			incoming: Descriptor{Filename: `C:\Users\me\photo.jpg`, MimeType: "image/jpeg", Width: 800, Height: 600},
		},
		{
			name:     "name mismatch",
			enforce:  true,
			existing: photo,
			incoming: Descriptor{Filename: "photo-v2.jpg", MimeType: "image/jpeg", Width: 800, Height: 600},
			reason:   []string{"same name as the original file (photo.jpg)"},
		},
		{
			name:     "name mismatch on scaled record",
			enforce:  true,
			existing: banner,
			scaled:   true,
			original: bannerOriginal,
			incoming: Descriptor{Filename: "banner-scaled.jpg", MimeType: "image/jpeg", Width: 3000, Height: 2000},
			reason:   []string{"original filename: banner.jpg", "(not banner-scaled.jpg)"},
		},
		{
			name:     "type mismatch",
			enforce:  true,
			existing: photo,
			incoming: Descriptor{Filename: "photo.jpg", MimeType: "image/png", Width: 800, Height: 600},
			reason:   []string{"Required: image/jpeg", "Uploaded: image/png"},
		},
		{
			name:     "not an image",
			enforce:  true,
			existing: photo,
			incoming: Descriptor{Filename: "photo.jpg", MimeType: "image/jpeg"},
			reason:   []string{"not a valid image"},
		},
		{
			name:     "dimension mismatch",
			enforce:  true,
			existing: photo,
			incoming: Descriptor{Filename: "photo.jpg", MimeType: "image/jpeg", Width: 800, Height: 601},
			reason:   []string{"Required: 800x600", "Uploaded: 800x601"},
		},
		{
			name:     "dimension mismatch not enforced",
			enforce:  false,
			existing: photo,
			incoming: Descriptor{Filename: "photo.jpg", MimeType: "image/jpeg", Width: 1600, Height: 1200},
		},
		{
			name:     "invalid image even when dimensions are not enforced",
			enforce:  false,
			existing: photo,
			incoming: Descriptor{Filename: "photo.jpg", MimeType: "image/jpeg"},
			reason:   []string{"not a valid image"},
		},
		{
			name:     "scaled record compares original dimensions",
			enforce:  true,
			existing: banner,
			scaled:   true,
			original: bannerOriginal,
			incoming: Descriptor{Filename: "banner.jpg", MimeType: "image/jpeg", Width: 3000, Height: 2000},
		},
		{
			name:     "scaled record rejects scaled dimensions when original is known",
			enforce:  true,
			existing: banner,
			scaled:   true,
			original: bannerOriginal,
			incoming: Descriptor{Filename: "banner.jpg", MimeType: "image/jpeg", Width: 2560, Height: 1707},
			reason:   []string{"Required: 3000x2000", "Uploaded: 2560x1707"},
		},
		{
			name:     "scaled record without original falls back to current dimensions",
			enforce:  true,
			existing: banner,
			scaled:   true,
			incoming: Descriptor{Filename: "banner.jpg", MimeType: "image/jpeg", Width: 2560, Height: 1707},
		},
		{
			name:     "non-image skips dimension check",
			enforce:  true,
			existing: doc,
			incoming: Descriptor{Filename: "report.pdf", MimeType: "application/pdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validator{EnforceDimensions: tt.enforce}.Validate(tt.existing, tt.scaled, tt.original, tt.incoming)
			if len(tt.reason) == 0 {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			var f *Failure
			require.ErrorAs(t, err, &f)
			assert.Equal(t, KindRejected, f.Kind)
			for _, want := range tt.reason {
				assert.Contains(t, f.Reason, want)
			}
		})
	}
}

func TestValidateChecksNameBeforeType(t *testing.T) {
	existing := Descriptor{Filename: "photo.jpg", MimeType: "image/jpeg", Width: 10, Height: 10}
	incoming := Descriptor{Filename: "other.png", MimeType: "image/png", Width: 20, Height: 20}

	err := Validator{EnforceDimensions: true}.Validate(existing, false, nil, incoming)

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Contains(t, f.Reason, "same name")
	assert.NotContains(t, f.Reason, "File type mismatch")
}

// Package imaging inspects media files and produces their derived renditions.
package imaging

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"os"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Prober implements media.Prober.
type Prober struct{}

// Dimensions reads only the image header.
func (Prober) Dimensions(path string) (int, int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

// DetectMIME sniffs the file content and drops any parameters such as the
// charset of text files.
func (Prober) DetectMIME(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to detect mime type: %w", err)
	}
	mediaType, _, err := mime.ParseMediaType(mt.String())
	if err != nil {
		return mt.String(), nil
	}
	return mediaType, nil
}

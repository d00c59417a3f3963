package imaging

import (
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"github.com/pavel-fokin/media-replace/internal/media"
)

// Size is a named rendition size. A zero Width or Height leaves that side
// unbounded. Crop sizes are cut to the exact box from the center.
type Size struct {
	Name   string
	Width  int
	Height int
	Crop   bool
}

// DefaultSizes are the renditions generated for every image.
var DefaultSizes = []Size{
	{Name: "thumbnail", Width: 150, Height: 150, Crop: true},
	{Name: "medium", Width: 300, Height: 300},
	{Name: "medium_large", Width: 768},
	{Name: "large", Width: 1024, Height: 1024},
}

type encodeFunc func(w io.Writer, img image.Image) error

// Generator implements media.Regenerator.
type Generator struct {
	sizes     []Size
	threshold int
	quality   int
	prober    Prober
}

// NewGenerator creates a generator. Images wider or taller than threshold
// are downscaled into a "-scaled" copy first; 0 disables that step.
func NewGenerator(sizes []Size, threshold, jpegQuality int) *Generator {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = jpeg.DefaultQuality
	}
	return &Generator{
		sizes:     sizes,
		threshold: threshold,
		quality:   jpegQuality,
	}
}

// Generate builds the metadata for a freshly placed primary file. Files
// that are not images get an empty rendition set.
func (g *Generator) Generate(ctx context.Context, path, mimeType string) (*media.Metadata, error) {
	meta := &media.Metadata{
		FilePath:   path,
		Renditions: map[string]media.Rendition{},
	}

	width, height, ok := g.prober.Dimensions(path)
	if !ok {
		return meta, nil
	}
	meta.Width, meta.Height = width, height

	encode := g.encoder(mimeType)
	if encode == nil {
		return meta, nil
	}

	src, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	if g.threshold > 0 && (width > g.threshold || height > g.threshold) {
		w, h := fit(width, height, g.threshold, g.threshold)
		scaled := resize(src, w, h)
		scaledPath := filepath.Join(dir, media.ScaledName(name))
		if err := writeImage(scaledPath, scaled, encode); err != nil {
			return nil, err
		}
		meta.FilePath = scaledPath
		meta.OriginalFile = name
		meta.Width, meta.Height = w, h
		src = scaled
	}

	for _, size := range g.sizes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var dst image.Image
		var w, h int
		if size.Crop {
			w, h = cropBox(meta.Width, meta.Height, size.Width, size.Height)
			if w == meta.Width && h == meta.Height {
				continue
			}
			dst = cropResize(src, w, h)
		} else {
			w, h = fit(meta.Width, meta.Height, size.Width, size.Height)
			if w >= meta.Width && h >= meta.Height {
				continue
			}
			dst = resize(src, w, h)
		}

		file := freeName(dir, fmt.Sprintf("%s-%dx%d", base, w, h), ext)
		if err := writeImage(filepath.Join(dir, file), dst, encode); err != nil {
			return nil, err
		}
		meta.Renditions[size.Name] = media.Rendition{
			File:     file,
			Width:    w,
			Height:   h,
			MimeType: mimeType,
		}
	}

	return meta, nil
}

func (g *Generator) encoder(mimeType string) encodeFunc {
	switch mimeType {
	case "image/jpeg":
		return func(w io.Writer, img image.Image) error {
			return jpeg.Encode(w, img, &jpeg.Options{Quality: g.quality})
		}
	case "image/png":
		return png.Encode
	case "image/gif":
		return func(w io.Writer, img image.Image) error {
			return gif.Encode(w, img, nil)
		}
	default:
		return nil
	}
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// freeName returns stem+ext, or stem-1+ext, stem-2+ext, ... when that file
// already exists. Stale renditions of the same file are removed before
// regeneration, so anything found here belongs to something else.
func freeName(dir, stem, ext string) string {
	name := stem + ext
	for i := 1; ; i++ {
		if _, err := os.Lstat(filepath.Join(dir, name)); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
}

// writeImage encodes to a temp file and renames it into place.
func writeImage(path string, img image.Image, encode encodeFunc) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create rendition: %w", err)
	}
	if err := encode(f, img); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode rendition: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close rendition: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move rendition: %w", err)
	}
	return nil
}

// fit scales w x h down to fit the box, keeping the aspect ratio. It never
// scales up.
func fit(w, h, maxW, maxH int) (int, int) {
	ratio := 1.0
	if maxW > 0 {
		ratio = math.Min(ratio, float64(maxW)/float64(w))
	}
	if maxH > 0 {
		ratio = math.Min(ratio, float64(maxH)/float64(h))
	}
	if ratio >= 1 {
		return w, h
	}
	return max(1, int(math.Round(float64(w)*ratio))), max(1, int(math.Round(float64(h)*ratio)))
}

// cropBox is the crop target, clamped to the source size.
func cropBox(w, h, boxW, boxH int) (int, int) {
	if boxW <= 0 || boxW > w {
		boxW = w
	}
	if boxH <= 0 || boxH > h {
		boxH = h
	}
	return boxW, boxH
}

func resize(src image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// cropResize takes the largest centered region of src with the aspect
// ratio of w x h and scales it to exactly w x h.
func cropResize(src image.Image, w, h int) image.Image {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()

	cw, ch := sw, int(math.Round(float64(sw)*float64(h)/float64(w)))
	if ch > sh {
		cw, ch = int(math.Round(float64(sh)*float64(w)/float64(h))), sh
	}
	x0 := b.Min.X + (sw-cw)/2
	y0 := b.Min.Y + (sh-ch)/2

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, image.Rect(x0, y0, x0+cw, y0+ch), draw.Over, nil)
	return dst
}

package media

import "strings"

// Validator decides whether an upload may replace an existing record.
type Validator struct {
	EnforceDimensions bool
}

// Validate runs the name, type and dimension checks in that order and
// returns the first rejection. original is the pre-downscale file, when
// the record was scaled and that file is still on disk.
func (v Validator) Validate(existing Descriptor, existingWasScaled bool, original *Descriptor, incoming Descriptor) error {
	canonical, _ := CanonicalName(existing.Filename)

	if name := baseName(incoming.Filename); name != canonical {
		if existingWasScaled {
			return rejected("This image was automatically scaled. Please upload your replacement file with the original filename: %s (not %s)",
				canonical, existing.Filename)
		}
		return rejected("The new file must have the same name as the original file (%s). Please rename your file and try again.", canonical)
	}

	if incoming.MimeType != existing.MimeType {
		return rejected("File type mismatch. Required: %s, Uploaded: %s", existing.MimeType, incoming.MimeType)
	}

	if !existing.HasDimensions() {
		return nil
	}
	if !incoming.HasDimensions() {
		return rejected("The uploaded file is not a valid image.")
	}

	target := existing
	if original != nil && original.HasDimensions() {
		target = *original
	}

	if v.EnforceDimensions && (incoming.Width != target.Width || incoming.Height != target.Height) {
		return rejected("The replacement must have the exact same dimensions as the original image. Required: %s, Uploaded: %s.",
			target.Dimensions(), incoming.Dimensions())
	}
	return nil
}

// baseName strips directory components from a client-declared filename,
// accepting either slash style.
func baseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		return name[i+1:]
	}
	return name
}

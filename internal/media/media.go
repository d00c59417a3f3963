package media

import (
	"context"
	"fmt"
	"time"
)

// Rendition is a derived file generated from a record's primary file.
// File is a basename relative to the directory of the primary file.
type Rendition struct {
	File     string `json:"file"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	MimeType string `json:"mime_type"`
}

// Record represents one managed media asset.
type Record struct {
	ID       int64  `json:"id"`
	FilePath string `json:"file_path"`
	MimeType string `json:"mime_type"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	// OriginalFile is the basename of the full-size upload when FilePath
	// points at an automatically downscaled copy.
	OriginalFile string               `json:"original_file,omitempty"`
	Renditions   map[string]Rendition `json:"renditions"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// UploadCandidate is the incoming file for the duration of one request.
// It is built once at the transport boundary and never mutated.
type UploadCandidate struct {
	DeclaredFilename string
	DeclaredMimeType string
	SizeBytes        int64
	TemporaryPath    string
	// Err is the transport error reported while receiving the upload, if any.
	Err error
}

// Descriptor is computed fresh from a record or an upload at validation time.
type Descriptor struct {
	Filename string
	MimeType string
	Width    int
	Height   int
}

// HasDimensions reports whether the descriptor belongs to an image.
func (d Descriptor) HasDimensions() bool {
	return d.Width > 0 && d.Height > 0
}

// Dimensions formats the size as WIDTHxHEIGHT.
func (d Descriptor) Dimensions() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Metadata is what the rendition regenerator reports for a freshly placed file.
type Metadata struct {
	// FilePath is the file the record should serve. It differs from the
	// input path when the regenerator produced a downscaled copy.
	FilePath     string
	OriginalFile string
	Width        int
	Height       int
	Renditions   map[string]Rendition
}

// ReplacementReport is returned on a successful replacement.
type ReplacementReport struct {
	RecordID  int64  `json:"id"`
	FinalPath string `json:"-"`
	FinalURL  string `json:"url"`
}

// Caller identifies who is asking for a change.
type Caller struct {
	Token string
}

// Repository persists media records.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	FindByID(ctx context.Context, id int64) (*Record, error)
	// FindByPath returns the record whose primary file is path.
	FindByPath(ctx context.Context, path string) (*Record, error)
	List(ctx context.Context) ([]*Record, error)
	// Update overwrites the record's file path, dimensions and rendition
	// mapping as a whole.
	Update(ctx context.Context, record *Record) error
}

// ArtifactStore is the filesystem the record's files live on.
type ArtifactStore interface {
	Exists(path string) bool
	Remove(path string) error
	// Move places src at dst, overwriting dst if present.
	Move(src, dst string) error
	// Names lists the regular files directly inside dir.
	Names(dir string) ([]string, error)
	// IngestDir returns the directory new uploads are placed in.
	IngestDir(now time.Time) (string, error)
	URL(path string) string
}

// Regenerator produces derived renditions for a primary file.
type Regenerator interface {
	Generate(ctx context.Context, path, mimeType string) (*Metadata, error)
}

// Prober inspects files on disk.
type Prober interface {
	// Dimensions returns the pixel size of an image, ok is false for
	// anything that is not a decodable image.
	Dimensions(path string) (width, height int, ok bool)
	DetectMIME(path string) (string, error)
}

// Authorizer decides whether a caller may edit a record.
type Authorizer interface {
	CanEdit(ctx context.Context, caller Caller, recordID int64) bool
}

// Observer is notified after a successful replacement.
type Observer interface {
	Replaced(ctx context.Context, recordID int64, finalPath string) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, recordID int64, finalPath string) error

func (f ObserverFunc) Replaced(ctx context.Context, recordID int64, finalPath string) error {
	return f(ctx, recordID, finalPath)
}

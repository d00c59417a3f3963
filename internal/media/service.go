package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Options configures a Service.
type Options struct {
	// EnforceDimensions is the default passed to the DimensionPolicy.
	EnforceDimensions bool
	Policy            DimensionPolicy
	Observers         []Observer
}

// Service provides the media record operations, replacement first among them.
type Service struct {
	repo      Repository
	store     ArtifactStore
	regen     Regenerator
	prober    Prober
	auth      Authorizer
	enforce   bool
	policy    DimensionPolicy
	observers []Observer
	locks     *recordLocks
	now       func() time.Time
}

// NewService creates a new media service
func NewService(repo Repository, store ArtifactStore, regen Regenerator, prober Prober, auth Authorizer, opts Options) *Service {
	policy := opts.Policy
	if policy == nil {
		policy = DefaultPolicy{}
	}
	return &Service{
		repo:      repo,
		store:     store,
		regen:     regen,
		prober:    prober,
		auth:      auth,
		enforce:   opts.EnforceDimensions,
		policy:    policy,
		observers: opts.Observers,
		locks:     newRecordLocks(),
		now:       time.Now,
	}
}

// Authorize returns a Forbidden failure unless caller may edit the record.
func (s *Service) Authorize(ctx context.Context, caller Caller, id int64) error {
	if !s.auth.CanEdit(ctx, caller, id) {
		return fail(KindForbidden, "You do not have permission to edit this attachment.", nil)
	}
	return nil
}

// Get returns a record by id.
func (s *Service) Get(ctx context.Context, id int64) (*Record, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fail(KindNotFound, "Attachment not found.", err)
		}
		return nil, fail(KindInternal, "Failed to load attachment.", err)
	}
	return record, nil
}

// List returns all records.
func (s *Service) List(ctx context.Context) ([]*Record, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, fail(KindInternal, "Failed to list attachments.", err)
	}
	return records, nil
}

// URL returns the public URL of a record's served file.
func (s *Service) URL(record *Record) string {
	return s.store.URL(record.FilePath)
}

// Replace swaps the file behind an existing record, keeping its id, MIME
// type and canonical filename. Every error returned is a *Failure.
//
// Nothing on disk is touched until the upload has passed validation. After
// that the old files are deleted before the new one is moved in, so a
// failed move leaves the record pointing at a missing file.
func (s *Service) Replace(ctx context.Context, caller Caller, id int64, upload UploadCandidate) (*ReplacementReport, error) {
	if err := s.Authorize(ctx, caller, id); err != nil {
		return nil, err
	}
	if err := checkUpload(upload); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	report, err := s.replace(ctx, record, upload)
	if err != nil {
		slog.Error("Replacement failed", "record_id", id, "kind", KindOf(err).String(), "error", err)
		return nil, err
	}

	slog.Info("Replacement completed", "record_id", id, "path", report.FinalPath)
	s.notify(ctx, id, report.FinalPath)
	return report, nil
}

func (s *Service) replace(ctx context.Context, record *Record, upload UploadCandidate) (*ReplacementReport, error) {
	dir := filepath.Dir(record.FilePath)
	current := filepath.Base(record.FilePath)
	canonical, scaled := CanonicalName(current)
	target := filepath.Join(dir, canonical)

	existing := s.describeRecord(record)
	var original *Descriptor
	if scaled && s.store.Exists(target) {
		if w, h, ok := s.prober.Dimensions(target); ok {
			original = &Descriptor{Filename: canonical, MimeType: record.MimeType, Width: w, Height: h}
		}
	}

	incoming, err := s.describeUpload(upload)
	if err != nil {
		return nil, err
	}

	v := Validator{EnforceDimensions: s.policy.EnforceDimensions(ctx, record.ID, s.enforce)}
	if err := v.Validate(existing, scaled, original, incoming); err != nil {
		return nil, err
	}

	if err := s.deleteArtifacts(ctx, record, target); err != nil {
		return nil, err
	}

	if err := s.store.Move(upload.TemporaryPath, target); err != nil {
		return nil, fail(KindMoveFailed, "Failed to move uploaded file.", err)
	}

	meta, err := s.regen.Generate(ctx, target, record.MimeType)
	if err != nil {
		return nil, fail(KindInternal, "Failed to generate attachment metadata.", err)
	}

	finalPath := target
	if meta.FilePath != "" && meta.FilePath != target && s.store.Exists(meta.FilePath) {
		finalPath = meta.FilePath
	}

	record.FilePath = finalPath
	record.Width = meta.Width
	record.Height = meta.Height
	record.OriginalFile = meta.OriginalFile
	record.Renditions = meta.Renditions
	if record.Renditions == nil {
		record.Renditions = map[string]Rendition{}
	}
	record.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, record); err != nil {
		return nil, fail(KindInternal, "Failed to update attachment.", err)
	}

	return &ReplacementReport{
		RecordID:  record.ID,
		FinalPath: finalPath,
		FinalURL:  s.store.URL(finalPath),
	}, nil
}

// describeRecord probes the current primary file. When it is gone from disk
// the stored dimensions stand in.
func (s *Service) describeRecord(record *Record) Descriptor {
	d := Descriptor{
		Filename: filepath.Base(record.FilePath),
		MimeType: record.MimeType,
	}
	if w, h, ok := s.prober.Dimensions(record.FilePath); ok {
		d.Width, d.Height = w, h
	} else if !s.store.Exists(record.FilePath) {
		d.Width, d.Height = record.Width, record.Height
	}
	return d
}

func (s *Service) describeUpload(upload UploadCandidate) (Descriptor, error) {
	mimeType, err := s.detectMIME(upload)
	if err != nil {
		return Descriptor{}, fail(KindUploadError, "Invalid file upload.", err)
	}
	d := Descriptor{
		Filename: sanitizeName(upload.DeclaredFilename),
		MimeType: mimeType,
	}
	if w, h, ok := s.prober.Dimensions(upload.TemporaryPath); ok {
		d.Width, d.Height = w, h
	}
	return d, nil
}

// detectMIME sniffs the upload's content and only trusts the declared type
// when sniffing finds nothing specific.
func (s *Service) detectMIME(upload UploadCandidate) (string, error) {
	detected, err := s.prober.DetectMIME(upload.TemporaryPath)
	if err != nil {
		return "", err
	}
	if detected == "application/octet-stream" && upload.DeclaredMimeType != "" {
		return upload.DeclaredMimeType, nil
	}
	return detected, nil
}

// deleteArtifacts removes the primary file, the pre-downscale original and
// every listed rendition. Only a primary that the move would not overwrite
// must be removed; every other failure is logged and skipped. A listed file
// that is another record's primary is left alone.
func (s *Service) deleteArtifacts(ctx context.Context, record *Record, target string) error {
	primary := record.FilePath
	if err := s.store.Remove(primary); err != nil {
		if primary != target {
			return fail(KindInternal, "Failed to delete the current file.", err)
		}
		slog.Warn("Failed to delete primary file", "record_id", record.ID, "path", primary, "error", err)
	}

	dir := filepath.Dir(primary)
	seen := map[string]bool{primary: true}
	var stale []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			stale = append(stale, p)
		}
	}

	if target != primary {
		add(target)
	}
	if record.OriginalFile != "" {
		add(filepath.Join(dir, record.OriginalFile))
	}

	names := make([]string, 0, len(record.Renditions))
	for name := range record.Renditions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if file := record.Renditions[name].File; file != "" {
			add(filepath.Join(dir, file))
		}
	}

	for _, p := range stale {
		if !s.store.Exists(p) {
			continue
		}
		if owner, err := s.repo.FindByPath(ctx, p); err == nil && owner.ID != record.ID {
			slog.Warn("Skipping file owned by another record", "record_id", record.ID, "owner_id", owner.ID, "path", p)
			continue
		}
		if err := s.store.Remove(p); err != nil {
			slog.Warn("Failed to delete stale file", "record_id", record.ID, "path", p, "error", err)
		}
	}
	return nil
}

func (s *Service) notify(ctx context.Context, id int64, finalPath string) {
	for _, o := range s.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Replacement observer panicked", "record_id", id, "panic", r)
				}
			}()
			if err := o.Replaced(ctx, id, finalPath); err != nil {
				slog.Warn("Replacement observer failed", "record_id", id, "error", err)
			}
		}()
	}
}

// Ingest creates a new record from an upload. The record id 0 is passed to
// the authorizer since the record does not exist yet.
func (s *Service) Ingest(ctx context.Context, caller Caller, upload UploadCandidate) (*Record, error) {
	if err := s.Authorize(ctx, caller, 0); err != nil {
		return nil, err
	}
	if err := checkUpload(upload); err != nil {
		return nil, err
	}

	mimeType, err := s.detectMIME(upload)
	if err != nil {
		return nil, fail(KindUploadError, "Invalid file upload.", err)
	}

	now := s.now()
	dir, err := s.store.IngestDir(now)
	if err != nil {
		return nil, fail(KindInternal, "Failed to prepare upload directory.", err)
	}
	target, err := s.uniquePath(dir, sanitizeName(upload.DeclaredFilename))
	if err != nil {
		return nil, fail(KindInternal, "Failed to prepare upload directory.", err)
	}

	if err := s.store.Move(upload.TemporaryPath, target); err != nil {
		return nil, fail(KindMoveFailed, "Failed to move uploaded file.", err)
	}

	meta, err := s.regen.Generate(ctx, target, mimeType)
	if err != nil {
		return nil, fail(KindInternal, "Failed to generate attachment metadata.", err)
	}

	record := &Record{
		FilePath:     target,
		MimeType:     mimeType,
		Width:        meta.Width,
		Height:       meta.Height,
		OriginalFile: meta.OriginalFile,
		Renditions:   meta.Renditions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if meta.FilePath != "" {
		record.FilePath = meta.FilePath
	}
	if record.Renditions == nil {
		record.Renditions = map[string]Rendition{}
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fail(KindInternal, "Failed to save attachment.", err)
	}

	slog.Info("Attachment ingested", "record_id", record.ID, "path", record.FilePath, "mime_type", mimeType)
	return record, nil
}

// uniquePath appends -1, -2, ... to the name until no file the new record
// would write can land on an existing one. A name that reads as a downscaled
// copy is never handed out, or a later replacement would rename it.
func (s *Service) uniquePath(dir, name string) (string, error) {
	names, err := s.store.Names(dir)
	if err != nil {
		return "", err
	}
	taken := make(map[string]bool, len(names))
	for _, n := range names {
		taken[n] = true
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; ; i++ {
		if nameFree(candidate, taken, names) {
			return filepath.Join(dir, candidate), nil
		}
		candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
}

func nameFree(candidate string, taken map[string]bool, names []string) bool {
	if taken[candidate] || taken[ScaledName(candidate)] {
		return false
	}
	if _, scaled := CanonicalName(candidate); scaled {
		return false
	}
	ext := filepath.Ext(candidate)
	rendition := regexp.MustCompile("^" + regexp.QuoteMeta(strings.TrimSuffix(candidate, ext)) + `-\d+x\d+` + regexp.QuoteMeta(ext) + "$")
	for _, n := range names {
		if rendition.MatchString(n) {
			return false
		}
	}
	return true
}

func checkUpload(upload UploadCandidate) error {
	if upload.Err != nil {
		return fail(KindUploadError, "File upload error.", upload.Err)
	}
	if upload.TemporaryPath == "" || sanitizeName(upload.DeclaredFilename) == "" {
		return fail(KindUploadError, "Invalid file upload.", nil)
	}
	return nil
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(baseName(name))
	if name == "." || name == ".." {
		return ""
	}
	return strings.ReplaceAll(name, " ", "-")
}

package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/pavel-fokin/media-replace/internal/media"
	"github.com/pavel-fokin/media-replace/internal/metrics"
	"github.com/pavel-fokin/media-replace/internal/nonce"
)

const (
	replaceAction   = "replace_media_file"
	multipartMemory = 8 << 20
)

// result is the envelope the admin UI renders.
type result struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type replaced struct {
	Message string `json:"message"`
	URL     string `json:"url"`
}

func replaceMedia(cfg *Config, mediaService *media.Service, signer *nonce.Signer, tmpDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			if isTooLarge(err) {
				writeResult(w, http.StatusRequestEntityTooLarge, false, "The uploaded file exceeds the maximum upload size.")
				return
			}
			writeResult(w, http.StatusBadRequest, false, "Invalid request.")
			return
		}
		defer r.MultipartForm.RemoveAll()

		id, ok := parseID(r.PathValue("id"))
		if !ok {
			writeResult(w, http.StatusBadRequest, false, "Invalid attachment ID.")
			return
		}

		if r.FormValue("action") != replaceAction || !signer.Verify(replaceAction, id, r.FormValue("nonce")) {
			writeResult(w, http.StatusForbidden, false, "Security check failed.")
			return
		}

		// Unauthorized callers are turned away before anything is spooled.
		caller := callerFrom(r)
		if err := mediaService.Authorize(r.Context(), caller, id); err != nil {
			metrics.ReplacementsTotal.WithLabelValues(media.KindOf(err).String()).Inc()
			writeResult(w, failureStatus(err), false, failureReason(err))
			return
		}

		upload, cleanup, err := receiveUpload(r, "replacement_file", tmpDir)
		if err != nil {
			writeResult(w, http.StatusBadRequest, false, "No file was uploaded.")
			return
		}
		defer cleanup()

		report, err := mediaService.Replace(r.Context(), caller, id, upload)
		if err != nil {
			metrics.ReplacementsTotal.WithLabelValues(media.KindOf(err).String()).Inc()
			writeResult(w, failureStatus(err), false, failureReason(err))
			return
		}
		metrics.ReplacementsTotal.WithLabelValues("success").Inc()
		metrics.ReplacedBytesTotal.Add(float64(upload.SizeBytes))

		writeResult(w, http.StatusOK, true, replaced{
			Message: "File replaced successfully.",
			URL:     report.FinalURL,
		})
	}
}

// receiveUpload spools a multipart file to tmpDir and returns it as an
// UploadCandidate. A failed copy is reported through the candidate's Err so
// the service can classify it. cleanup removes the spooled file if it was
// not moved away.
func receiveUpload(r *http.Request, field, tmpDir string) (media.UploadCandidate, func(), error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return media.UploadCandidate{}, func() {}, err
	}
	defer file.Close()

	upload := media.UploadCandidate{
		DeclaredFilename: header.Filename,
		DeclaredMimeType: header.Header.Get("Content-Type"),
		SizeBytes:        header.Size,
	}

	tmp, err := os.CreateTemp(tmpDir, "upload-*")
	if err != nil {
		upload.Err = err
		return upload, func() {}, nil
	}
	path := tmp.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove spooled upload", "path", path, "error", err)
		}
	}

	if _, err := io.Copy(tmp, file); err != nil {
		upload.Err = err
	}
	if err := tmp.Close(); err != nil && upload.Err == nil {
		upload.Err = err
	}
	upload.TemporaryPath = path

	return upload, cleanup, nil
}

func failureStatus(err error) int {
	switch media.KindOf(err) {
	case media.KindForbidden:
		return http.StatusForbidden
	case media.KindUploadError:
		return http.StatusBadRequest
	case media.KindNotFound:
		return http.StatusNotFound
	case media.KindRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// failureReason is the message shown to the caller. Errors that are not a
// media.Failure never reach the response.
func failureReason(err error) string {
	var f *media.Failure
	if errors.As(err, &f) && f.Reason != "" {
		return f.Reason
	}
	return "Internal error."
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func writeResult(w http.ResponseWriter, status int, success bool, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result{Success: success, Data: data}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

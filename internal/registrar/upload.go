package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
)

// Uploader transfers an asset bundle to content storage through the backend
// and returns the opaque content ref. Stored bytes are durable even if every
// later saga stage fails; nothing here compensates for that.
type Uploader struct {
	session *Session
	logger  zerolog.Logger
}

func NewUploader(session *Session, logger zerolog.Logger) *Uploader {
	return &Uploader{
		session: session,
		logger:  logger.With().Str("service", "uploader").Logger(),
	}
}

// Upload sends the bundle as a multipart form, preserving file order and
// relative paths.
func (u *Uploader) Upload(ctx context.Context, bundle Bundle) (string, error) {
	if err := bundle.Validate(); err != nil {
		return "", &UploadError{err: err}
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("name", bundle.Name); err != nil {
		return "", &UploadError{err: err}
	}
	if err := writer.WriteField("description", bundle.Description); err != nil {
		return "", &UploadError{err: err}
	}
	if err := writer.WriteField("royalty_bps", strconv.Itoa(bundle.Terms.RoyaltyBps)); err != nil {
		return "", &UploadError{err: err}
	}
	if bundle.Terms.IsDerivative != nil {
		if err := writer.WriteField("is_derivative", strconv.FormatBool(*bundle.Terms.IsDerivative)); err != nil {
			return "", &UploadError{err: err}
		}
	}
	for _, f := range bundle.Files {
		part, err := writer.CreateFormFile("files", f.RelativePath)
		if err != nil {
			return "", &UploadError{err: err}
		}
		if _, err := part.Write(f.Data); err != nil {
			return "", &UploadError{err: err}
		}
	}
	if err := writer.Close(); err != nil {
		return "", &UploadError{err: err}
	}

	url := u.session.BackendURL() + "/" + string(bundle.Kind) + "/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return "", &UploadError{err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.session.Client().Do(req)
	if err != nil {
		if errors.Is(err, ErrRefreshFailed) {
			return "", err
		}
		return "", &UploadError{err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &UploadError{err: decodeAPIError(resp)}
	}

	var out struct {
		S3Key         string `json:"s3_key"`
		UploadedCount int    `json:"uploadedCount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &UploadError{err: fmt.Errorf("malformed upload response: %w", err)}
	}
	if out.S3Key == "" {
		return "", &UploadError{err: errors.New("upload response missing content ref")}
	}
	u.logger.Info().
		Str("content_ref", out.S3Key).
		Int("files", out.UploadedCount).
		Msg("bundle uploaded")
	return out.S3Key, nil
}

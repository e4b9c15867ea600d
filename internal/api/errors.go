package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gonkalabs/subkit/internal/export"
	"github.com/gonkalabs/subkit/internal/profanity"
	"github.com/gonkalabs/subkit/internal/rename"
	"github.com/gonkalabs/subkit/internal/review"
	"github.com/gonkalabs/subkit/internal/session"
	"github.com/gonkalabs/subkit/internal/sheet"
	"github.com/gonkalabs/subkit/internal/storage"
	"github.com/gonkalabs/subkit/internal/textenc"
)

// httpError carries a status chosen by the handler itself.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

// statusFor maps an error from the core packages to an HTTP status.
func statusFor(err error) int {
	var (
		he  *httpError
		mbe *http.MaxBytesError
		de  *textenc.DecodingError
		ufe *profanity.UnsupportedFormatError
		ce  *export.ColumnError
	)
	switch {
	case errors.As(err, &he):
		return he.status
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &de),
		errors.Is(err, sheet.ErrInvalidWorkbook),
		errors.Is(err, rename.ErrInvalidDocument):
		return http.StatusBadRequest
	case errors.As(err, &ufe):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &ce):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrExpiredToken),
		errors.Is(err, session.ErrFingerprintMismatch),
		errors.Is(err, review.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		writeErr(w, status, "internal error")
		return
	}
	writeErr(w, status, err.Error())
}

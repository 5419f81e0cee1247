// Package apperr classifies failures into the categories the HTTP layer maps to
// status codes: configuration, validation, authentication, forbidden,
// not found, external and storage.
package apperr

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	CodeConfig     = "CONFIG_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeAuth       = "UNAUTHENTICATED"
	CodeForbidden  = "FORBIDDEN"
	CodeNotFound   = "NOT_FOUND"
	CodeExternal   = "TENANT_UNAVAILABLE"
	CodeStorage    = "STORAGE_ERROR"
	CodeInternal   = "INTERNAL_ERROR"
)

func newErr(msg string, cat goerrors.Category, status int, text string, meta map[string]any) error {
	err := goerrors.New(msg, cat).
		WithCode(status).
		WithTextCode(text)
	if len(meta) > 0 {
		err.WithMetadata(meta)
	}
	return err
}

func wrapErr(src error, cat goerrors.Category, msg string, status int, text string, meta map[string]any) error {
	if src == nil {
		return newErr(msg, cat, status, text, meta)
	}
	err := goerrors.Wrap(src, cat, msg).
		WithCode(status).
		WithTextCode(text)
	if len(meta) > 0 {
		err.WithMetadata(meta)
	}
	return err
}

// Config reports a missing or invalid setting. These are fatal at startup.
func Config(msg string, meta map[string]any) error {
	return newErr(msg, goerrors.CategoryValidation, http.StatusInternalServerError, CodeConfig, meta)
}

func Validation(msg string, meta map[string]any) error {
	return newErr(msg, goerrors.CategoryBadInput, http.StatusBadRequest, CodeValidation, meta)
}

func Auth(msg string, meta map[string]any) error {
	return newErr(msg, goerrors.CategoryAuth, http.StatusUnauthorized, CodeAuth, meta)
}

func WrapAuth(src error, msg string, meta map[string]any) error {
	return wrapErr(src, goerrors.CategoryAuth, msg, http.StatusUnauthorized, CodeAuth, meta)
}

func Forbidden(msg string, meta map[string]any) error {
	return newErr(msg, goerrors.CategoryAuthz, http.StatusForbidden, CodeForbidden, meta)
}

func NotFound(msg string, meta map[string]any) error {
	return newErr(msg, goerrors.CategoryNotFound, http.StatusNotFound, CodeNotFound, meta)
}

func External(src error, msg string, meta map[string]any) error {
	return wrapErr(src, goerrors.CategoryExternal, msg, http.StatusBadGateway, CodeExternal, meta)
}

func Storage(src error, msg string, meta map[string]any) error {
	return wrapErr(src, goerrors.CategoryInternal, msg, http.StatusInternalServerError, CodeStorage, meta)
}

func Internal(src error, msg string) error {
	return wrapErr(src, goerrors.CategoryInternal, msg, http.StatusInternalServerError, CodeInternal, nil)
}

// Status returns the HTTP status carried by err, 500 for unclassified errors.
func Status(err error) int {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code != 0 {
		return rich.Code
	}
	return http.StatusInternalServerError
}

// TextCode returns the machine readable code carried by err.
func TextCode(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.TextCode != "" {
		return rich.TextCode
	}
	return CodeInternal
}

// Is reports whether err carries the given text code.
func Is(err error, code string) bool {
	if err == nil {
		return false
	}
	return TextCode(err) == code
}

// IsConfig is a shorthand used by startup code.
func IsConfig(err error) bool { return Is(err, CodeConfig) }

// Message returns the human readable message without category decoration.
func Message(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Message
	}
	return err.Error()
}

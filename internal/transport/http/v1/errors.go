package v1

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/advisor/internal/domain"
)

const (
	retrySolution      = "Please try a different model or input format"
	attachmentSolution = "Attach a PNG, JPEG or WebP image, or a PDF document"
	sizeSolution       = "Attach a smaller file"
	rateSolution       = "Please wait a moment and try again"
)

// ErrMalformedRequest marks a body that could not be decoded.
var ErrMalformedRequest = errors.New("malformed request body")

// MapError converts a relay failure into its HTTP status and envelope.
func MapError(err error) (int, domain.ErrorBody) {
	var selector *domain.SelectorError
	switch {
	case errors.As(err, &selector):
		msg := "Invalid model selected"
		if selector.Kind != "model" {
			msg = "Invalid " + selector.Kind + " selected"
		}
		return http.StatusBadRequest, domain.ErrorBody{Error: msg, Details: err.Error()}
	case errors.Is(err, domain.ErrInvalidSelector):
		return http.StatusBadRequest, domain.ErrorBody{Error: "Invalid model selected", Details: err.Error()}
	case errors.Is(err, ErrMalformedRequest):
		return http.StatusBadRequest, domain.ErrorBody{Error: "Invalid request body", Details: err.Error()}
	case errors.Is(err, domain.ErrMissingInput):
		return http.StatusBadRequest, domain.ErrorBody{Error: "No message content provided", Details: err.Error()}
	case errors.Is(err, domain.ErrUnsupportedAttachment):
		return http.StatusBadRequest, domain.ErrorBody{Error: "Unsupported file type", Details: err.Error(), Solution: attachmentSolution}
	case errors.Is(err, domain.ErrAttachmentTooLarge):
		return http.StatusBadRequest, domain.ErrorBody{Error: "Attachment too large", Details: err.Error()}
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusInternalServerError, domain.ErrorBody{Error: "Server configuration error: Missing API key"}
	default:
		return http.StatusInternalServerError, domain.ErrorBody{
			Error:    "Failed to process your request",
			Details:  detailsFor(err),
			Solution: retrySolution,
		}
	}
}

func detailsFor(err error) string {
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Message
	}
	return err.Error()
}

// HTTPErrorHandler writes errors raised outside the handlers (routing, body
// limit, rate limiting) in the same envelope the handlers use. Client
// errors become 400, everything else 500.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := mapHTTPError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("ERROR: %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		log.Printf("WARN: failed to write error response: %v", err)
	}
}

func mapHTTPError(err error) (int, domain.ErrorBody) {
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		return MapError(err)
	}

	details := fmt.Sprint(he.Message)
	switch {
	case he.Code == http.StatusRequestEntityTooLarge:
		return http.StatusBadRequest, domain.ErrorBody{
			Error:    "Request too large",
			Details:  "the request body exceeds the upload limit",
			Solution: sizeSolution,
		}
	case he.Code == http.StatusTooManyRequests:
		return http.StatusBadRequest, domain.ErrorBody{Error: "Too many requests", Details: details, Solution: rateSolution}
	case he.Code < http.StatusInternalServerError:
		return http.StatusBadRequest, domain.ErrorBody{Error: http.StatusText(he.Code), Details: details}
	default:
		return http.StatusInternalServerError, domain.ErrorBody{
			Error:    "Failed to process your request",
			Details:  details,
			Solution: retrySolution,
		}
	}
}

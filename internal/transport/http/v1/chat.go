package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/advisor/internal/domain"
)

// Chat relays one conversation turn.
// POST /api/chat
func (h *Handler) Chat(c echo.Context) error {
	req, err := bindChatRequest(c)
	if err != nil {
		// Oversized bodies go to the server error handler.
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return he
		}
		return writeError(c, err)
	}

	resp, err := h.service.Relay(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

func writeError(c echo.Context, err error) error {
	status, body := MapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("ERROR: chat relay failed: %v", err)
	}
	return c.JSON(status, body)
}

// bindChatRequest decodes a multipart form or a JSON body. A body without
// a content type is read as JSON.
func bindChatRequest(c echo.Context) (*domain.ChatRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	switch mediaType {
	case echo.MIMEMultipartForm, echo.MIMEApplicationForm:
		return bindForm(c, mediaType == echo.MIMEMultipartForm)
	case echo.MIMEApplicationJSON, "":
		if mediaType == "" {
			c.Request().Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		}
		if c.Request().ContentLength == 0 {
			return nil, fmt.Errorf("%w: empty body", ErrMalformedRequest)
		}
		var req domain.ChatRequest
		if err := c.Bind(&req); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
		}
		if req.Attachment != nil && req.Attachment.MimeType == "" {
			req.Attachment.MimeType = sniff(req.Attachment.Data)
		}
		return &req, nil
	default:
		return nil, fmt.Errorf("%w: unsupported content type %q", ErrMalformedRequest, mediaType)
	}
}

func bindForm(c echo.Context, multipartBody bool) (*domain.ChatRequest, error) {
	// Parse up front so read errors surface instead of empty fields.
	if multipartBody {
		if _, err := c.MultipartForm(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
		}
	} else if _, err := c.FormParams(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}

	req := &domain.ChatRequest{
		Model:         c.FormValue("model"),
		ResponseStyle: c.FormValue("responseStyle"),
	}
	if raw := c.FormValue("messages"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Messages); err != nil {
			return nil, fmt.Errorf("%w: messages: %v", ErrMalformedRequest, err)
		}
	}
	if !multipartBody {
		return req, nil
	}

	fh, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: file: %v", ErrMalformedRequest, err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: file: %v", ErrMalformedRequest, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: file: %v", ErrMalformedRequest, err)
	}
	if len(data) == 0 {
		return req, nil
	}

	mimeType := fh.Header.Get(echo.HeaderContentType)
	if mimeType == "" || mimeType == echo.MIMEOctetStream {
		mimeType = sniff(data)
	}
	req.Attachment = &domain.Attachment{Name: fh.Filename, MimeType: mimeType, Data: data}
	return req, nil
}

func sniff(data []byte) string {
	t := http.DetectContentType(data)
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return t
}

package chatclient

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/xiaot623/advisor/internal/domain"
)

const unsupportedFileMessage = "Unsupported file type. Please upload an image or PDF."

// DefaultAllowedMIMETypes is the attachment allow-list used until the relay
// reports its own.
func DefaultAllowedMIMETypes() []string {
	return []string{"image/png", "image/jpeg", "image/webp", "application/pdf"}
}

// SetAllowedMIMETypes replaces the allow-list, usually with the relay's.
func (s *Session) SetAllowedMIMETypes(types []string) {
	if len(types) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowed = append([]string(nil), types...)
}

// StageAttachment stages a file for the next submit, replacing any staged one.
// Files outside the allow-list are never staged.
func (s *Session) StageAttachment(name, mimeType string, data []byte) error {
	mimeType = normalizeMime(mimeType)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !contains(s.allowed, mimeType) {
		s.lastErr = unsupportedFileMessage
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, mimeType)
	}
	s.staged = &domain.Attachment{
		Name:     name,
		MimeType: mimeType,
		Data:     append([]byte(nil), data...),
	}
	return nil
}

// StageFile reads path and stages it. The media type comes from the file
// extension, falling back to content sniffing.
func (s *Session) StageFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}
	return s.StageAttachment(filepath.Base(path), DetectMIMEType(path, data), data)
}

// ClearAttachment drops the staged attachment.
func (s *Session) ClearAttachment() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = nil
}

// StagedAttachment returns the staged attachment or nil.
func (s *Session) StagedAttachment() *domain.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged == nil {
		return nil
	}
	att := *s.staged
	return &att
}

// DetectMIMEType guesses a file's media type.
func DetectMIMEType(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return normalizeMime(t)
	}
	return normalizeMime(http.DetectContentType(data))
}

func normalizeMime(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

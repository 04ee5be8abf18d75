// Package chatclient holds the client side of a chat: the transcript, the
// pending request lifecycle, attachment staging and provider selection.
package chatclient

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/xiaot623/advisor/internal/domain"
)

// State is the request lifecycle state of a Session.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingResponse State = "awaiting-response"
	StateError            State = "error"
)

// DefaultProvider is selected when a Session is created without one.
const DefaultProvider = "gemini-1.5-flash"

const documentPrompt = "Analyze this document"

var (
	ErrBusy            = errors.New("a request is already in flight")
	ErrEmptySubmission = errors.New("nothing to send")
	ErrNothingToRetry  = errors.New("no failed request to retry")
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// Transport delivers one chat request to the relay.
type Transport interface {
	Chat(ctx context.Context, req *domain.ChatRequest) ([]domain.Message, error)
}

// Session is one conversation. It is safe for concurrent use; the network
// call is made without holding the lock.
type Session struct {
	mu         sync.Mutex
	transport  Transport
	state      State
	transcript []domain.Message
	provider   string
	style      domain.ResponseStyle
	staged     *domain.Attachment
	lastErr    string
	failed     *submission
	allowed    []string
	now        func() time.Time
}

// NewSession creates an idle session with an empty transcript.
func NewSession(transport Transport, provider string, style domain.ResponseStyle) *Session {
	if provider == "" {
		provider = DefaultProvider
	}
	if style == "" {
		style = domain.DefaultResponseStyle
	}
	return &Session{
		transport: transport,
		state:     StateIdle,
		provider:  provider,
		style:     style,
		allowed:   DefaultAllowedMIMETypes(),
		now:       time.Now,
	}
}

// Submit sends text and any staged attachment. It is rejected while a
// request is in flight, and when there is neither text nor attachment.
func (s *Session) Submit(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.state == StateAwaitingResponse {
		s.mu.Unlock()
		return ErrBusy
	}
	sub := submission{text: text, att: s.staged}
	if strings.TrimSpace(text) == "" && sub.att == nil {
		s.mu.Unlock()
		return ErrEmptySubmission
	}
	req := s.beginLocked(sub)
	s.mu.Unlock()

	return s.send(ctx, sub, req)
}

// Retry re-submits the last failed request with the same text and attachment.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateError || s.failed == nil {
		s.mu.Unlock()
		return ErrNothingToRetry
	}
	sub := *s.failed
	req := s.beginLocked(sub)
	s.mu.Unlock()

	return s.send(ctx, sub, req)
}

type submission struct {
	text string
	att  *domain.Attachment
}

// beginLocked records the user message, consumes the staged attachment and
// moves to awaiting-response. The request omits inline images; the current
// file travels as the attachment.
func (s *Session) beginLocked(sub submission) *domain.ChatRequest {
	now := s.now()
	msg := domain.Message{Role: domain.RoleUser, Content: sub.text, Timestamp: &now}
	if strings.TrimSpace(sub.text) == "" && sub.att != nil {
		msg.Content = documentPrompt
	}
	if sub.att != nil && strings.HasPrefix(sub.att.MimeType, "image/") {
		msg.Image = base64.StdEncoding.EncodeToString(sub.att.Data)
		msg.MimeType = sub.att.MimeType
	}

	s.transcript = append(s.transcript, msg)
	s.staged = nil
	s.state = StateAwaitingResponse
	s.lastErr = ""
	s.failed = nil

	return &domain.ChatRequest{
		Model:         s.provider,
		ResponseStyle: string(s.style),
		Messages:      withoutImages(s.transcript),
		Attachment:    sub.att,
	}
}

func (s *Session) send(ctx context.Context, sub submission, req *domain.ChatRequest) error {
	replies, err := s.transport.Chat(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateError
		s.lastErr = describe(err)
		s.failed = &sub
		return err
	}

	s.transcript = append(s.transcript, replies...)
	s.state = StateIdle
	return nil
}

// withoutImages copies msgs with inline images dropped so a long
// conversation stays within the relay's upload limit.
func withoutImages(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		m.Image = ""
		m.MimeType = ""
		out[i] = m
	}
	return out
}

// DismissError returns an errored session to idle.
func (s *Session) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateError {
		s.state = StateIdle
	}
	s.lastErr = ""
	s.failed = nil
}

// SelectProvider takes effect on the next submit.
func (s *Session) SelectProvider(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = id
}

// SelectResponseStyle takes effect on the next submit.
func (s *Session) SelectResponseStyle(style domain.ResponseStyle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.style = style
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.transcript...)
}

// LastError returns the user-visible error message, if any.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// CanRetry reports whether Retry has a failed request to re-send.
func (s *Session) CanRetry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateError && s.failed != nil
}

func (s *Session) Provider() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

func (s *Session) ResponseStyle() domain.ResponseStyle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style
}

func describe(err error) string {
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

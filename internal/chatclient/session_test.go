package chatclient

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/advisor/internal/domain"
)

type fakeTransport struct {
	mu      sync.Mutex
	reqs    []*domain.ChatRequest
	err     error
	block   chan struct{} // when set, Chat waits on it
	entered chan struct{}
}

func (f *fakeTransport) Chat(ctx context.Context, req *domain.ChatRequest) ([]domain.Message, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	err := f.err
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return []domain.Message{{Role: domain.RoleAssistant, Content: "reply to " + req.Messages[len(req.Messages)-1].Content}}, nil
}

func (f *fakeTransport) requests() []*domain.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.ChatRequest(nil), f.reqs...)
}

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession(&fakeTransport{}, "", "")
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, DefaultProvider, s.Provider())
	assert.Equal(t, domain.StyleDetailed, s.ResponseStyle())
	assert.Empty(t, s.Transcript())
	assert.Nil(t, s.StagedAttachment())
}

func TestTranscriptAlternates(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft, "gemini-1.5-flash", domain.StyleConcise)

	const n = 5
	for i := 0; i < n; i++ {
		require.NoError(t, s.Submit(context.Background(), fmt.Sprintf("question %d", i)))
		assert.Equal(t, StateIdle, s.State())
	}

	transcript := s.Transcript()
	require.Len(t, transcript, 2*n)
	for i, msg := range transcript {
		if i%2 == 0 {
			assert.Equal(t, domain.RoleUser, msg.Role)
			assert.NotNil(t, msg.Timestamp)
		} else {
			assert.Equal(t, domain.RoleAssistant, msg.Role)
		}
	}

	reqs := ft.requests()
	require.Len(t, reqs, n)
	assert.Len(t, reqs[n-1].Messages, 2*n-1)
	assert.Equal(t, "gemini-1.5-flash", reqs[0].Model)
	assert.Equal(t, "concise", reqs[0].ResponseStyle)
}

func TestSubmitEmptyRejected(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft, "", "")

	assert.ErrorIs(t, s.Submit(context.Background(), "   "), ErrEmptySubmission)
	assert.Empty(t, ft.requests())
	assert.Empty(t, s.Transcript())
}

func TestSubmitWhileAwaitingIsBusy(t *testing.T) {
	ft := &fakeTransport{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	s := NewSession(ft, "", "")

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), "first") }()
	<-ft.entered

	assert.Equal(t, StateAwaitingResponse, s.State())
	assert.ErrorIs(t, s.Submit(context.Background(), "second"), ErrBusy)

	close(ft.block)
	require.NoError(t, <-done)
	assert.Len(t, ft.requests(), 1)
	assert.Len(t, s.Transcript(), 2)
}

func TestSubmitFailureKeepsUserMessage(t *testing.T) {
	ft := &fakeTransport{err: &RelayError{Status: 500, Message: "Failed to process your request", Details: "quota"}}
	s := NewSession(ft, "", "")
	require.NoError(t, s.StageAttachment("chart.png", "image/png", []byte{1, 2, 3}))

	err := s.Submit(context.Background(), "what is this?")
	var relayErr *RelayError
	require.True(t, errors.As(err, &relayErr))

	assert.Equal(t, StateError, s.State())
	assert.Equal(t, "Failed to process your request", s.LastError())
	assert.True(t, s.CanRetry())
	assert.Nil(t, s.StagedAttachment())

	transcript := s.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, "what is this?", transcript[0].Content)
	assert.Equal(t, "AQID", transcript[0].Image)
	assert.Equal(t, "image/png", transcript[0].MimeType)
}

func TestRetryIssuesFreshCall(t *testing.T) {
	ft := &fakeTransport{err: errors.New("connection refused")}
	s := NewSession(ft, "", "")
	require.NoError(t, s.StageAttachment("plan.pdf", "application/pdf", []byte("%PDF")))

	require.Error(t, s.Submit(context.Background(), "review"))
	assert.Equal(t, "connection refused", s.LastError())

	ft.mu.Lock()
	ft.err = nil
	ft.mu.Unlock()

	require.NoError(t, s.Retry(context.Background()))
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.LastError())

	reqs := ft.requests()
	require.Len(t, reqs, 2)
	require.NotNil(t, reqs[1].Attachment)
	assert.Equal(t, "application/pdf", reqs[1].Attachment.MimeType)
	assert.Equal(t, "review", reqs[1].Messages[len(reqs[1].Messages)-1].Content)

	assert.ErrorIs(t, s.Retry(context.Background()), ErrNothingToRetry)
}

func TestDismissError(t *testing.T) {
	ft := &fakeTransport{err: errors.New("boom")}
	s := NewSession(ft, "", "")
	require.Error(t, s.Submit(context.Background(), "hi"))

	s.DismissError()
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.LastError())
	assert.False(t, s.CanRetry())
	assert.Len(t, s.Transcript(), 1)
}

func TestUnsupportedFileNeverStagedOrSent(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft, "", "")

	err := s.StageAttachment("notes.txt", "text/plain", []byte("hello"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)
	assert.Nil(t, s.StagedAttachment())
	assert.Equal(t, StateIdle, s.State())
	assert.NotEmpty(t, s.LastError())

	require.NoError(t, s.Submit(context.Background(), "hi"))
	reqs := ft.requests()
	require.Len(t, reqs, 1)
	assert.Nil(t, reqs[0].Attachment)
	assert.Empty(t, reqs[0].Messages[0].Image)
}

func TestStagingReplacesAndDocumentOnly(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft, "", "")

	require.NoError(t, s.StageAttachment("a.png", "image/png", []byte("a")))
	require.NoError(t, s.StageAttachment("b.pdf", "application/pdf; charset=binary", []byte("%PDF")))
	staged := s.StagedAttachment()
	require.NotNil(t, staged)
	assert.Equal(t, "b.pdf", staged.Name)
	assert.Equal(t, "application/pdf", staged.MimeType)

	require.NoError(t, s.Submit(context.Background(), ""))
	reqs := ft.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Analyze this document", reqs[0].Messages[0].Content)
	assert.Empty(t, reqs[0].Messages[0].Image)
	require.NotNil(t, reqs[0].Attachment)
	assert.Equal(t, []byte("%PDF"), reqs[0].Attachment.Data)
	assert.Nil(t, s.StagedAttachment())

	require.NoError(t, s.StageAttachment("c.png", "image/png", []byte("c")))
	s.ClearAttachment()
	assert.Nil(t, s.StagedAttachment())
}

func TestSelectionAppliesToNextSubmit(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft, "", "")
	require.NoError(t, s.Submit(context.Background(), "one"))

	s.SelectProvider("imagen-3.0-generate-002")
	s.SelectResponseStyle(domain.StyleStepByStep)
	assert.Len(t, s.Transcript(), 2)

	require.NoError(t, s.Submit(context.Background(), "two"))
	reqs := ft.requests()
	assert.Equal(t, DefaultProvider, reqs[0].Model)
	assert.Equal(t, "imagen-3.0-generate-002", reqs[1].Model)
	assert.Equal(t, "step-by-step", reqs[1].ResponseStyle)
}

func TestStageFile(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "logo.png")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n"), 0o600))
	noExt := filepath.Join(dir, "report")
	require.NoError(t, os.WriteFile(noExt, []byte("%PDF-1.7\n"), 0o600))
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("plain"), 0o600))

	s := NewSession(&fakeTransport{}, "", "")
	require.NoError(t, s.StageFile(png))
	assert.Equal(t, "image/png", s.StagedAttachment().MimeType)
	assert.Equal(t, "logo.png", s.StagedAttachment().Name)

	require.NoError(t, s.StageFile(noExt))
	assert.Equal(t, "application/pdf", s.StagedAttachment().MimeType)

	assert.ErrorIs(t, s.StageFile(txt), ErrUnsupportedFile)
	assert.Equal(t, "report", s.StagedAttachment().Name)

	assert.Error(t, s.StageFile(filepath.Join(dir, "missing.png")))
}

func TestSetAllowedMIMETypes(t *testing.T) {
	s := NewSession(&fakeTransport{}, "", "")
	s.SetAllowedMIMETypes([]string{"image/png"})
	assert.ErrorIs(t, s.StageAttachment("a.pdf", "application/pdf", []byte("x")), ErrUnsupportedFile)

	s.SetAllowedMIMETypes(nil)
	assert.NoError(t, s.StageAttachment("a.png", "image/png", []byte("x")))
}

func TestRequestsCarryOnlyCurrentAttachment(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft, "", "")

	require.NoError(t, s.StageAttachment("a.png", "image/png", []byte{1, 2, 3}))
	require.NoError(t, s.Submit(context.Background(), "first"))
	require.NoError(t, s.StageAttachment("b.png", "image/png", []byte{4, 5, 6}))
	require.NoError(t, s.Submit(context.Background(), "second"))

	reqs := ft.requests()
	require.Len(t, reqs, 2)
	for _, msg := range reqs[1].Messages {
		assert.Empty(t, msg.Image)
		assert.Empty(t, msg.MimeType)
	}
	require.NotNil(t, reqs[1].Attachment)
	assert.Equal(t, []byte{4, 5, 6}, reqs[1].Attachment.Data)

	transcript := s.Transcript()
	assert.Equal(t, "AQID", transcript[0].Image)
	assert.Equal(t, "BAUG", transcript[2].Image)
}

type nameRecorder struct {
	mu   sync.Mutex
	sent map[string]bool
}

func (r *nameRecorder) Chat(ctx context.Context, req *domain.ChatRequest) ([]domain.Message, error) {
	if req.Attachment != nil {
		r.mu.Lock()
		r.sent[req.Attachment.Name] = true
		r.mu.Unlock()
	}
	return []domain.Message{{Role: domain.RoleAssistant, Content: "ok"}}, nil
}

func (r *nameRecorder) wasSent(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[name]
}

// Every staged file is either sent, replaced by a later staging, or still
// staged. A submit never clears a file it did not send.
func TestStagingDuringSubmitIsNeverLost(t *testing.T) {
	rec := &nameRecorder{sent: map[string]bool{}}
	s := NewSession(rec, "", "")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = s.Submit(context.Background(), "next")
		}
	}()

	const n = 500
	replaced := map[string]bool{}
	for i := 0; i < n; i++ {
		if prev := s.StagedAttachment(); prev != nil {
			replaced[prev.Name] = true
		}
		require.NoError(t, s.StageAttachment(fmt.Sprintf("doc-%d.pdf", i), "application/pdf", []byte("%PDF")))
	}
	close(stop)
	wg.Wait()

	final := s.StagedAttachment()
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("doc-%d.pdf", i)
		if final != nil && final.Name == name {
			continue
		}
		assert.True(t, rec.wasSent(name) || replaced[name], "%s was dropped", name)
	}
}

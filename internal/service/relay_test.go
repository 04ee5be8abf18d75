package service

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/advisor/internal/adapter/llm"
	"github.com/xiaot623/advisor/internal/catalog"
	"github.com/xiaot623/advisor/internal/domain"
	"github.com/xiaot623/advisor/internal/policy"
	"github.com/xiaot623/advisor/internal/repository"
	"github.com/xiaot623/advisor/tests/helpers"
)

type spyGenerator struct {
	readyErr  error
	reply     *llm.Reply
	err       error
	textReqs  []*llm.TextRequest
	imageReqs []*llm.ImageRequest
}

func (g *spyGenerator) Ready() error { return g.readyErr }

func (g *spyGenerator) GenerateText(ctx context.Context, req *llm.TextRequest) (*llm.Reply, error) {
	g.textReqs = append(g.textReqs, req)
	if g.err != nil {
		return nil, g.err
	}
	return g.reply, nil
}

func (g *spyGenerator) GenerateImage(ctx context.Context, req *llm.ImageRequest) (*llm.Reply, error) {
	g.imageReqs = append(g.imageReqs, req)
	if g.err != nil {
		return nil, g.err
	}
	return g.reply, nil
}

func (g *spyGenerator) calls() int { return len(g.textReqs) + len(g.imageReqs) }

func newTestService(t *testing.T, gen *spyGenerator, store repository.CallStore) *Service {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	engine, err := policy.NewDefaultEngine(context.Background())
	require.NoError(t, err)
	gens := map[domain.Backend]llm.Generator{
		domain.BackendGemini: gen,
		domain.BackendOllama: gen,
	}
	return New(cat, engine, gens, store, 1<<20)
}

func userMsg(text string) []domain.Message {
	return []domain.Message{{Role: domain.RoleUser, Content: text}}
}

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

func TestRelayText(t *testing.T) {
	gen := &spyGenerator{reply: &llm.Reply{Text: "Price on value, not hours."}}
	svc := newTestService(t, gen, nil)

	resp, err := svc.Relay(context.Background(), &domain.ChatRequest{
		Model:    "gemini-1.5-flash",
		Messages: userMsg("How do I price my service?"),
	})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, domain.RoleAssistant, resp.Messages[0].Role)
	assert.Equal(t, "Price on value, not hours.", resp.Messages[0].Content)

	require.Equal(t, 1, gen.calls())
	req := gen.textReqs[0]
	assert.Equal(t, "gemini-1.5-flash", req.Model)
	assert.Equal(t, "v1beta", req.APIVersion)
	assert.Equal(t, "How do I price my service?", req.Prompt)
	assert.Contains(t, req.SystemInstruction, SystemInstruction)
	assert.Contains(t, req.SystemInstruction, domain.StyleDetailed.Instruction())
	assert.Nil(t, req.Attachment)
}

func TestRelayUsesLastUserTurnAndStyle(t *testing.T) {
	gen := &spyGenerator{reply: &llm.Reply{Text: "ok"}}
	svc := newTestService(t, gen, nil)

	_, err := svc.Relay(context.Background(), &domain.ChatRequest{
		Model:         "local-llama",
		ResponseStyle: "step-by-step",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "first"},
			{Role: domain.RoleAssistant, Content: "answer"},
			{Role: domain.RoleUser, Content: "second"},
		},
	})
	require.NoError(t, err)
	require.Len(t, gen.textReqs, 1)
	assert.Equal(t, "second", gen.textReqs[0].Prompt)
	assert.Equal(t, "llama3.2-vision", gen.textReqs[0].Model)
	assert.Contains(t, gen.textReqs[0].SystemInstruction, domain.StyleStepByStep.Instruction())
}

func TestRelayInvalidSelectorMakesNoCall(t *testing.T) {
	gen := &spyGenerator{reply: &llm.Reply{Text: "x"}}
	svc := newTestService(t, gen, nil)

	_, err := svc.Relay(context.Background(), &domain.ChatRequest{Model: "gpt-4", Messages: userMsg("hi")})
	assert.True(t, errors.Is(err, domain.ErrInvalidSelector))

	_, err = svc.Relay(context.Background(), &domain.ChatRequest{Model: "gemini-1.5-flash", ResponseStyle: "poetic", Messages: userMsg("hi")})
	assert.True(t, errors.Is(err, domain.ErrInvalidSelector))

	assert.Equal(t, 0, gen.calls())
}

func TestRelayMissingInputMakesNoCall(t *testing.T) {
	gen := &spyGenerator{reply: &llm.Reply{Text: "x"}}
	svc := newTestService(t, gen, nil)

	_, err := svc.Relay(context.Background(), &domain.ChatRequest{Model: "gemini-1.5-flash"})
	assert.True(t, errors.Is(err, domain.ErrMissingInput))

	_, err = svc.Relay(context.Background(), &domain.ChatRequest{Model: "gemini-1.5-flash", Messages: userMsg("   ")})
	assert.True(t, errors.Is(err, domain.ErrMissingInput))

	_, err = svc.Relay(context.Background(), &domain.ChatRequest{
		Model:    "gemini-1.5-flash",
		Messages: []domain.Message{{Role: domain.RoleAssistant, Content: "hello"}},
	})
	assert.True(t, errors.Is(err, domain.ErrMissingInput))

	assert.Equal(t, 0, gen.calls())
}

func TestRelayConfigurationError(t *testing.T) {
	gen := &spyGenerator{readyErr: domain.ErrConfiguration}
	svc := newTestService(t, gen, nil)

	_, err := svc.Relay(context.Background(), &domain.ChatRequest{Model: "gemini-1.5-flash", Messages: userMsg("hi")})
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
	assert.Equal(t, 0, gen.calls())
}

func TestRelayInlinesAttachmentForImageAnalysis(t *testing.T) {
	gen := &spyGenerator{reply: &llm.Reply{Text: "A chart."}}
	svc := newTestService(t, gen, nil)

	_, err := svc.Relay(context.Background(), &domain.ChatRequest{
		Model:      "gemini-1.5-flash",
		Messages:   userMsg("What is this?"),
		Attachment: &domain.Attachment{Name: "c.png", MimeType: "image/png", Data: pngBytes},
	})
	require.NoError(t, err)
	require.Len(t, gen.textReqs, 1)
	require.NotNil(t, gen.textReqs[0].Attachment)
	assert.Equal(t, "image/png", gen.textReqs[0].Attachment.MimeType)
	assert.Equal(t, pngBytes, gen.textReqs[0].Attachment.Data)
	assert.Equal(t, "What is this?", gen.textReqs[0].Prompt)
}

func TestRelayOmitsAttachmentWithoutImageAnalysis(t *testing.T) {
	gen := &spyGenerator{reply: &llm.Reply{Text: "ok"}}
	svc := newTestService(t, gen, nil)

	_, err := svc.Relay(context.Background(), &domain.ChatRequest{
		Model:      "gemini-2.5-pro-preview-05-06",
		Messages:   userMsg("What is this?"),
		Attachment: &domain.Attachment{Name: "c.png", MimeType: "image/png", Data: pngBytes},
	})
	require.NoError(t, err)
	require.Len(t, gen.textReqs, 1)
	assert.Nil(t, gen.textReqs[0].Attachment)
}

func TestRelayAttachmentOnly(t *testing.T) {
	gen := &spyGenerator{reply: &llm.Reply{Text: "Summary"}}
	svc := newTestService(t, gen, nil)

	_, err := svc.Relay(context.Background(), &domain.ChatRequest{
		Model:      "gemini-2.0-flash",
		Messages:   userMsg(""),
		Attachment: &domain.Attachment{Name: "plan.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.4")},
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultDocumentPrompt, gen.textReqs[0].Prompt)
	require.NotNil(t, gen.textReqs[0].Attachment)
}

func TestRelayImageFromMessage(t *testing.T) {
	gen := &spyGenerator{reply: &llm.Reply{Text: "ok"}}
	svc := newTestService(t, gen, nil)

	_, err := svc.Relay(context.Background(), &domain.ChatRequest{
		Model: "gemini-1.5-flash",
		Messages: []domain.Message{{
			Role:     domain.RoleUser,
			Content:  "look",
			Image:    base64.StdEncoding.EncodeToString(pngBytes),
			MimeType: "image/png",
		}},
	})
	require.NoError(t, err)
	require.NotNil(t, gen.textReqs[0].Attachment)
	assert.Equal(t, pngBytes, gen.textReqs[0].Attachment.Data)
}

func TestRelayRejectsAttachments(t *testing.T) {
	gen := &spyGenerator{reply: &llm.Reply{Text: "x"}}
	svc := newTestService(t, gen, nil)

	_, err := svc.Relay(context.Background(), &domain.ChatRequest{
		Model:      "gemini-1.5-flash",
		Messages:   userMsg("hi"),
		Attachment: &domain.Attachment{Name: "a.gif", MimeType: "image/gif", Data: []byte("GIF89a")},
	})
	assert.True(t, errors.Is(err, domain.ErrUnsupportedAttachment))

	_, err = svc.Relay(context.Background(), &domain.ChatRequest{
		Model:      "gemini-1.5-flash",
		Messages:   userMsg("hi"),
		Attachment: &domain.Attachment{Name: "big.png", MimeType: "image/png", Data: make([]byte, 1<<20+1)},
	})
	assert.True(t, errors.Is(err, domain.ErrAttachmentTooLarge))

	assert.Equal(t, 0, gen.calls())
}

func TestRelayGenerateImage(t *testing.T) {
	gen := &spyGenerator{reply: &llm.Reply{Image: "aW1n", MimeType: "image/png"}}
	svc := newTestService(t, gen, nil)

	resp, err := svc.Relay(context.Background(), &domain.ChatRequest{
		Model:      "imagen-3.0-generate-002",
		Messages:   userMsg(""),
		Attachment: &domain.Attachment{Name: "logo.jpg", MimeType: "image/jpeg", Data: []byte{0xff, 0xd8}},
	})
	require.NoError(t, err)
	require.Len(t, gen.imageReqs, 1)
	assert.Equal(t, DefaultImagePrompt, gen.imageReqs[0].Prompt)
	require.NotNil(t, gen.imageReqs[0].Reference)
	assert.Equal(t, "image/jpeg", gen.imageReqs[0].Reference.MimeType)

	msg := resp.Messages[0]
	assert.Equal(t, GeneratedImageContent, msg.Content)
	assert.Equal(t, "aW1n", msg.Image)
	assert.Equal(t, "image/png", msg.MimeType)
}

func TestRelayFallbacks(t *testing.T) {
	gen := &spyGenerator{reply: &llm.Reply{}}
	svc := newTestService(t, gen, nil)

	resp, err := svc.Relay(context.Background(), &domain.ChatRequest{Model: "gemini-1.5-flash", Messages: userMsg("hi")})
	require.NoError(t, err)
	assert.Equal(t, TextFallback, resp.Messages[0].Content)

	resp, err = svc.Relay(context.Background(), &domain.ChatRequest{Model: "imagen-3.0-generate-002", Messages: userMsg("a logo")})
	require.NoError(t, err)
	assert.Equal(t, ImageFallback, resp.Messages[0].Content)
	assert.Empty(t, resp.Messages[0].Image)
	assert.Equal(t, "a logo", gen.imageReqs[0].Prompt)
}

func TestRelayRetryAfterUpstreamErrorCallsAgain(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	gen := &spyGenerator{err: &domain.UpstreamError{Status: 503, Message: "overloaded"}}
	svc := newTestService(t, gen, store)

	req := &domain.ChatRequest{Model: "gemini-1.5-flash", Messages: userMsg("hi")}

	_, err := svc.Relay(context.Background(), req)
	var upstream *domain.UpstreamError
	require.True(t, errors.As(err, &upstream))

	gen.err = nil
	gen.reply = &llm.Reply{Text: "better now"}
	resp, err := svc.Relay(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "better now", resp.Messages[0].Content)
	assert.Equal(t, 2, gen.calls())

	calls, err := svc.RecentCalls(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	statuses := []domain.CallStatus{calls[0].Status, calls[1].Status}
	assert.ElementsMatch(t, []domain.CallStatus{domain.CallStatusSucceeded, domain.CallStatusFailed}, statuses)
	for _, c := range calls {
		assert.Equal(t, "gemini-1.5-flash", c.Provider)
		assert.NotNil(t, c.FinishedAt)
	}
}

func TestRelayAuditRecordsAttachmentMode(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	gen := &spyGenerator{reply: &llm.Reply{Text: "ok"}}
	svc := newTestService(t, gen, store)

	_, err := svc.Relay(context.Background(), &domain.ChatRequest{
		Model:      "gemini-2.5-pro-preview-05-06",
		Messages:   userMsg("see file"),
		Attachment: &domain.Attachment{MimeType: "Image/PNG; q=1", Data: pngBytes},
	})
	require.NoError(t, err)

	calls, err := svc.RecentCalls(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "image/png", calls[0].AttachmentMime)
	assert.Equal(t, domain.AttachmentOmit, calls[0].AttachmentMode)
	assert.Equal(t, domain.CallStatusSucceeded, calls[0].Status)
}

func TestServiceListings(t *testing.T) {
	svc := newTestService(t, &spyGenerator{}, nil)
	assert.Len(t, svc.Providers(), 7)
	assert.Equal(t, domain.ResponseStyles(), svc.ResponseStyles())
	assert.Contains(t, svc.AllowedMIMETypes(), "application/pdf")

	calls, err := svc.RecentCalls(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestCheckBackends(t *testing.T) {
	gen := &spyGenerator{}
	require.NoError(t, newTestService(t, gen, nil).CheckBackends())

	cat, err := catalog.Default()
	require.NoError(t, err)
	engine, err := policy.NewDefaultEngine(context.Background())
	require.NoError(t, err)
	svc := New(cat, engine, map[domain.Backend]llm.Generator{domain.BackendGemini: gen}, nil, 1<<20)

	err = svc.CheckBackends()
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(domain.BackendOllama))
}

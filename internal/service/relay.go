package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/xiaot623/advisor/internal/adapter/llm"
	"github.com/xiaot623/advisor/internal/domain"
	"github.com/xiaot623/advisor/internal/policy"
)

const (
	// SystemInstruction is sent with every text request, followed by the style sentence.
	SystemInstruction = "You are an expert business advisor. Provide detailed, actionable responses."

	DefaultImagePrompt    = "Generate a professional business image"
	DefaultDocumentPrompt = "Analyze this document"
	GeneratedImageContent = "Here's the generated image:"
	TextFallback          = "I couldn't generate a response. Please try again."
	ImageFallback         = "I couldn't generate an image. Please try again."

	defaultImageMime = "image/png"
)

// Relay validates a chat request, performs exactly one upstream call and
// reshapes the result into a single assistant message.
func (s *Service) Relay(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	provider, err := s.catalog.Lookup(req.Model)
	if err != nil {
		return nil, err
	}
	style, err := domain.ParseResponseStyle(req.ResponseStyle)
	if err != nil {
		return nil, err
	}

	gen, ok := s.generators[provider.Backend]
	if !ok {
		return nil, fmt.Errorf("%w: no client for backend %q", domain.ErrConfiguration, provider.Backend)
	}
	if err := gen.Ready(); err != nil {
		return nil, err
	}

	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: transcript is empty", domain.ErrMissingInput)
	}

	att, err := resolveAttachment(req)
	if err != nil {
		return nil, err
	}
	last := req.Messages[len(req.Messages)-1]
	if !last.HasContent() && att == nil {
		return nil, fmt.Errorf("%w: last message has no content", domain.ErrMissingInput)
	}

	mode := domain.AttachmentOmit
	if att != nil {
		if s.maxAttachmentBytes > 0 && int64(len(att.Data)) > s.maxAttachmentBytes {
			return nil, fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrAttachmentTooLarge, len(att.Data), s.maxAttachmentBytes)
		}
		mode, err = s.policyEngine.Decide(ctx, policy.Input{
			MimeType:     att.MimeType,
			EndpointKind: provider.EndpointKind,
			Capabilities: provider.Capabilities,
		})
		if err != nil {
			return nil, err
		}
		if mode == domain.AttachmentReject {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedAttachment, att.MimeType)
		}
	}

	var reply *llm.Reply
	var call *domain.RelayCall

	switch provider.EndpointKind {
	case domain.EndpointGenerateImage:
		imgReq := &llm.ImageRequest{
			Model:      provider.UpstreamModel,
			APIVersion: provider.APIVersion,
			Prompt:     strings.TrimSpace(last.Content),
		}
		if imgReq.Prompt == "" {
			imgReq.Prompt = DefaultImagePrompt
		}
		if mode == domain.AttachmentReference {
			imgReq.Reference = &llm.InlineData{MimeType: att.MimeType, Data: att.Data}
		}
		call = s.startCall(ctx, provider, att, mode)
		reply, err = gen.GenerateImage(ctx, imgReq)

	default:
		prompt := lastUserContent(req.Messages)
		if prompt == "" {
			if att == nil {
				return nil, fmt.Errorf("%w: no user message to answer", domain.ErrMissingInput)
			}
			prompt = DefaultDocumentPrompt
		}
		textReq := &llm.TextRequest{
			Model:             provider.UpstreamModel,
			APIVersion:        provider.APIVersion,
			SystemInstruction: SystemInstruction + " " + style.Instruction(),
			Prompt:            prompt,
		}
		if mode == domain.AttachmentInline {
			textReq.Attachment = &llm.InlineData{MimeType: att.MimeType, Data: att.Data}
		}
		call = s.startCall(ctx, provider, att, mode)
		reply, err = gen.GenerateText(ctx, textReq)
	}

	s.finishCall(ctx, call, err)
	if err != nil {
		return nil, err
	}

	return &domain.ChatResponse{Messages: []domain.Message{reshape(provider.EndpointKind, reply)}}, nil
}

func reshape(kind domain.EndpointKind, reply *llm.Reply) domain.Message {
	if reply == nil {
		reply = &llm.Reply{}
	}
	msg := domain.Message{Role: domain.RoleAssistant}

	if kind == domain.EndpointGenerateImage {
		if reply.Image == "" {
			msg.Content = ImageFallback
			return msg
		}
		msg.Content = GeneratedImageContent
		msg.Image = reply.Image
		msg.MimeType = reply.MimeType
		if msg.MimeType == "" {
			msg.MimeType = defaultImageMime
		}
		return msg
	}

	msg.Content = reply.Text
	if strings.TrimSpace(msg.Content) == "" {
		msg.Content = TextFallback
	}
	if reply.Image != "" {
		msg.Image = reply.Image
		msg.MimeType = reply.MimeType
	}
	return msg
}

func lastUserContent(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

// resolveAttachment returns the uploaded file, or the image carried on the
// last user message when no file was uploaded.
func resolveAttachment(req *domain.ChatRequest) (*domain.Attachment, error) {
	if req.Attachment != nil {
		att := *req.Attachment
		att.MimeType = normalizeMime(att.MimeType)
		if len(att.Data) == 0 {
			return nil, nil
		}
		return &att, nil
	}

	last := req.Messages[len(req.Messages)-1]
	if last.Role != domain.RoleUser || last.Image == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(last.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: message image is not valid base64", domain.ErrUnsupportedAttachment)
	}
	mime := normalizeMime(last.MimeType)
	if mime == "" {
		mime = defaultImageMime
	}
	return &domain.Attachment{MimeType: mime, Data: data}, nil
}

func normalizeMime(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

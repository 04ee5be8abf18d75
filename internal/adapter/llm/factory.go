package llm

import (
	"log"
	"time"

	"github.com/xiaot623/advisor/internal/domain"
)

// Options configures the upstream clients.
type Options struct {
	GeminiBaseURL string
	GeminiAPIKey  string
	OllamaURL     string
	Timeout       time.Duration
	Mock          bool
}

// NewGenerators returns one Generator per backend.
// In mock mode every backend answers with canned replies.
func NewGenerators(opts Options) map[domain.Backend]Generator {
	if opts.Mock {
		log.Println("ADVISOR_MODE=MOCK detected, using mock upstream clients")
		mock := NewMockClient()
		return map[domain.Backend]Generator{
			domain.BackendGemini: mock,
			domain.BackendOllama: mock,
		}
	}

	return map[domain.Backend]Generator{
		domain.BackendGemini: NewGeminiClient(opts.GeminiBaseURL, opts.GeminiAPIKey, opts.Timeout),
		domain.BackendOllama: NewOllamaClient(opts.OllamaURL, opts.Timeout),
	}
}

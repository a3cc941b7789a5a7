package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Summarizer condenses a finished transcript. Failures are reported to the
// user but never fatal to the transcript itself.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxWords, minWords int) (string, error)
}

// GeminiSummarizer summarizes transcripts with a Gemini model.
type GeminiSummarizer struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiSummarizer(
	ctx context.Context,
	apiKey string,
) (*GeminiSummarizer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := client.GenerativeModel("gemini-1.5-flash")
	model.GenerationConfig.SetMaxOutputTokens(1024)
	model.GenerationConfig.SetTemperature(0.2)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{
			genai.Text(
				"Summarize the following voice chat transcript. " +
					"Capture who said what and any decisions made. " +
					"Write plain prose, no headings.",
			),
		},
	}

	return &GeminiSummarizer{client: client, model: model}, nil
}

func (s *GeminiSummarizer) Summarize(
	ctx context.Context,
	text string,
	maxWords, minWords int,
) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize in %d to %d words:\n\n%s",
		minWords, maxWords, text,
	)

	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}

	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}

	summary := strings.TrimSpace(b.String())
	if summary == "" {
		return "", fmt.Errorf("model returned no summary text")
	}
	return summary, nil
}

func (s *GeminiSummarizer) Close() error {
	return s.client.Close()
}

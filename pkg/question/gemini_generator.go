package question

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ai-interview-be/internal/entity"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const interviewPromptFormat = `You are an excellent interviewer with 15+ years of experience conducting professional interviews.

Context:
- You are conducting an HR interview
- The candidate has just answered a question
- You need to provide a brief summary of their answer and ask the next appropriate question

Guidelines:
1. Summarize the candidate's answer briefly, preserving key points
2. Ask ONE follow-up question that flows naturally from their response
3. Use standard HR interview questions appropriate for the conversation stage
4. Be polite, friendly, and professional
5. Avoid repeating questions unless seeking clarification
6. If the conversation has no answers yet, open the interview with a short greeting and a first question
7. Respond ONLY in %s`

var languageNames = map[string]string{
	"id": "Bahasa Indonesia",
	"en": "English",
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []*geminiPart `json:"parts"`
	Role  string        `json:"role,omitempty"`
}

type geminiRequest struct {
	Contents          []*geminiContent `json:"contents"`
	SystemInstruction *geminiContent   `json:"system_instruction,omitempty"`
}

type geminiCandidate struct {
	Content *geminiContent `json:"content"`
}

type geminiStreamChunk struct {
	Candidates []*geminiCandidate `json:"candidates"`
}

const (
	roleUser  = "user"
	roleModel = "model"
)

// Generator produces the next interview question as a token stream.
// Tokens are forwarded through onToken as they arrive; the full question is
// returned once the upstream stream completes. Context cancellation aborts
// the stream and discards partial output.
type Generator interface {
	Generate(ctx context.Context, history []entity.HistoryEntry, language string, onToken func(token string) error) (string, error)
}

type GeminiGenerator struct {
	// BaseURL is overridable for tests; defaults to the Google endpoint.
	BaseURL string

	apiKey string
	model  string
	client *http.Client
}

func NewGeminiGenerator(apiKey, model string, client *http.Client) *GeminiGenerator {
	if client == nil {
		client = &http.Client{}
	}
	return &GeminiGenerator{
		BaseURL: defaultBaseURL,
		apiKey:  apiKey,
		model:   model,
		client:  client,
	}
}

func historyContents(history []entity.HistoryEntry) []*geminiContent {
	contents := make([]*geminiContent, 0, len(history)+1)
	for _, entry := range history {
		role := roleUser
		if entry.Speaker == entity.SpeakerInterviewer {
			role = roleModel
		}
		contents = append(contents, &geminiContent{
			Parts: []*geminiPart{{Text: entry.Text}},
			Role:  role,
		})
	}
	if len(contents) == 0 || contents[len(contents)-1].Role == roleModel {
		// Gemini requires the last content to be a user turn.
		contents = append(contents, &geminiContent{
			Parts: []*geminiPart{{Text: "Please continue the interview."}},
			Role:  roleUser,
		})
	}
	return contents
}

func (g *GeminiGenerator) Generate(
	ctx context.Context,
	history []entity.HistoryEntry,
	language string,
	onToken func(token string) error,
) (string, error) {
	languageName, ok := languageNames[language]
	if !ok {
		languageName = "Bahasa Indonesia"
	}

	payload := geminiRequest{
		Contents: historyContents(history),
		SystemInstruction: &geminiContent{
			Parts: []*geminiPart{{Text: fmt.Sprintf(interviewPromptFormat, languageName)}},
		},
	}
	payloadJson, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", g.BaseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payloadJson))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-goog-api-key", g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	res, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		resBody, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf(
			"status error, got status %d. with response body %s",
			res.StatusCode,
			string(resBody),
		)
	}

	var full strings.Builder
	reader := bufio.NewReader(res.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", err
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" || data == "" {
			break
		}

		var chunk geminiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // skip unparseable chunks
		}
		if len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil {
			continue
		}

		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Text == "" {
				continue
			}
			full.WriteString(part.Text)
			if onToken != nil {
				if err := onToken(part.Text); err != nil {
					return "", err
				}
			}
		}
	}

	if full.Len() == 0 {
		return "", fmt.Errorf("empty generation response")
	}

	return full.String(), nil
}

package transcriber

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const transcribePromptFormat = "Transcribe the following audio data. The speaker will use %s, " +
	"so you need to transcribe it accurately in the original language. " +
	"Return only the transcribed text without any additional formatting or comments."

// languageNames maps the session language codes to the wording used in the
// transcription prompt.
var languageNames = map[string]string{
	"id": "Bahasa Indonesia or English",
	"en": "English",
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Parts []*geminiPart `json:"parts"`
	Role  string        `json:"role,omitempty"`
}

type geminiRequest struct {
	Contents []*geminiContent `json:"contents"`
}

type geminiCandidate struct {
	Content *geminiContent `json:"content"`
}

type geminiResponse struct {
	Candidates []*geminiCandidate `json:"candidates"`
}

// Transcriber turns one audio chunk into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

type GeminiTranscriber struct {
	// BaseURL is overridable for tests; defaults to the Google endpoint.
	BaseURL string

	apiKey string
	model  string
	client *http.Client
}

func NewGeminiTranscriber(apiKey, model string, client *http.Client) *GeminiTranscriber {
	if client == nil {
		client = &http.Client{}
	}
	return &GeminiTranscriber{
		BaseURL: defaultBaseURL,
		apiKey:  apiKey,
		model:   model,
		client:  client,
	}
}

func (t *GeminiTranscriber) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	languageName, ok := languageNames[language]
	if !ok {
		languageName = "Bahasa Indonesia or English"
	}

	payload := geminiRequest{
		Contents: []*geminiContent{
			{
				Parts: []*geminiPart{
					{Text: fmt.Sprintf(transcribePromptFormat, languageName)},
					{InlineData: &geminiInlineData{
						MimeType: "audio/wav",
						Data:     base64.StdEncoding.EncodeToString(audio),
					}},
				},
			},
		},
	}
	payloadJson, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", t.BaseURL, t.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payloadJson))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-goog-api-key", t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf(
			"status error, got status %d. with response body %s",
			res.StatusCode,
			string(resBody),
		)
	}

	var geminiRes geminiResponse
	if err := json.Unmarshal(resBody, &geminiRes); err != nil {
		return "", err
	}

	if len(geminiRes.Candidates) == 0 ||
		geminiRes.Candidates[0].Content == nil ||
		len(geminiRes.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty transcription response")
	}

	return geminiRes.Candidates[0].Content.Parts[0].Text, nil
}

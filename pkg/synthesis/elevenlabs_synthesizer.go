package synthesis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultBaseURL = "https://api.elevenlabs.io"

// audio is forwarded in chunks of this size, base64 encoded
const chunkSize = 8 * 1024

// Synthesizer converts text to speech, delivering audio as a stream of
// base64 chunks through onAudio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string, onAudio func(audioB64 string) error) error
}

type elevenLabsRequest struct {
	Text         string `json:"text"`
	ModelId      string `json:"model_id"`
	LanguageCode string `json:"language_code,omitempty"`
}

type ElevenLabsSynthesizer struct {
	// BaseURL is overridable for tests; defaults to the ElevenLabs endpoint.
	BaseURL string

	apiKey  string
	model   string
	voiceId string
	client  *http.Client
}

func NewElevenLabsSynthesizer(apiKey, model, voiceId string, client *http.Client) *ElevenLabsSynthesizer {
	if client == nil {
		client = &http.Client{}
	}
	return &ElevenLabsSynthesizer{
		BaseURL: defaultBaseURL,
		apiKey:  apiKey,
		model:   model,
		voiceId: voiceId,
		client:  client,
	}
}

func (s *ElevenLabsSynthesizer) Synthesize(
	ctx context.Context,
	text, language string,
	onAudio func(audioB64 string) error,
) error {
	payload := elevenLabsRequest{
		Text:         text,
		ModelId:      s.model,
		LanguageCode: language,
	}
	payloadJson, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?output_format=pcm_24000", s.BaseURL, s.voiceId)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payloadJson))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		resBody, _ := io.ReadAll(res.Body)
		return fmt.Errorf(
			"status error, got status %d. with response body %s",
			res.StatusCode,
			string(resBody),
		)
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := res.Body.Read(buf)
		if n > 0 {
			if emitErr := onAudio(base64.StdEncoding.EncodeToString(buf[:n])); emitErr != nil {
				return emitErr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

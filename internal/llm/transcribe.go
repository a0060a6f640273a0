package llm

import (
	"context"
	"fmt"
)

const transcribeInstruction = "Transcribe all text visible in this image. " +
	"Preserve structure (tables, lists, headings) as plain text. " +
	"If the image contains no text, describe its content in one sentence."

// Transcriber converts an image into text. Failures for one image are
// independent of any other.
type Transcriber interface {
	Transcribe(ctx context.Context, imageURL string) (string, error)
}

// VisionTranscriber transcribes images through a vision-capable model.
type VisionTranscriber struct {
	provider Provider
	model    string
}

// NewVisionTranscriber creates a transcriber on the given provider and model.
func NewVisionTranscriber(provider Provider, model string) *VisionTranscriber {
	return &VisionTranscriber{provider: provider, model: model}
}

// Transcribe runs one vision call for one image.
func (t *VisionTranscriber) Transcribe(ctx context.Context, imageURL string) (string, error) {
	resp, err := t.provider.CreateChatCompletion(ctx, &ChatCompletionRequest{
		Model:     t.model,
		Messages:  []ChatMessage{VisionMessage(transcribeInstruction, imageURL)},
		MaxTokens: 2048,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("transcription returned no choices")
	}
	text, _ := resp.Choices[0].Message.Content.(string)
	return text, nil
}

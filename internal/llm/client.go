// Package llm is the OpenAI-compatible model provider client used for chat
// generation, title derivation and image transcription.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Provider is the model-call surface the generation pipeline depends on.
type Provider interface {
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*StreamResult, error)
}

// StreamCallback receives each chunk of a streaming completion.
type StreamCallback func(chunk *ChatCompletionChunk) error

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ Provider = (*Client)(nil)

// NewClient creates a provider client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) post(ctx context.Context, endpoint string, body any) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return resp, nil
}

// CreateChatCompletion handles non-streaming completions.
func (c *Client) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	resp, err := c.post(ctx, "/chat/completions", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var response ChatCompletionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &response, nil
}

// CreateChatCompletionStream runs a streaming completion, invoking callback
// per chunk and assembling the final message, finish reason and usage.
func (c *Client) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*StreamResult, error) {
	streamReq := *req
	streamReq.Stream = true
	if streamReq.StreamOptions == nil {
		streamReq.StreamOptions = &StreamOptions{IncludeUsage: true}
	}

	resp, err := c.post(ctx, "/chat/completions", &streamReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &StreamResult{Message: ChatMessage{Role: "assistant"}}
	var content strings.Builder
	var reasoning strings.Builder
	calls := make(map[int]*ToolCall)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		if line == "data: [DONE]" {
			break
		}

		var chunk ChatCompletionChunk
		if err := json.Unmarshal([]byte(line[6:]), &chunk); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stream chunk: %w", err)
		}

		if chunk.Usage != nil {
			result.Usage.Add(*chunk.Usage)
		}

		for _, choice := range chunk.Choices {
			if choice.Index != 0 {
				continue
			}
			content.WriteString(choice.Delta.Content)
			reasoning.WriteString(choice.Delta.Reasoning)
			for _, d := range choice.Delta.ToolCalls {
				tc, ok := calls[d.Index]
				if !ok {
					tc = &ToolCall{Type: "function"}
					calls[d.Index] = tc
				}
				if d.ID != "" {
					tc.ID = d.ID
				}
				if d.Function.Name != "" {
					tc.Function.Name = d.Function.Name
				}
				tc.Function.Arguments += d.Function.Arguments
			}
			if choice.FinishReason != "" {
				result.FinishReason = choice.FinishReason
			}
		}

		if callback != nil {
			if err := callback(&chunk); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading stream: %w", err)
	}

	result.Message.Content = content.String()
	result.Reasoning = reasoning.String()

	if len(calls) > 0 {
		indexes := make([]int, 0, len(calls))
		for i := range calls {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			result.Message.ToolCalls = append(result.Message.ToolCalls, *calls[i])
		}
	}

	return result, nil
}

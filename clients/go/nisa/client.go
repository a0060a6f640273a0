// Package nisa provides a Go client for the coaching-assistant chat API:
// auth, posting a turn, consuming the event stream and resuming after a
// disconnect.
package nisa

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Client is a chat API client. Token is a bearer session token obtained from
// one of the auth endpoints.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Token      string
	HTTPClient *http.Client
}

// Config holds the persisted session.
type Config struct {
	Token string `json:"token"`
}

// NewClient creates a new client. Streaming responses have no overall
// timeout; a turn runs as long as the generation does.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("NISA_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".nisa")
	}

	c := &Client{
		BaseURL:    baseURL,
		ConfigDir:  configDir,
		HTTPClient: &http.Client{},
	}

	_ = c.LoadConfig()
	return c
}

// LoadConfig loads the saved session token from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "session.json"))
	if err != nil {
		return err
	}
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}
	c.Token = config.Token
	return nil
}

// SaveConfig saves the session token to disk.
func (c *Client) SaveConfig() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(Config{Token: c.Token}, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "session.json"), data, 0600)
}

// doRequest performs a JSON request and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, errResp.Error)
	}
	return respBody, nil
}

// Session is the response from the auth endpoints.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	UserType  string    `json:"user_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *Client) authRequest(ctx context.Context, path string, body []byte) (*Session, error) {
	respBody, err := c.doRequest(ctx, "POST", path, body)
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(respBody, &sess); err != nil {
		return nil, err
	}
	c.Token = sess.Token
	if err := c.SaveConfig(); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Register creates an account and saves the session.
func (c *Client) Register(ctx context.Context, email, password string) (*Session, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	return c.authRequest(ctx, "/auth/register", body)
}

// Login signs in and saves the session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	return c.authRequest(ctx, "/auth/login", body)
}

// Guest creates an anonymous session and saves it.
func (c *Client) Guest(ctx context.Context) (*Session, error) {
	return c.authRequest(ctx, "/auth/guest", nil)
}

// Event is one server-sent event from the chat stream.
type Event struct {
	Type string
	Data json.RawMessage
}

// StreamEvents reads SSE events from body onto the returned channel. The
// channel closes on the finish event, read error, or end of stream.
func StreamEvents(body io.Reader) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var ev Event
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Type = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
			case line == "":
				if ev.Type != "" {
					out <- ev
					if ev.Type == "finish" {
						return
					}
				}
				ev = Event{}
			}
		}
	}()
	return out
}

// TurnOptions configures a chat turn.
type TurnOptions struct {
	Model      string // "chat" (default) or "chat-reasoning"
	Visibility string // "private" (default) or "public"
}

// StartTurn posts one user message and returns the event stream. The caller
// must drain the channel; the underlying response body closes with it.
func (c *Client) StartTurn(ctx context.Context, chatID uuid.UUID, text string, opts TurnOptions) (<-chan Event, error) {
	payload := map[string]any{
		"id": chatID.String(),
		"message": map[string]any{
			"id":    ulid.Make().String(),
			"role":  "user",
			"parts": []map[string]string{{"type": "text", "text": text}},
		},
	}
	if opts.Model != "" {
		payload["selectedChatModel"] = opts.Model
	}
	if opts.Visibility != "" {
		payload["selectedVisibilityType"] = opts.Visibility
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, errResp.Error)
	}

	out := make(chan Event, 16)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		for ev := range StreamEvents(resp.Body) {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Resume re-attaches to a chat's most recent generation. A nil channel with
// nil error means there was nothing to replay.
func (c *Client) Resume(ctx context.Context, chatID uuid.UUID) (<-chan Event, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/chat?conversationId="+chatID.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		resp.Body.Close()
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, errResp.Error)
	}

	out := make(chan Event, 16)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		for ev := range StreamEvents(resp.Body) {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Chat is one entry of the history list.
type Chat struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Visibility string    `json:"visibility"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryResponse is the response from the history endpoint.
type HistoryResponse struct {
	Chats   []Chat `json:"chats"`
	HasMore bool   `json:"has_more"`
}

// History lists the signed-in user's chats, newest first.
func (c *Client) History(ctx context.Context, limit int, endingBefore string) (*HistoryResponse, error) {
	path := fmt.Sprintf("/history?limit=%d", limit)
	if endingBefore != "" {
		path += "&ending_before=" + endingBefore
	}
	respBody, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	var resp HistoryResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteChat deletes a chat the session owns.
func (c *Client) DeleteChat(ctx context.Context, chatID uuid.UUID) error {
	_, err := c.doRequest(ctx, "DELETE", "/chat?id="+chatID.String(), nil)
	return err
}

// SetVisibility changes a chat's visibility.
func (c *Client) SetVisibility(ctx context.Context, chatID uuid.UUID, visibility string) error {
	_, err := c.doRequest(ctx, "PATCH", fmt.Sprintf("/chat/visibility?id=%s&visibility=%s", chatID, visibility), nil)
	return err
}

// Vote records an up or down vote on a message.
func (c *Client) Vote(ctx context.Context, chatID uuid.UUID, messageID, voteType string) error {
	body, _ := json.Marshal(map[string]string{
		"chatId":    chatID.String(),
		"messageId": messageID,
		"type":      voteType,
	})
	_, err := c.doRequest(ctx, "PATCH", "/vote", body)
	return err
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	respBody, err := c.doRequest(ctx, "GET", "/health", nil)
	if err != nil {
		return nil, err
	}
	var resp map[string]any
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

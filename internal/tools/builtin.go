package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/agasthyaps/nisa-labs-sub000/internal/prompts"
)

// SpreadsheetService is the Google Sheets collaborator, contract-only.
type SpreadsheetService interface {
	ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]string, error)
	UpdateRange(ctx context.Context, spreadsheetID, updateRange string, values [][]string) error
}

// DriveFile is one search hit from the Drive collaborator.
type DriveFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	URL      string `json:"url"`
}

// DriveService is the Google Drive collaborator, contract-only.
type DriveService interface {
	Search(ctx context.Context, query string) ([]DriveFile, error)
}

// WeatherTool reports current conditions via Open-Meteo (keyless).
func WeatherTool() Tool {
	client := &http.Client{Timeout: 10 * time.Second}
	return Tool{
		Name:        "getWeather",
		Description: "Get the current weather for a location by latitude and longitude.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"latitude": {"type": "number"},
				"longitude": {"type": "number"}
			},
			"required": ["latitude", "longitude"]
		}`),
		Invoke: func(ctx context.Context, tc TurnContext, args json.RawMessage) (json.RawMessage, error) {
			var in struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}

			url := fmt.Sprintf(
				"https://api.open-meteo.com/v1/forecast?latitude=%f&longitude=%f&current=temperature_2m,weather_code&hourly=temperature_2m",
				in.Latitude, in.Longitude)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("weather service returned status %d", resp.StatusCode)
			}
			body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
			if err != nil {
				return nil, err
			}
			return json.RawMessage(body), nil
		},
	}
}

// ReadSheetTool reads a spreadsheet range through the Sheets collaborator.
func ReadSheetTool(svc SpreadsheetService) Tool {
	return Tool{
		Name:        "readSheet",
		Description: "Read a range of cells from a Google Sheet, e.g. to look at student data.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"spreadsheet_id": {"type": "string"},
				"range": {"type": "string", "description": "A1 notation, e.g. Sheet1!A1:D20"}
			},
			"required": ["spreadsheet_id", "range"]
		}`),
		Invoke: func(ctx context.Context, tc TurnContext, args json.RawMessage) (json.RawMessage, error) {
			if svc == nil {
				return nil, fmt.Errorf("spreadsheet access is not configured")
			}
			var in struct {
				SpreadsheetID string `json:"spreadsheet_id"`
				Range         string `json:"range"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			values, err := svc.ReadRange(ctx, in.SpreadsheetID, in.Range)
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"values": values})
		},
	}
}

// UpdateSheetTool writes a spreadsheet range through the Sheets collaborator.
func UpdateSheetTool(svc SpreadsheetService) Tool {
	return Tool{
		Name:        "updateSheet",
		Description: "Write values into a range of a Google Sheet.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"spreadsheet_id": {"type": "string"},
				"range": {"type": "string"},
				"values": {"type": "array", "items": {"type": "array", "items": {"type": "string"}}}
			},
			"required": ["spreadsheet_id", "range", "values"]
		}`),
		Invoke: func(ctx context.Context, tc TurnContext, args json.RawMessage) (json.RawMessage, error) {
			if svc == nil {
				return nil, fmt.Errorf("spreadsheet access is not configured")
			}
			var in struct {
				SpreadsheetID string     `json:"spreadsheet_id"`
				Range         string     `json:"range"`
				Values        [][]string `json:"values"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			if err := svc.UpdateRange(ctx, in.SpreadsheetID, in.Range, in.Values); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"updated": true, "range": in.Range})
		},
	}
}

// SearchDriveTool searches files through the Drive collaborator.
func SearchDriveTool(svc DriveService) Tool {
	return Tool{
		Name:        "searchDrive",
		Description: "Search the user's Google Drive for files by name or content.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"query": {"type": "string"}},
			"required": ["query"]
		}`),
		Invoke: func(ctx context.Context, tc TurnContext, args json.RawMessage) (json.RawMessage, error) {
			if svc == nil {
				return nil, fmt.Errorf("drive access is not configured")
			}
			var in struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			files, err := svc.Search(ctx, in.Query)
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"files": files})
		},
	}
}

var expertiseNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,100}$`)

// ExpertiseTool fetches a GitHub-hosted expertise document, cached with an
// explicit TTL so edits propagate without redeploys.
func ExpertiseTool(repo, token string, cache *prompts.Cache) Tool {
	client := &http.Client{Timeout: 15 * time.Second}
	return Tool{
		Name:        "getExpertise",
		Description: "Fetch a coaching expertise document by topic, e.g. 'classroom-management' or 'lesson-planning'.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"topic": {"type": "string", "description": "Document name without extension"}},
			"required": ["topic"]
		}`),
		Invoke: func(ctx context.Context, tc TurnContext, args json.RawMessage) (json.RawMessage, error) {
			if repo == "" {
				return nil, fmt.Errorf("expertise library is not configured")
			}
			var in struct {
				Topic string `json:"topic"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			if !expertiseNameRegex.MatchString(in.Topic) {
				return nil, fmt.Errorf("invalid topic name")
			}

			content, err := cache.GetOrFetch(in.Topic, func() (string, error) {
				url := fmt.Sprintf("https://raw.githubusercontent.com/%s/main/%s.md", repo, in.Topic)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
				if err != nil {
					return "", err
				}
				if token != "" {
					req.Header.Set("Authorization", "Bearer "+token)
				}
				resp, err := client.Do(req)
				if err != nil {
					return "", err
				}
				defer resp.Body.Close()
				if resp.StatusCode == http.StatusNotFound {
					return "", fmt.Errorf("no expertise document named %q", in.Topic)
				}
				if resp.StatusCode != http.StatusOK {
					return "", fmt.Errorf("expertise fetch returned status %d", resp.StatusCode)
				}
				body, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
				if err != nil {
					return "", err
				}
				return string(body), nil
			})
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]string{"topic": in.Topic, "content": content})
		},
	}
}

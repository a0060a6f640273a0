package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/agasthyaps/nisa-labs-sub000/internal/llm"
	"github.com/agasthyaps/nisa-labs-sub000/internal/models"
	"github.com/agasthyaps/nisa-labs-sub000/internal/store"
)

// DocumentDeps bundles the collaborators behind the document tools.
type DocumentDeps struct {
	Store    store.DataStore
	Provider llm.Provider
	Model    string
}

func (d DocumentDeps) generate(ctx context.Context, system, instruction string) (string, error) {
	resp, err := d.Provider.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Model: d.Model,
		Messages: []llm.ChatMessage{
			llm.TextMessage("system", system),
			llm.TextMessage("user", instruction),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("document generation returned no choices")
	}
	content, _ := resp.Choices[0].Message.Content.(string)
	return content, nil
}

const documentSystem = `Write the requested artifact in full, with no preamble
and no closing commentary. Markdown for text documents, raw source for code,
CSV for sheets.`

// CreateDocumentTool generates a new artifact document and persists it. The
// client learns the artifact's identity through out-of-band data events.
func CreateDocumentTool(deps DocumentDeps) Tool {
	return Tool{
		Name:        "createDocument",
		Description: "Create an artifact document (lesson plan, rubric, email, data sheet) for the user.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string"},
				"kind": {"type": "string", "enum": ["text", "code", "sheet", "image"]}
			},
			"required": ["title", "kind"]
		}`),
		Invoke: func(ctx context.Context, tc TurnContext, args json.RawMessage) (json.RawMessage, error) {
			var in struct {
				Title string              `json:"title"`
				Kind  models.DocumentKind `json:"kind"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			if in.Title == "" || !in.Kind.Valid() {
				return nil, fmt.Errorf("title and a valid kind are required")
			}

			doc := &models.Document{
				ID:     uuid.New(),
				Title:  in.Title,
				Kind:   in.Kind,
				UserID: tc.UserID,
			}

			if tc.Notify != nil {
				tc.Notify("kind", string(in.Kind))
				tc.Notify("id", doc.ID.String())
				tc.Notify("title", in.Title)
				tc.Notify("clear", nil)
			}

			content, err := deps.generate(ctx, documentSystem,
				fmt.Sprintf("Create a %s titled %q.", in.Kind, in.Title))
			if err != nil {
				return nil, err
			}
			doc.Content = content

			if err := deps.Store.SaveDocument(ctx, doc); err != nil {
				return nil, err
			}
			if tc.Notify != nil {
				tc.Notify("finish", nil)
			}

			return json.Marshal(map[string]string{
				"id":    doc.ID.String(),
				"title": doc.Title,
				"kind":  string(doc.Kind),
				"note":  "document created and shown to the user",
			})
		},
	}
}

// UpdateDocumentTool rewrites an existing document per a change description,
// persisting a new version under the same id.
func UpdateDocumentTool(deps DocumentDeps) Tool {
	return Tool{
		Name:        "updateDocument",
		Description: "Update an existing artifact document based on a change description.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"id": {"type": "string"},
				"description": {"type": "string", "description": "What to change"}
			},
			"required": ["id", "description"]
		}`),
		Invoke: func(ctx context.Context, tc TurnContext, args json.RawMessage) (json.RawMessage, error) {
			var in struct {
				ID          string `json:"id"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			docID, err := uuid.Parse(in.ID)
			if err != nil {
				return nil, fmt.Errorf("invalid document id")
			}

			doc, err := deps.Store.GetDocumentByID(ctx, docID)
			if err != nil {
				return nil, err
			}
			if doc == nil {
				return nil, fmt.Errorf("document not found")
			}
			if doc.UserID != tc.UserID {
				return nil, fmt.Errorf("document belongs to another user")
			}

			if tc.Notify != nil {
				tc.Notify("kind", string(doc.Kind))
				tc.Notify("id", doc.ID.String())
				tc.Notify("title", doc.Title)
				tc.Notify("clear", nil)
			}

			content, err := deps.generate(ctx, documentSystem, fmt.Sprintf(
				"Rewrite the following %s applying this change: %s\n\n---\n\n%s",
				doc.Kind, in.Description, doc.Content))
			if err != nil {
				return nil, err
			}

			next := &models.Document{
				ID:      doc.ID,
				Title:   doc.Title,
				Kind:    doc.Kind,
				Content: content,
				UserID:  doc.UserID,
			}
			if err := deps.Store.SaveDocument(ctx, next); err != nil {
				return nil, err
			}
			if tc.Notify != nil {
				tc.Notify("finish", nil)
			}

			return json.Marshal(map[string]string{
				"id":    doc.ID.String(),
				"title": doc.Title,
				"note":  "document updated and shown to the user",
			})
		},
	}
}

// SuggestionsTool proposes improvements for a document without changing it.
func SuggestionsTool(deps DocumentDeps) Tool {
	return Tool{
		Name:        "requestSuggestions",
		Description: "Suggest improvements for an existing artifact document.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"id": {"type": "string"}},
			"required": ["id"]
		}`),
		Invoke: func(ctx context.Context, tc TurnContext, args json.RawMessage) (json.RawMessage, error) {
			var in struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			docID, err := uuid.Parse(in.ID)
			if err != nil {
				return nil, fmt.Errorf("invalid document id")
			}

			doc, err := deps.Store.GetDocumentByID(ctx, docID)
			if err != nil {
				return nil, err
			}
			if doc == nil {
				return nil, fmt.Errorf("document not found")
			}

			suggestions, err := deps.generate(ctx,
				"You review teaching artifacts. Offer at most five specific, actionable suggestions as a numbered list.",
				doc.Content)
			if err != nil {
				return nil, err
			}

			return json.Marshal(map[string]string{
				"id":          doc.ID.String(),
				"suggestions": suggestions,
			})
		},
	}
}

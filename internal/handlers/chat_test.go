package handlers

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/agasthyaps/nisa-labs-sub000/internal/chat"
	"github.com/agasthyaps/nisa-labs-sub000/internal/chaterr"
	"github.com/agasthyaps/nisa-labs-sub000/internal/models"
)

func validTurnRequest() turnRequest {
	return turnRequest{
		ID: uuid.New().String(),
		Message: inboundMessage{
			ID:    ulid.Make().String(),
			Role:  "user",
			Parts: []models.Part{{Type: models.PartText, Text: "hello"}},
		},
	}
}

func expectBadRequest(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if kind := chaterr.KindOf(err); kind != chaterr.KindBadRequest {
		t.Fatalf("expected bad_request, got %s", kind)
	}
}

func TestValidateTurnDefaults(t *testing.T) {
	h := &ChatHandler{}
	in, err := h.validateTurn(validTurnRequest(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if in.SelectedModel != chat.ModelChat {
		t.Fatalf("expected default model, got %q", in.SelectedModel)
	}
	if in.Message.Role != models.RoleUser {
		t.Fatalf("unexpected role %q", in.Message.Role)
	}
}

func TestValidateTurnRejectsBadChatID(t *testing.T) {
	h := &ChatHandler{}
	req := validTurnRequest()
	req.ID = "not-a-uuid"
	_, err := h.validateTurn(req, uuid.New())
	expectBadRequest(t, err)
}

func TestValidateTurnRejectsBadMessageID(t *testing.T) {
	h := &ChatHandler{}
	req := validTurnRequest()
	req.Message.ID = "short"
	_, err := h.validateTurn(req, uuid.New())
	expectBadRequest(t, err)
}

func TestValidateTurnRejectsAssistantRole(t *testing.T) {
	h := &ChatHandler{}
	req := validTurnRequest()
	req.Message.Role = "assistant"
	_, err := h.validateTurn(req, uuid.New())
	expectBadRequest(t, err)
}

func TestValidateTurnRejectsEmptyMessage(t *testing.T) {
	h := &ChatHandler{}
	req := validTurnRequest()
	req.Message.Parts = nil
	_, err := h.validateTurn(req, uuid.New())
	expectBadRequest(t, err)
}

func TestValidateTurnRejectsOversizedMessage(t *testing.T) {
	h := &ChatHandler{}
	req := validTurnRequest()
	req.Message.Parts = []models.Part{{Type: models.PartText, Text: strings.Repeat("a", maxMessageChars+1)}}
	_, err := h.validateTurn(req, uuid.New())
	expectBadRequest(t, err)
}

func TestValidateTurnAttachmentAllowList(t *testing.T) {
	h := &ChatHandler{}

	req := validTurnRequest()
	req.Message.Attachments = []models.Attachment{
		{URL: "https://files.example/a.png", Name: "a.png", ContentType: "image/png"},
	}
	if _, err := h.validateTurn(req, uuid.New()); err != nil {
		t.Fatal(err)
	}

	req = validTurnRequest()
	req.Message.Attachments = []models.Attachment{
		{URL: "https://files.example/x.exe", Name: "x.exe", ContentType: "application/octet-stream"},
	}
	_, err := h.validateTurn(req, uuid.New())
	expectBadRequest(t, err)

	req = validTurnRequest()
	req.Message.Attachments = []models.Attachment{
		{Name: "missing-url.png", ContentType: "image/png"},
	}
	_, err = h.validateTurn(req, uuid.New())
	expectBadRequest(t, err)
}

func TestValidateTurnRejectsUnknownModel(t *testing.T) {
	h := &ChatHandler{}
	req := validTurnRequest()
	req.Model = "chat-turbo-max"
	_, err := h.validateTurn(req, uuid.New())
	expectBadRequest(t, err)
}

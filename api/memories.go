package api

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/recall"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

// IdempotencyKeyHeader deduplicates direct memory writes.
const IdempotencyKeyHeader = "Idempotency-Key"

const defaultRecentLimit = 10

// CreateMemoryRequest is the body of POST /memories.
type CreateMemoryRequest struct {
	WhatsappNumber string         `json:"whatsapp_number"`
	MemoryText     string         `json:"memory_text"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// CreateMemoryResponse is the body returned by POST /memories.
type CreateMemoryResponse struct {
	Message  string          `json:"message"`
	MemoryID string          `json:"memory_id"`
	UserID   int64           `json:"user_id"`
	Created  bool            `json:"created"`
	Memory   *storage.Memory `json:"memory"`
}

// UpdateMemoryRequest is the body of PATCH /memories/:external_id.
type UpdateMemoryRequest struct {
	MemoryText string `json:"memory_text"`
}

// ListMemoriesRequest is the body of POST /memories/list.
type ListMemoriesRequest struct {
	WhatsappNumber string `json:"whatsapp_number"`
}

// UserInfo summarizes the user a response is about.
type UserInfo struct {
	ExternalID  string `json:"external_id"`
	PhoneNumber string `json:"phone_number"`
	DisplayName string `json:"display_name,omitempty"`
	Timezone    string `json:"timezone"`
}

// SearchResponse is the body returned by GET /memories.
type SearchResponse struct {
	UserID       int64             `json:"user_id"`
	UserInfo     UserInfo          `json:"user_info"`
	Query        string            `json:"query,omitempty"`
	Window       *WindowResponse   `json:"window,omitempty"`
	ResultsCount int               `json:"results_count"`
	Memories     []*storage.Memory `json:"memories"`
}

// WindowResponse is a resolved time window.
type WindowResponse struct {
	Expression string `json:"expression"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Timezone   string `json:"timezone"`
}

// handleCreateMemory writes a memory directly, deduplicated on the
// Idempotency-Key header.
func (s *Server) handleCreateMemory(c *fiber.Ctx) error {
	var req CreateMemoryRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.WhatsappNumber) == "" {
		return badRequest(c, "whatsapp_number is required")
	}
	text := strings.TrimSpace(req.MemoryText)
	if text == "" {
		return badRequest(c, "memory_text is required and cannot be empty")
	}
	if s.config.Inferer == nil {
		return s.fail(c, "failed to create memory", memory.ErrNotConfigured)
	}

	var metadata []byte
	if len(req.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(req.Metadata); err != nil {
			return badRequest(c, "invalid metadata")
		}
	}

	ctx := c.UserContext()
	user, err := s.config.Identity.Lookup(ctx, req.WhatsappNumber)
	if err != nil {
		return s.fail(c, "user not found", err)
	}

	mem, isNew, err := s.config.Recorder.CreateMemoryDirect(ctx, user.ID, c.Get(IdempotencyKeyHeader), metadata,
		func(ctx context.Context) (*memory.Inference, error) {
			return s.config.Inferer.Infer(ctx, memory.Request{
				UserID:   user.ID,
				Text:     text,
				Metadata: req.Metadata,
			})
		},
	)
	if err != nil {
		return s.fail(c, "failed to create memory", err)
	}

	status := fiber.StatusOK
	if isNew {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(CreateMemoryResponse{
		Message:  "Memory created successfully",
		MemoryID: mem.ExternalID,
		UserID:   user.ID,
		Created:  isNew,
		Memory:   mem,
	})
}

// handleSearchMemories handles GET /memories.
// Query parameters:
//   - whatsapp_number (required): the user's phone number
//   - q (optional): case-insensitive substring filter
//   - window (optional): a time expression in the user's timezone
//   - limit (optional): maximum results
func (s *Server) handleSearchMemories(c *fiber.Ctx) error {
	number := c.Query("whatsapp_number")
	if number == "" {
		return badRequest(c, "whatsapp_number is required")
	}
	limit, err := queryLimit(c, 0)
	if err != nil {
		return badRequest(c, "limit must be a positive integer")
	}

	ctx := c.UserContext()
	user, err := s.config.Identity.Lookup(ctx, number)
	if err != nil {
		return s.fail(c, "user not found", err)
	}

	expr := c.Query("window")
	res, err := s.config.Searcher.Search(ctx, recall.Query{
		UserID:     user.ID,
		Text:       c.Query("q"),
		Expression: expr,
		Limit:      limit,
	})
	if err != nil {
		return s.fail(c, "failed to search memories", err)
	}

	out := SearchResponse{
		UserID:       user.ID,
		UserInfo:     userInfo(user),
		Query:        c.Query("q"),
		ResultsCount: len(res.Memories),
		Memories:     res.Memories,
	}
	if res.Window != nil {
		out.Window = &WindowResponse{
			Expression: expr,
			Start:      res.Window.Start.Format(time.RFC3339),
			End:        res.Window.End.Format(time.RFC3339),
			Timezone:   res.Timezone,
		}
	}
	return c.JSON(out)
}

// handleListMemories returns all of a user's memories, newest first.
func (s *Server) handleListMemories(c *fiber.Ctx) error {
	var req ListMemoriesRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.WhatsappNumber) == "" {
		return badRequest(c, "whatsapp_number is required")
	}

	ctx := c.UserContext()
	user, err := s.config.Identity.Lookup(ctx, req.WhatsappNumber)
	if err != nil {
		return s.fail(c, "user not found", err)
	}

	res, err := s.config.Searcher.Search(ctx, recall.Query{UserID: user.ID})
	if err != nil {
		return s.fail(c, "failed to list memories", err)
	}
	return c.JSON(fiber.Map{
		"user_id":  user.ID,
		"count":    len(res.Memories),
		"memories": res.Memories,
	})
}

func (s *Server) handleUpdateMemory(c *fiber.Ctx) error {
	externalID := c.Params("external_id")

	var req UpdateMemoryRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	text := strings.TrimSpace(req.MemoryText)
	if text == "" {
		return badRequest(c, "memory_text is required and cannot be empty")
	}

	if err := s.config.Recorder.UpdateMemory(c.UserContext(), externalID, text); err != nil {
		return s.fail(c, "failed to update memory", err)
	}
	return c.JSON(fiber.Map{
		"memory_id": externalID,
		"content":   text,
	})
}

func (s *Server) handleDeleteMemory(c *fiber.Ctx) error {
	if err := s.config.Recorder.DeleteMemory(c.UserContext(), c.Params("external_id")); err != nil {
		return s.fail(c, "failed to delete memory", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleRecentInteractions returns a user's latest conversational turns.
func (s *Server) handleRecentInteractions(c *fiber.Ctx) error {
	number := c.Query("whatsapp_number")
	if number == "" {
		return badRequest(c, "whatsapp_number is required")
	}
	limit, err := queryLimit(c, defaultRecentLimit)
	if err != nil {
		return badRequest(c, "limit must be a positive integer")
	}

	ctx := c.UserContext()
	user, err := s.config.Identity.Lookup(ctx, number)
	if err != nil {
		return s.fail(c, "user not found", err)
	}

	interactions, err := s.config.Recorder.RecentInteractions(ctx, user.ID, limit)
	if err != nil {
		return s.fail(c, "failed to load interactions", err)
	}
	if interactions == nil {
		interactions = []*storage.Interaction{}
	}
	return c.JSON(fiber.Map{
		"user_id":      user.ID,
		"count":        len(interactions),
		"interactions": interactions,
	})
}

func queryLimit(c *fiber.Ctx, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

func userInfo(u *storage.User) UserInfo {
	return UserInfo{
		ExternalID:  u.ExternalID,
		PhoneNumber: u.PhoneNumber,
		DisplayName: u.DisplayName,
		Timezone:    u.Timezone,
	}
}

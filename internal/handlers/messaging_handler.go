package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/fleetcare/fleet-backend/internal/dto"
	"github.com/fleetcare/fleet-backend/internal/messaging"
	"github.com/fleetcare/fleet-backend/internal/session"
)

type MessagingHandler struct {
	dispatcher    *messaging.Dispatcher
	relations     *messaging.RelationService
	history       *messaging.HistoryService
	conversations *messaging.ConversationService
}

func NewMessagingHandler(
	dispatcher *messaging.Dispatcher,
	relations *messaging.RelationService,
	history *messaging.HistoryService,
	conversations *messaging.ConversationService,
) *MessagingHandler {
	return &MessagingHandler{
		dispatcher:    dispatcher,
		relations:     relations,
		history:       history,
		conversations: conversations,
	}
}

func (h *MessagingHandler) Send(c *fiber.Ctx) error {
	senderID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	msg, err := h.dispatcher.Send(c.UserContext(), senderID, req.RecipientID, req.Content)
	if err != nil {
		return messagingError(c, "send", senderID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (h *MessagingHandler) History(c *fiber.Ctx) error {
	viewerID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	counterpartID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}

	page, err := h.history.History(c.UserContext(), messaging.HistoryQuery{
		ViewerID:      viewerID,
		CounterpartID: counterpartID,
		Page:          c.QueryInt("page", messaging.DefaultPage),
		Limit:         c.QueryInt("limit", messaging.DefaultLimit),
		Snapshot:      int64(c.QueryInt("snapshot", 0)),
	})
	if err != nil {
		return messagingError(c, "history", viewerID, err)
	}

	return c.JSON(page)
}

func (h *MessagingHandler) Accept(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.AcceptChatRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.relations.Accept(c.UserContext(), userID, req.FromUserID); err != nil {
		return messagingError(c, "accept", userID, err)
	}

	return c.JSON(fiber.Map{"message": "Chat accepted"})
}

func (h *MessagingHandler) Block(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.BlockUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.relations.Block(c.UserContext(), userID, req.TargetUserID); err != nil {
		return messagingError(c, "block", userID, err)
	}

	return c.JSON(fiber.Map{"message": "User blocked"})
}

func (h *MessagingHandler) ListConversations(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	page, err := h.conversations.List(c.UserContext(), messaging.ConversationQuery{
		UserID:       userID,
		Page:         c.QueryInt("page", messaging.DefaultPage),
		Limit:        c.QueryInt("limit", messaging.DefaultLimit),
		OnlyContacts: c.QueryBool("only_contacts", false),
		Search:       c.Query("search"),
	})
	if err != nil {
		return messagingError(c, "conversations", userID, err)
	}

	return c.JSON(page)
}

// messagingError maps a classified messaging error to its HTTP status.
// Unclassified errors are logged and reported as 500 without detail.
func messagingError(c *fiber.Ctx, action string, userID uuid.UUID, err error) error {
	status := fiber.StatusInternalServerError
	switch messaging.KindOf(err) {
	case messaging.KindInvalidInput:
		status = fiber.StatusBadRequest
	case messaging.KindNotFound:
		status = fiber.StatusNotFound
	case messaging.KindForbidden:
		status = fiber.StatusForbidden
	case messaging.KindConflict:
		status = fiber.StatusConflict
	default:
		slog.Error("messaging request failed",
			"action", action,
			"user_id", userID.String(),
			"error", err.Error(),
			"request_id", requestID(c),
		)
		return c.Status(status).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error", Code: messaging.CodeInternal,
		})
	}

	return c.Status(status).JSON(dto.ErrorResponse{
		Error: true, Message: err.Error(), Code: messaging.CodeOf(err),
	})
}

func respondError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: message})
}

func unauthorized(c *fiber.Ctx) error {
	return respondError(c, fiber.StatusUnauthorized, "Unauthorized")
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error: true, Message: message, Code: messaging.CodeInvalidInput,
	})
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/fleetcare/fleet-backend/internal/dto"
	"github.com/fleetcare/fleet-backend/internal/services"
	"github.com/fleetcare/fleet-backend/internal/session"
)

type ContactHandler struct {
	contactService *services.ContactService
}

func NewContactHandler(contactService *services.ContactService) *ContactHandler {
	return &ContactHandler{contactService: contactService}
}

func (h *ContactHandler) Add(c *fiber.Ctx) error {
	ownerID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.AddContactRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.ContactID == uuid.Nil {
		return badRequest(c, "contact_id is required")
	}

	if err := h.contactService.AddContact(ownerID, req.ContactID); err != nil {
		switch {
		case errors.Is(err, services.ErrSelfContact):
			return badRequest(c, err.Error())
		case errors.Is(err, services.ErrUserNotFound):
			return respondError(c, fiber.StatusNotFound, err.Error())
		}
		return respondError(c, fiber.StatusInternalServerError, "Failed to add contact")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Contact added"})
}

func (h *ContactHandler) Remove(c *fiber.Ctx) error {
	ownerID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	contactID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}

	if err := h.contactService.RemoveContact(ownerID, contactID); err != nil {
		if errors.Is(err, services.ErrContactNotFound) {
			return respondError(c, fiber.StatusNotFound, err.Error())
		}
		return respondError(c, fiber.StatusInternalServerError, "Failed to remove contact")
	}

	return c.JSON(fiber.Map{"message": "Contact removed"})
}

func (h *ContactHandler) List(c *fiber.Ctx) error {
	ownerID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	limit, offset := listWindow(c, 50, 100)

	contacts, total, err := h.contactService.ListContacts(ownerID, limit, offset)
	if err != nil {
		return respondError(c, fiber.StatusInternalServerError, "Failed to fetch contacts")
	}

	items := make([]dto.ContactResponse, 0, len(contacts))
	for _, ct := range contacts {
		items = append(items, dto.ContactResponse{
			ID:          ct.ContactID,
			DisplayName: ct.Contact.DisplayName,
			Role:        ct.Contact.Role,
		})
	}

	return c.JSON(dto.ContactListResponse{
		Contacts: items,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/fleetcare/fleet-backend/internal/dto"
	"github.com/fleetcare/fleet-backend/internal/services"
	"github.com/fleetcare/fleet-backend/internal/session"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// authStatus maps auth service errors to a status. ok is false for
// unexpected errors.
func authStatus(err error) (status int, ok bool) {
	switch {
	case errors.Is(err, services.ErrEmailTaken):
		return fiber.StatusConflict, true
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrInvalidToken):
		return fiber.StatusUnauthorized, true
	case errors.Is(err, services.ErrAccountInactive):
		return fiber.StatusForbidden, true
	case errors.Is(err, services.ErrUserNotFound):
		return fiber.StatusNotFound, true
	case errors.Is(err, services.ErrPasswordRequired), errors.Is(err, services.ErrInvalidRole):
		return fiber.StatusBadRequest, true
	}
	return fiber.StatusInternalServerError, false
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	resp, err := h.authService.Register(&req)
	if err != nil {
		if status, ok := authStatus(err); ok {
			return respondError(c, status, err.Error())
		}
		// Remaining register errors are input validation failures.
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	resp, err := h.authService.Login(&req)
	if err != nil {
		if status, ok := authStatus(err); ok {
			return respondError(c, status, err.Error())
		}
		return respondError(c, fiber.StatusInternalServerError, "Internal server error")
	}

	return c.JSON(resp)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	resp, err := h.authService.Refresh(&req)
	if err != nil {
		if errors.Is(err, services.ErrAccountInactive) {
			return respondError(c, fiber.StatusUnauthorized, err.Error())
		}
		if status, ok := authStatus(err); ok {
			return respondError(c, status, err.Error())
		}
		return respondError(c, fiber.StatusInternalServerError, "Internal server error")
	}

	return c.JSON(resp)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req dto.LogoutRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if err := h.authService.Logout(&req); err != nil {
		return respondError(c, fiber.StatusInternalServerError, "Failed to logout")
	}

	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// DeactivateAccount switches the caller's account off after a password check.
// Conversations stay visible to counterparts.
func (h *AuthHandler) DeactivateAccount(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.DeactivateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if err := h.authService.DeactivateAccount(userID, req.Password); err != nil {
		status, ok := authStatus(err)
		switch {
		case !ok:
			return respondError(c, fiber.StatusInternalServerError, "Failed to deactivate account")
		case errors.Is(err, services.ErrInvalidCredentials):
			return respondError(c, status, "Incorrect password. Please try again.")
		}
		return respondError(c, status, err.Error())
	}

	return c.JSON(fiber.Map{"message": "Account deactivated"})
}

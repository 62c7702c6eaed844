package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"user-service/internal/entity"
	"user-service/internal/service"
)

var internalError = map[string]string{"error": "Internal Server Error"}

type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler creates a new instance of UserHandler
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// ListUsers returns every user --> GET /api/users
func (h *UserHandler) ListUsers(c echo.Context) error {
	log.Info().Msg("GET /api/users - Listing all users")

	users, err := h.userService.ListUsers(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

// GetUser retrieves a user by ID --> GET /api/users/:id
func (h *UserHandler) GetUser(c echo.Context) error {
	id := c.Param("id")
	log.Info().Msgf("GET /api/users/%s - Getting user by ID", id)

	user, err := h.userService.GetUser(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// CreateUser creates a new user --> POST /api/users
func (h *UserHandler) CreateUser(c echo.Context) error {
	req := entity.CreateUserRequest{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}
	if err := c.Validate(&req); err != nil {
		return writeError(c, err)
	}

	log.Info().Msgf("POST /api/users - Creating new user: %s (DNI: %s)", req.Name, req.DNI)

	user, err := h.userService.CreateUser(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}

// writeError maps service outcomes to a status code and body. Storage
// failures are already logged by the service and never reach the client.
func writeError(c echo.Context, err error) error {
	var (
		notFound   *service.NotFoundError
		duplicate  *service.DuplicateError
		validation *ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": notFound.Error()})
	case errors.As(err, &duplicate):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": duplicate.Error()})
	case errors.As(err, &validation):
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error":   "Validation failed",
			"details": validation.Details,
		})
	default:
		return c.JSON(http.StatusInternalServerError, internalError)
	}
}

package handlers

import (
	"net/http"
	"strings"

	"go-pinmap/middleware"
	"go-pinmap/models"
	"go-pinmap/services"
	"go-pinmap/utils/errors"
)

type AuthHandler struct{}

type signUpRequest struct {
	Name     string `json:"name" validate:"notblank"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

type ConfirmResponse struct {
	State services.AppState `json:"state"`
	Token string            `json:"token"`
}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	var input signUpRequest
	if err := decodeJSON(r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}
	input.Email = strings.TrimSpace(input.Email)
	if err := services.ValidateStruct(input, "Please fill in all fields"); err != nil {
		rejectInput(w, ws, err)
		return
	}

	result, err := ws.Session.SignUp(r.Context(), input.Email, input.Password, strings.TrimSpace(input.Name))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	var input loginRequest
	if err := decodeJSON(r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}
	input.Email = strings.TrimSpace(input.Email)
	if err := services.ValidateStruct(input, "Please enter email and password"); err != nil {
		rejectInput(w, ws, err)
		return
	}

	user, err := ws.Session.Login(r.Context(), input.Email, input.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{User: user, Token: ws.Session.Token()})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	if err := ws.Session.Logout(r.Context()); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Confirm completes signup with the token from the confirmation link.
func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		rejectInput(w, ws, errors.NewValidationError("Confirmation token is missing", "token"))
		return
	}

	state, err := ws.Session.ConfirmEmail(r.Context(), token)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ConfirmResponse{State: state, Token: ws.Session.Token()})
}

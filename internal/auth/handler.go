package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"

	"github.com/omnistore/service/internal/response"
	"github.com/omnistore/service/internal/user"
)

// Handler holds HTTP handlers for auth endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new auth Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type credentialsRequest struct {
	Email    string `json:"email"    example:"user@example.com"`
	Password string `json:"password" example:"hunter2hunter2"`
}

type tokenData struct {
	Token string    `json:"token" example:"eyJhbGci..."`
	User  user.User `json:"user"`
}

const minPasswordLength = 8

func (h *Handler) decodeCredentials(w http.ResponseWriter, r *http.Request) (*credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return nil, false
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		response.BadRequest(w, "invalid email address")
		return nil, false
	}
	if len(req.Password) < minPasswordLength {
		response.BadRequest(w, "password must be at least 8 characters")
		return nil, false
	}
	return &req, true
}

// Register godoc
//
//	@Summary		Register
//	@Description	Create a new account and receive a JWT token.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		credentialsRequest	true	"Email and password"
//	@Success		201		{object}	response.Envelope{data=tokenData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		409		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	token, u, err := h.svc.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrAlreadyExists) {
			response.Conflict(w, "email already registered")
			return
		}
		response.InternalError(w)
		return
	}

	response.Created(w, tokenData{Token: token, User: *u})
}

// Login godoc
//
//	@Summary		Login
//	@Description	Exchange email and password for a JWT token.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		credentialsRequest	true	"Email and password"
//	@Success		200		{object}	response.Envelope{data=tokenData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	token, u, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(w, "invalid email or password")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, tokenData{Token: token, User: *u})
}

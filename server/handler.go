package server

import (
	"errors"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"guardex/assistant"
	"guardex/auth"
	"guardex/database"
	"guardex/models"
	"io"
	"strconv"
)

// Handler defines an HTTP handler.
type Handler struct {
	auth  *auth.Service
	scans ScanStore
	voice VoiceAgent
}

// NewHandler wires the HTTP handlers.
func NewHandler(authSvc *auth.Service, scans ScanStore, voice VoiceAgent) *Handler {
	return &Handler{auth: authSvc, scans: scans, voice: voice}
}

// IndexHandler defines the handler for the / endpoint.
func (h *Handler) IndexHandler(ctx fiber.Ctx) error {
	return ctx.SendString("🚀 API is running...")
}

// SignupHandler defines the handler for the /api/auth/signup endpoint.
func (h *Handler) SignupHandler(ctx fiber.Ctx) error {
	var data auth.SignupRequest

	if err := ctx.Bind().Body(&data); err != nil || !data.Validate() {
		return ctx.Status(fiber.StatusBadRequest).JSON(response{Error: "Missing required fields"})
	}

	err := h.auth.Signup(ctx.Context(), data)
	switch {
	case err == nil:
		return ctx.Status(fiber.StatusOK).JSON(response{Message: "Signup successful. Verification email sent."})
	case errors.Is(err, auth.ErrMissingFields):
		return ctx.Status(fiber.StatusBadRequest).JSON(response{Error: "Missing required fields"})
	case errors.Is(err, auth.ErrEmailTaken):
		return ctx.Status(fiber.StatusConflict).JSON(response{Error: "Email already registered"})
	case errors.Is(err, auth.ErrMailFailed):
		return ctx.Status(fiber.StatusInternalServerError).JSON(response{Error: "Signup succeeded but failed to send email."})
	default:
		logrus.Errorf("signup failed: %v", err)
		return ctx.Status(fiber.StatusInternalServerError).JSON(response{Error: "Internal server error"})
	}
}

// LoginHandler defines the handler for the /api/auth/login endpoint.
func (h *Handler) LoginHandler(ctx fiber.Ctx) error {
	var data LoginRequestAPI

	if err := ctx.Bind().Body(&data); err != nil || data.Email == "" || data.Password == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(response{Error: "Email and password required"})
	}

	res, err := h.auth.Login(ctx.Context(), data.Email, data.Password)
	switch {
	case err == nil:
		return ctx.Status(fiber.StatusOK).JSON(LoginResponse{
			Message: "Login successful",
			User:    res.User,
			Token:   res.Token,
		})
	case errors.Is(err, auth.ErrMissingFields):
		return ctx.Status(fiber.StatusBadRequest).JSON(response{Error: "Email and password required"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		return ctx.Status(fiber.StatusUnauthorized).JSON(response{Error: "Invalid credentials"})
	case errors.Is(err, auth.ErrNotVerified):
		return ctx.Status(fiber.StatusForbidden).JSON(response{Error: "Email not verified"})
	default:
		logrus.Errorf("login failed: %v", err)
		return ctx.Status(fiber.StatusInternalServerError).JSON(response{Error: "Internal server error"})
	}
}

// VerifyHandler defines the handler for the /api/auth/verify/:token endpoint.
func (h *Handler) VerifyHandler(ctx fiber.Ctx) error {
	err := h.auth.Verify(ctx.Context(), ctx.Params("token"))
	switch {
	case err == nil:
		return ctx.Status(fiber.StatusOK).JSON(response{Message: "Email successfully verified"})
	case errors.Is(err, auth.ErrInvalidVerifyToken):
		return ctx.Status(fiber.StatusBadRequest).JSON(response{Error: "Invalid or expired token"})
	default:
		logrus.Errorf("verification failed: %v", err)
		return ctx.Status(fiber.StatusInternalServerError).JSON(response{Error: "Verification failed"})
	}
}

// ScansHandler defines the handler for the /api/scan endpoint.
func (h *Handler) ScansHandler(ctx fiber.Ctx) error {
	userID := ctx.Query("user_id")
	if userID == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(response{Error: "Missing user_id in request body"})
	}
	if claims := claimsFrom(ctx); claims != nil && claims.UserID != userID {
		return ctx.Status(fiber.StatusForbidden).JSON(response{Error: "Forbidden"})
	}

	rows, err := h.scans.ScansByUser(ctx.Context(), userID)
	if err != nil {
		logrus.Errorf("error fetching user scans: %v", err)
		return ctx.Status(fiber.StatusInternalServerError).JSON(response{Error: "Internal server error"})
	}

	scans := make([]models.ScanDTO, 0, len(rows))
	for i := range rows {
		var dto models.ScanDTO
		if err := rows[i].Fill(&dto); err != nil {
			logrus.Errorf("error decoding scan %d: %v", rows[i].ID, err)
			return ctx.Status(fiber.StatusInternalServerError).JSON(response{Error: "Internal server error"})
		}
		scans = append(scans, dto)
	}
	return ctx.Status(fiber.StatusOK).JSON(ScansResponse{Scans: scans})
}

// ScanHandler defines the handler for the /api/scan/:id endpoint.
func (h *Handler) ScanHandler(ctx fiber.Ctx) error {
	notFound := response{Error: "Scan not found"}

	id, err := strconv.ParseUint(ctx.Params("id"), 10, 64)
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(notFound)
	}

	row, err := h.scans.ScanByID(ctx.Context(), uint(id))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(notFound)
		}
		logrus.Errorf("error fetching scan %d: %v", id, err)
		return ctx.Status(fiber.StatusInternalServerError).JSON(response{Error: "Internal server error"})
	}
	if claims := claimsFrom(ctx); claims != nil && claims.UserID != row.UserID {
		return ctx.Status(fiber.StatusForbidden).JSON(response{Error: "Forbidden"})
	}

	var dto models.ScanDTO
	if err := row.Fill(&dto); err != nil {
		logrus.Errorf("error decoding scan %d: %v", id, err)
		return ctx.Status(fiber.StatusInternalServerError).JSON(response{Error: "Internal server error"})
	}
	return ctx.Status(fiber.StatusOK).JSON(ScanResponse{Scan: dto})
}

// VoiceAgentHandler defines the handler for the /api/voice-agent endpoint.
func (h *Handler) VoiceAgentHandler(ctx fiber.Ctx) error {
	in := assistant.Input{Vulnerabilities: ctx.FormValue("vulnerabilities")}

	if fh, err := ctx.FormFile("audio"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(response{Error: "Missing audio file"})
		}
		defer f.Close()

		if in.Audio, err = io.ReadAll(f); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(response{Error: "Missing audio file"})
		}
		in.ContentType = fh.Header.Get("Content-Type")
	}

	res, err := h.voice.Handle(ctx.Context(), in)
	if err != nil {
		var ae *assistant.Error
		if errors.As(err, &ae) {
			if ae.Status >= fiber.StatusInternalServerError {
				logrus.Errorf("voice agent: %v", ae)
			}
			return ctx.Status(ae.Status).JSON(response{Error: ae.Message, Details: ae.Details})
		}
		logrus.Errorf("voice agent: %v", err)
		return ctx.Status(fiber.StatusInternalServerError).JSON(response{Error: "Internal server error"})
	}
	return ctx.Status(fiber.StatusOK).JSON(res)
}

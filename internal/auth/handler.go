package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"crm-backend/internal/config"
	"crm-backend/internal/engine"
	"crm-backend/internal/metadata"
)

type refreshEntry struct {
	userID    string
	expiresAt time.Time
}

// AuthHandler handles authentication endpoints for the users listed in
// config. Refresh tokens are kept in memory and rotate on every use.
type AuthHandler struct {
	jwtSecret  string
	tokenTTL   time.Duration
	refreshTTL time.Duration
	users      map[string]config.UserConfig // keyed by lower-cased email

	mu      sync.Mutex
	refresh map[string]refreshEntry
	now     func() time.Time
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(cfg config.AuthConfig) *AuthHandler {
	users := make(map[string]config.UserConfig, len(cfg.Users))
	for _, u := range cfg.Users {
		if u.ID == "" {
			u.ID = u.Email
		}
		users[strings.ToLower(u.Email)] = u
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = RefreshTokenTTL
	}
	return &AuthHandler{
		jwtSecret:  cfg.JWTSecret,
		tokenTTL:   cfg.TokenTTL,
		refreshTTL: refreshTTL,
		users:      users,
		refresh:    make(map[string]refreshEntry),
		now:        time.Now,
	}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	user, ok := h.users[strings.ToLower(strings.TrimSpace(body.Email))]
	if !ok || !CheckPassword(body.Password, user.PasswordHash) {
		return engine.UnauthorizedError("Invalid email or password")
	}

	pair, err := h.generateTokenPair(user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	h.mu.Lock()
	entry, ok := h.refresh[body.RefreshToken]
	// Delete the used refresh token (rotation)
	delete(h.refresh, body.RefreshToken)
	h.mu.Unlock()

	if !ok {
		return engine.UnauthorizedError("Invalid refresh token")
	}
	if h.now().After(entry.expiresAt) {
		return engine.UnauthorizedError("Refresh token expired")
	}

	user, ok := h.userByID(entry.userID)
	if !ok {
		return engine.UnauthorizedError("Account is disabled")
	}

	pair, err := h.generateTokenPair(user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	h.mu.Lock()
	delete(h.refresh, body.RefreshToken)
	h.mu.Unlock()

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Me handles GET /api/auth/me behind AuthMiddleware.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := GetUser(c)
	if user == nil {
		return engine.UnauthorizedError("Missing auth token")
	}
	return c.JSON(fiber.Map{"data": user})
}

// RegisterAuthRoutes registers auth routes on the given Fiber app.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler) {
	auth := app.Group("/api/auth")
	auth.Post("/login", h.Login)
	auth.Post("/refresh", h.Refresh)
	auth.Post("/logout", h.Logout)
	auth.Get("/me", AuthMiddleware(h.jwtSecret), h.Me)
}

// --- helpers ---

func (h *AuthHandler) userByID(id string) (config.UserConfig, bool) {
	for _, u := range h.users {
		if u.ID == id {
			return u, true
		}
	}
	return config.UserConfig{}, false
}

func (h *AuthHandler) generateTokenPair(u config.UserConfig) (*TokenPair, error) {
	user := &metadata.UserContext{ID: u.ID, Email: u.Email, Roles: u.Roles}
	if user.Roles == nil {
		user.Roles = []string{}
	}
	accessToken, err := GenerateAccessToken(user, h.jwtSecret, h.tokenTTL)
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken := GenerateRefreshToken()
	h.mu.Lock()
	h.refresh[refreshToken] = refreshEntry{userID: u.ID, expiresAt: h.now().Add(h.refreshTTL)}
	h.mu.Unlock()

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

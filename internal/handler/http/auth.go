package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/logistics-auth/internal/authz"
	"github.com/utafrali/logistics-auth/internal/domain"
	"github.com/utafrali/logistics-auth/internal/service"
	"github.com/utafrali/logistics-auth/pkg/httputil"
	"github.com/utafrali/logistics-auth/pkg/middleware"
	"github.com/utafrali/logistics-auth/pkg/validator"
)

// tokenType is reported with every issued access token.
const tokenType = "bearer"

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	auth   *service.Authenticator
	authz  authz.Authorizer
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.Authenticator, authorizer authz.Authorizer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, authz: authorizer, logger: logger, now: time.Now}
}

// --- Request DTOs ---

// LoginRequest is the JSON request body for login. Identifier is a username
// or an email; Username is accepted for older clients.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required_without=Username,max=254"`
	Username   string `json:"username" validate:"required_without=Identifier,max=254"`
	Password   string `json:"password" validate:"required,max=1024"`
}

// RefreshRequest is the JSON request body for token refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// --- Response types ---

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Message      string         `json:"message"`
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int64          `json:"expires_in"`
	User         domain.Summary `json:"user"`
	Roles        []string       `json:"roles"`
}

// MeResponse describes the authenticated caller.
type MeResponse struct {
	User        domain.Summary `json:"user"`
	Roles       []string       `json:"roles"`
	Permissions []string       `json:"permissions"`
}

// RefreshResponse carries a new access token.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// --- Handlers ---

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req LoginRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Username
	}

	res, err := h.auth.Authenticate(r.Context(), identifier, req.Password, h.now())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: LoginResponse{
			Message:      "Login successful",
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			TokenType:    tokenType,
			ExpiresIn:    res.ExpiresIn,
			User:         res.Account.Summary(),
			Roles:        h.roles(r, res.Account.ID),
		},
	})
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromContext(r.Context())

	acct, err := h.auth.CurrentAccount(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	perms, err := h.authz.Permissions(r.Context(), acct.ID)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to load permissions",
			slog.String("account_id", acct.ID),
			slog.String("error", err.Error()),
		)
		perms = []string{}
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: MeResponse{
			User:        acct.Summary(),
			Roles:       h.roles(r, acct.ID),
			Permissions: perms,
		},
	})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), middleware.AccountIDFromContext(r.Context())); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: MessageResponse{Message: "Successfully logged out"},
	})
}

// Refresh handles POST /api/v1/auth/refresh. The refresh token is read from
// the body, or from the Authorization header when the body has none.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req RefreshRequest
	if r.ContentLength != 0 {
		if err := validator.DecodeAndValidate(r, &req); err != nil {
			httputil.WriteValidationError(w, err)
			return
		}
	}
	if req.RefreshToken == "" {
		req.RefreshToken, _ = middleware.BearerToken(r)
	}

	res, err := h.auth.Refresh(r.Context(), req.RefreshToken, h.now())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: RefreshResponse{
			AccessToken: res.AccessToken,
			TokenType:   tokenType,
			ExpiresIn:   res.ExpiresIn,
		},
	})
}

// roles never fails the request; authorization is advisory here.
func (h *AuthHandler) roles(r *http.Request, accountID string) []string {
	roles, err := h.authz.Roles(r.Context(), accountID)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to load roles",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return []string{}
	}
	if roles == nil {
		return []string{}
	}
	return roles
}

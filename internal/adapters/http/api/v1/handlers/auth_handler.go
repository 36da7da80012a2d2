package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/forum-auth/internal/domain"
	"github.com/example/forum-auth/internal/usecase"
	res "github.com/example/forum-auth/pkg/http"
)

type AuthHandler struct {
	service usecase.Service
}

func NewAuthHandler(s usecase.Service) *AuthHandler { return &AuthHandler{service: s} }

type registrationRequest struct {
	Handle       string `json:"handle"`
	Nickname     string `json:"nickname"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	FavoriteRace string `json:"favorite_race"`
}

type loginRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

type kakaoRegistrationRequest struct {
	AccessToken  string `json:"access_token"`
	Nickname     string `json:"nickname"`
	FavoriteRace string `json:"favorite_race"`
}

type kakaoLoginRequest struct {
	AccessToken string `json:"access_token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type registrationResponse struct {
	Account *accountView `json:"account"`
	*usecase.Tokens
}

type accountView struct {
	ID               string `json:"id"`
	Handle           string `json:"handle"`
	Nickname         string `json:"nickname"`
	Email            string `json:"email,omitempty"`
	RegistrationType string `json:"registration_type"`
	FavoriteRace     string `json:"favorite_race,omitempty"`
	IsVerified       bool   `json:"is_verified"`
}

func newAccountView(a *domain.Account) *accountView {
	return &accountView{
		ID:               a.ID,
		Handle:           a.Handle,
		Nickname:         a.Nickname,
		Email:            a.EmailAddress(),
		RegistrationType: string(a.RegistrationType),
		FavoriteRace:     string(a.FavoriteRace),
		IsVerified:       a.IsVerified,
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	req := new(registrationRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	account, tokens, err := h.service.RegisterWithPassword(c.Request().Context(), requestIDFromCtx(c), usecase.PasswordRegistration{
		Handle:       req.Handle,
		Nickname:     req.Nickname,
		Email:        req.Email,
		Password:     req.Password,
		FavoriteRace: req.FavoriteRace,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, registrationResponse{Account: newAccountView(account), Tokens: tokens})
}

func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	if err := h.service.VerifyEmail(c.Request().Context(), requestIDFromCtx(c), c.QueryParam("token")); err != nil {
		return writeError(c, err)
	}
	return res.Message(c, http.StatusOK, "email verified")
}

func (h *AuthHandler) Login(c echo.Context) error {
	req := new(loginRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	_, tokens, err := h.service.AuthenticateWithPassword(c.Request().Context(), requestIDFromCtx(c), req.Handle, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tokens)
}

func (h *AuthHandler) RegisterKakao(c echo.Context) error {
	req := new(kakaoRegistrationRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	account, tokens, err := h.service.RegisterWithKakao(c.Request().Context(), requestIDFromCtx(c), usecase.KakaoRegistration{
		AccessToken:  req.AccessToken,
		Nickname:     req.Nickname,
		FavoriteRace: req.FavoriteRace,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, registrationResponse{Account: newAccountView(account), Tokens: tokens})
}

func (h *AuthHandler) LoginKakao(c echo.Context) error {
	req := new(kakaoLoginRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	_, tokens, err := h.service.AuthenticateWithKakao(c.Request().Context(), requestIDFromCtx(c), req.AccessToken)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tokens)
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	req := new(refreshRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	tokens, err := h.service.Refresh(c.Request().Context(), requestIDFromCtx(c), req.RefreshToken)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tokens)
}

func (h *AuthHandler) KakaoAuthorize(c echo.Context) error {
	return c.Redirect(http.StatusFound, h.service.KakaoAuthorizeURL())
}

func (h *AuthHandler) KakaoCallback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return res.ErrorJSON(c, http.StatusBadRequest, "code_required", "authorization code is required", requestIDFromCtx(c), nil)
	}
	token, err := h.service.ExchangeKakaoCode(c.Request().Context(), requestIDFromCtx(c), code)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"provider_access_token": token})
}

func (h *AuthHandler) GetMe(c echo.Context) error {
	accountID, _ := c.Get("account_id").(string)
	account, err := h.service.GetAccount(c.Request().Context(), requestIDFromCtx(c), accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return res.ErrorJSON(c, http.StatusNotFound, "not_found", err.Error(), requestIDFromCtx(c), nil)
		}
		return writeError(c, err)
	}
	return res.JSON(c, http.StatusOK, newAccountView(account))
}

func badPayload(c echo.Context) error {
	return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", requestIDFromCtx(c), nil)
}

// writeError turns a service failure into the error envelope. Unknown errors
// become 500 without leaking their text.
func writeError(c echo.Context, err error) error {
	traceID := requestIDFromCtx(c)
	var verr *domain.ValidationError
	var cerr *domain.ConflictError
	switch {
	case errors.As(err, &verr):
		return res.ErrorJSON(c, http.StatusBadRequest, "validation_failed", domain.ErrValidation.Error(), traceID, verr.Fields)
	case errors.As(err, &cerr):
		var details interface{}
		if cerr.Field != "" {
			details = map[string]string{"field": cerr.Field}
		}
		return res.ErrorJSON(c, http.StatusBadRequest, "conflict", cerr.Error(), traceID, details)
	case errors.Is(err, domain.ErrInvalidCredentials):
		return res.ErrorJSON(c, http.StatusUnauthorized, "invalid_credentials", domain.ErrInvalidCredentials.Error(), traceID, nil)
	case errors.Is(err, domain.ErrInvalidToken):
		return res.ErrorJSON(c, http.StatusUnauthorized, "invalid_token", domain.ErrInvalidToken.Error(), traceID, nil)
	case errors.Is(err, domain.ErrTokenExpired):
		return res.ErrorJSON(c, http.StatusBadRequest, "token_expired", "verification link has expired", traceID, nil)
	case errors.Is(err, domain.ErrTokenMalformed):
		return res.ErrorJSON(c, http.StatusBadRequest, "token_invalid", "verification link is invalid", traceID, nil)
	case errors.Is(err, domain.ErrNotFound):
		return res.ErrorJSON(c, http.StatusBadRequest, "token_invalid", "verification link is invalid", traceID, nil)
	case errors.Is(err, domain.ErrExternalAuth):
		return res.ErrorJSON(c, http.StatusBadRequest, "external_auth_failed", domain.ErrExternalAuth.Error(), traceID, nil)
	default:
		c.Logger().Error(err)
		return res.ErrorJSON(c, http.StatusInternalServerError, "internal_error", "internal server error", traceID, nil)
	}
}

func requestIDFromCtx(c echo.Context) string {
	if reqID := c.Response().Header().Get(echo.HeaderXRequestID); reqID != "" {
		return reqID
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}

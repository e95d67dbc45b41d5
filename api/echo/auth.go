package echo

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/wecanbr/portal-gateway/domain"
	apperrors "github.com/wecanbr/portal-gateway/errors"
	"github.com/wecanbr/portal-gateway/gate"
	"github.com/wecanbr/portal-gateway/internal/metrics"
	"github.com/wecanbr/portal-gateway/upstream"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"senha"`
}

type authResponse struct {
	User       *domain.User `json:"usuario,omitempty"`
	RedirectTo string       `json:"redirecionar_para"`
}

// nextPath picks the post-auth destination: pending obligations come before
// the home page.
func nextPath(sess domain.Session) string {
	switch {
	case sess.MustChangePassword():
		return gate.PathChangePassword
	case sess.MustValidateInternalToken():
		return gate.PathInternalToken
	default:
		return gate.PathHome
	}
}

// LoginHandler submits credentials upstream and hydrates the session from
// the answer. The login bracket suppresses background revalidation for its
// whole duration; the submitted password stays in memory for the forced
// password-change flow.
func (a *PortalAPI) LoginHandler(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, &apperrors.ValidationError{Field: "body", Message: "Requisição inválida."})
	}
	req.Login = strings.TrimSpace(req.Login)
	if req.Login == "" || req.Password == "" {
		return writeError(c, &apperrors.ValidationError{Field: "login", Message: "Informe login e senha."})
	}

	up, err := a.client(c)
	if err != nil {
		return writeError(c, err)
	}

	h := handleFrom(c)
	ctx := c.Request().Context()

	h.Store.BeginLogin(ctx)
	defer h.Store.EndLogin()

	if err := up.Login(ctx, upstream.LoginRequest{Login: req.Login, Password: req.Password}); err != nil {
		metrics.LoginFailureTotal.Inc()
		log.Debug().Err(err).Msg("api: login rejected")
		if errors.Is(err, apperrors.ErrAuth) {
			return c.JSON(http.StatusUnauthorized, notification{Message: "Login ou senha inválidos."})
		}
		return writeError(c, err)
	}
	h.Store.SetLoginPassword(req.Password)

	sess, err := h.Store.FetchIdentity(ctx, false, true)
	if err != nil {
		return writeError(c, err)
	}
	h.Store.RecordLogin(ctx)

	return c.JSON(http.StatusOK, authResponse{User: sess.User, RedirectTo: nextPath(sess)})
}

type logoutRequest struct {
	RedirectTo string `json:"redirecionar_para"`
}

type logoutResponse struct {
	RedirectTo string `json:"redirecionar_para"`
	Reload     bool   `json:"recarregar"`
}

// LogoutHandler always answers with a navigation result; remote failures do
// not keep the user logged in.
func (a *PortalAPI) LogoutHandler(c echo.Context) error {
	var req logoutRequest
	_ = c.Bind(&req)

	h := handleFrom(c)
	nav := h.Store.Logout(c.Request().Context(), req.RedirectTo, true)
	return c.JSON(http.StatusOK, logoutResponse{RedirectTo: nav.RedirectTo, Reload: nav.Reload})
}

type changePasswordRequest struct {
	Current string `json:"senha_atual"`
	Next    string `json:"senha_nova"`
}

// ChangePasswordHandler performs the forced password change. The current
// password defaults to the one kept from the login submission, so the
// forced-change screen does not have to ask for it again.
func (a *PortalAPI) ChangePasswordHandler(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, &apperrors.ValidationError{Field: "body", Message: "Requisição inválida."})
	}

	h := handleFrom(c)
	if sess := a.hydrate(c, h); !sess.IsAuthenticated {
		return c.JSON(http.StatusUnauthorized, notification{Message: "Sessão expirada. Faça login novamente."})
	}

	if req.Current == "" {
		req.Current = h.Store.GetLoginPassword()
	}
	if req.Current == "" {
		return writeError(c, &apperrors.ValidationError{Field: "senha_atual", Message: "Informe a senha atual."})
	}
	if len(req.Next) < 8 {
		return writeError(c, &apperrors.ValidationError{Field: "senha_nova", Message: "A nova senha precisa de ao menos 8 caracteres."})
	}
	if req.Next == req.Current {
		return writeError(c, &apperrors.ValidationError{Field: "senha_nova", Message: "A nova senha deve ser diferente da atual."})
	}

	up, err := a.client(c)
	if err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	if err := up.ChangePassword(ctx, req.Current, req.Next); err != nil {
		return writeError(c, err)
	}
	h.Store.SetLoginPassword(req.Next)

	// Forced refresh so the changed-password flag leaves the session.
	sess, err := h.Store.FetchIdentity(ctx, false, true)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, authResponse{User: sess.User, RedirectTo: nextPath(sess)})
}

type passwordResetRequest struct {
	Login string `json:"login"`
}

// PasswordResetRequestHandler starts the password reset flow.
func (a *PortalAPI) PasswordResetRequestHandler(c echo.Context) error {
	var req passwordResetRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Login) == "" {
		return writeError(c, &apperrors.ValidationError{Field: "login", Message: "Informe o login."})
	}

	up, err := a.client(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := up.RequestPasswordReset(c.Request().Context(), strings.TrimSpace(req.Login)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, notification{Message: "Se o login existir, enviamos um código de recuperação."})
}

type passwordResetConfirm struct {
	Login string `json:"login"`
	Code  string `json:"codigo"`
	Next  string `json:"senha_nova"`
}

// PasswordResetConfirmHandler completes the reset flow with the mailed code.
func (a *PortalAPI) PasswordResetConfirmHandler(c echo.Context) error {
	var req passwordResetConfirm
	if err := c.Bind(&req); err != nil {
		return writeError(c, &apperrors.ValidationError{Field: "body", Message: "Requisição inválida."})
	}
	if req.Login == "" || req.Code == "" {
		return writeError(c, &apperrors.ValidationError{Field: "codigo", Message: "Informe login e código."})
	}
	if len(req.Next) < 8 {
		return writeError(c, &apperrors.ValidationError{Field: "senha_nova", Message: "A nova senha precisa de ao menos 8 caracteres."})
	}

	up, err := a.client(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := up.ConfirmPasswordReset(c.Request().Context(), req.Login, req.Code, req.Next); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, authResponse{RedirectTo: gate.PathLogin})
}

type tokenRequest struct {
	Token string `json:"token"`
}

// InternalTokenValidateHandler confirms the one-time internal-access token
// and closes the gate for this session.
func (a *PortalAPI) InternalTokenValidateHandler(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return writeError(c, &apperrors.ValidationError{Field: "token", Message: "Informe o token."})
	}

	h := handleFrom(c)
	if sess := a.hydrate(c, h); !sess.IsAuthenticated {
		return c.JSON(http.StatusUnauthorized, notification{Message: "Sessão expirada. Faça login novamente."})
	}

	up, err := a.client(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := up.ValidateInternalToken(c.Request().Context(), strings.TrimSpace(req.Token)); err != nil {
		return writeError(c, err)
	}
	h.Store.SetInternalTokenValidated(true)

	return c.JSON(http.StatusOK, authResponse{RedirectTo: gate.PathHome})
}

// InternalTokenSkipHandler lets the user postpone the token screen. The
// block persists in session-scoped storage, so a reload does not re-open
// the gate, while a fresh login does.
func (a *PortalAPI) InternalTokenSkipHandler(c echo.Context) error {
	h := handleFrom(c)
	if sess := a.hydrate(c, h); !sess.IsAuthenticated {
		return c.JSON(http.StatusUnauthorized, notification{Message: "Sessão expirada. Faça login novamente."})
	}

	h.Store.SetInternalTokenBlockedInSession(c.Request().Context(), true)
	return c.JSON(http.StatusOK, authResponse{RedirectTo: gate.PathHome})
}

// MeHandler answers with the current session view. refresh=1 forces a fresh
// identity fetch.
func (a *PortalAPI) MeHandler(c echo.Context) error {
	h := handleFrom(c)

	var sess domain.Session
	if c.QueryParam("refresh") == "1" {
		var err error
		sess, err = h.Store.FetchIdentity(c.Request().Context(), false, false)
		if err != nil {
			return writeError(c, err)
		}
	} else {
		sess = a.hydrate(c, h)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"usuario":            sess.User,
		"autenticado":        sess.IsAuthenticated,
		"trocar_senha":       sess.MustChangePassword(),
		"validar_token":      sess.MustValidateInternalToken(),
		"carregando":         sess.IsLoading,
		"login_em_andamento": sess.IsLoggingIn,
	})
}

// FocusHandler forwards a tab-focus signal into the revalidator.
func (a *PortalAPI) FocusHandler(c echo.Context) error {
	handleFrom(c).Revalidator.NotifyFocus()
	return c.NoContent(http.StatusNoContent)
}

type visibilityRequest struct {
	Visible bool `json:"visivel"`
}

// VisibilityHandler records whether the tab is visible; hidden tabs skip
// the periodic refresh.
func (a *PortalAPI) VisibilityHandler(c echo.Context) error {
	var req visibilityRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, &apperrors.ValidationError{Field: "body", Message: "Requisição inválida."})
	}
	handleFrom(c).Revalidator.SetVisible(req.Visible)
	return c.NoContent(http.StatusNoContent)
}

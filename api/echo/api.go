// Package echo exposes the portal over HTTP. Page routes run the gate
// checks and answer with a render/redirect decision; /api routes carry the
// actions the pages trigger (login, password change, documents, chat,
// widget commands).
package echo

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/wecanbr/portal-gateway/domain"
	apperrors "github.com/wecanbr/portal-gateway/errors"
	"github.com/wecanbr/portal-gateway/gate"
	"github.com/wecanbr/portal-gateway/session"
	"github.com/wecanbr/portal-gateway/upstream"
	"github.com/wecanbr/portal-gateway/widget"
)

// SessionCookie names the browser-session cookie the gateway mints.
const SessionCookie = "portal_sid"

const sessionContextKey = "portal.session"

// backend is the slice of the upstream client the handlers call beyond what
// the session store already covers.
type backend interface {
	session.Upstream
	Login(ctx context.Context, req upstream.LoginRequest) error
	ChangePassword(ctx context.Context, current, next string) error
	RequestPasswordReset(ctx context.Context, login string) error
	ConfirmPasswordReset(ctx context.Context, login, code, newPassword string) error
	ValidateInternalToken(ctx context.Context, token string) error
	SearchDocuments(ctx context.Context, req upstream.SearchRequest) ([]upstream.DocumentRef, error)
	FetchDocument(ctx context.Context, docType upstream.DocumentType, id string) (*upstream.Document, error)
	FetchAcceptanceStatus(ctx context.Context, id string) (*upstream.AcceptanceStatus, error)
	AcceptDocument(ctx context.Context, id string) error
	EnsureChannel(ctx context.Context) (*upstream.Channel, error)
	PostMessage(ctx context.Context, channelID, text string) error
	OpenTicket(ctx context.Context, channelID, subject string) error
	AttachFile(ctx context.Context, channelID, filename string, content io.Reader) error
}

// PortalAPI holds the handler dependencies.
type PortalAPI struct {
	registry *session.Registry
}

// NewPortalAPI initializes the portal API over a session registry.
func NewPortalAPI(registry *session.Registry) *PortalAPI {
	return &PortalAPI{registry: registry}
}

// RegisterRoutes registers the page and action routes.
func (a *PortalAPI) RegisterRoutes(e *echo.Echo) {
	e.Use(a.sessionMiddleware)

	// Page routes: the gates decide render, redirect or loading.
	e.GET(gate.PathHome, a.HomePageHandler)
	e.GET(gate.PathLogin, a.pageHandler(gate.PublicOnly, "login"))
	e.GET(gate.PathChangePassword, a.pageHandler(gate.ForcePassword, "trocar-senha"))
	e.GET(gate.PathInternalToken, a.pageHandler(gate.InternalToken, "token"))
	e.GET("/documentos", a.pageHandler(gate.Protected, "documentos"))
	e.GET("/chat", a.pageHandler(gate.Protected, "chat"))
	e.GET("/perfil", a.pageHandler(gate.Protected, "perfil"))

	// Auth actions.
	e.POST("/api/auth/login", a.LoginHandler)
	e.POST("/api/auth/logout", a.LogoutHandler)
	e.PUT("/api/auth/senha", a.ChangePasswordHandler)
	e.POST("/api/auth/senha/reset", a.PasswordResetRequestHandler)
	e.POST("/api/auth/senha/reset/confirmar", a.PasswordResetConfirmHandler)
	e.POST("/api/token/validar", a.InternalTokenValidateHandler)
	e.POST("/api/token/pular", a.InternalTokenSkipHandler)

	// Session state.
	e.GET("/api/usuario/me", a.MeHandler)
	e.POST("/api/sessao/foco", a.FocusHandler)
	e.POST("/api/sessao/visibilidade", a.VisibilityHandler)

	// Documents.
	docs := e.Group("/api/documentos", a.requireAuth)
	docs.POST("/:tipo/buscar", a.DocumentSearchHandler)
	docs.GET("/:tipo/:id", a.DocumentFetchHandler)
	docs.GET("/aceite/:id", a.AcceptanceStatusHandler)
	docs.POST("/aceite/:id", a.AcceptDocumentHandler)

	// Chat.
	chat := e.Group("/api/chat", a.requireAuth)
	chat.POST("/canal", a.ChatChannelHandler)
	chat.POST("/mensagem", a.ChatMessageHandler)
	chat.POST("/ticket", a.ChatTicketHandler)
	chat.POST("/anexo", a.ChatAttachmentHandler)

	// Widget.
	e.POST("/api/widget/montar", a.WidgetMountHandler)
	e.GET("/api/widget/comandos", a.WidgetCommandsHandler)
	e.POST("/api/widget/eventos", a.WidgetEventHandler)
	e.POST("/api/widget/posicao", a.WidgetPositionHandler)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Unknown paths land on the home gate.
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, gate.PathHome)
	})
}

// sessionMiddleware resolves (or mints) the browser-session cookie and
// attaches the session handle to the request context.
func (a *PortalAPI) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Path() == "/metrics" {
			return next(c)
		}

		var sid string
		if cookie, err := c.Cookie(SessionCookie); err == nil && cookie.Value != "" {
			sid = cookie.Value
		} else {
			sid = uuid.NewString()
			c.SetCookie(&http.Cookie{
				Name:     SessionCookie,
				Value:    sid,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		h, err := a.registry.GetOrCreate(sid)
		if err != nil {
			log.Error().Err(err).Str("session_id", sid).Msg("api: session setup failed")
			return c.JSON(http.StatusInternalServerError, notification{Message: "Não foi possível iniciar a sessão."})
		}
		c.Set(sessionContextKey, h)
		return next(c)
	}
}

func handleFrom(c echo.Context) *session.Handle {
	h, _ := c.Get(sessionContextKey).(*session.Handle)
	return h
}

// hydrate returns the session snapshot, running the initial identity fetch
// when the session has never been hydrated. Transient fetch failures fall
// back to the last known snapshot.
func (a *PortalAPI) hydrate(c echo.Context, h *session.Handle) domain.Session {
	if h.Store.Hydrated() {
		return h.Store.Snapshot()
	}
	sess, err := h.Store.FetchIdentity(c.Request().Context(), false, false)
	if err != nil {
		log.Debug().Err(err).Msg("api: initial identity fetch failed")
	}
	return sess
}

// requireAuth guards the /api groups that only make sense for a logged-in
// user.
func (a *PortalAPI) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := handleFrom(c)
		if sess := a.hydrate(c, h); !sess.IsAuthenticated {
			return c.JSON(http.StatusUnauthorized, notification{Message: "Sessão expirada. Faça login novamente."})
		}
		return next(c)
	}
}

func (a *PortalAPI) client(c echo.Context) (backend, error) {
	h := handleFrom(c)
	b, ok := h.Upstream.(backend)
	if !ok {
		return nil, errors.New("upstream client does not implement the portal operations")
	}
	return b, nil
}

func (a *PortalAPI) manager(c echo.Context) *widget.Manager {
	h := handleFrom(c)
	m, _ := h.Widget.(*widget.Manager)
	return m
}

// pageResponse is the render decision a page route hands the frontend.
type pageResponse struct {
	Page    string       `json:"pagina,omitempty"`
	Loading bool         `json:"carregando,omitempty"`
	Home    string       `json:"home,omitempty"`
	User    *domain.User `json:"usuario,omitempty"`
}

// notification is the toast-style payload action failures answer with.
type notification struct {
	Message   string `json:"mensagem"`
	Retryable bool   `json:"tentar_novamente,omitempty"`
}

// pageHandler evaluates one gate for a page route.
func (a *PortalAPI) pageHandler(g gate.Func, name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := handleFrom(c)
		sess := a.hydrate(c, h)

		switch d := g(sess); d.Action {
		case gate.Redirect:
			return c.Redirect(http.StatusFound, d.RedirectTo)
		case gate.Loading:
			return c.JSON(http.StatusOK, pageResponse{Loading: true})
		default:
			return c.JSON(http.StatusOK, pageResponse{Page: name, User: sess.User})
		}
	}
}

// HomePageHandler runs the composite home gate: anonymous visitors get the
// public home, authenticated ones their own, and pending obligations
// redirect first.
func (a *PortalAPI) HomePageHandler(c echo.Context) error {
	h := handleFrom(c)
	sess := a.hydrate(c, h)

	d := gate.Home(sess)
	switch d.Action {
	case gate.Redirect:
		return c.Redirect(http.StatusFound, d.RedirectTo)
	case gate.Loading:
		return c.JSON(http.StatusOK, pageResponse{Loading: true})
	}

	resp := pageResponse{Page: "home", Home: "publica"}
	if d.Home == gate.HomeAuthenticated {
		resp.Home = "autenticada"
		resp.User = sess.User
	}
	return c.JSON(http.StatusOK, resp)
}

// writeError maps the error taxonomy onto HTTP answers. Remote operation
// failures become retryable notifications instead of opaque 500s.
func writeError(c echo.Context, err error) error {
	var vErr *apperrors.ValidationError
	if errors.As(err, &vErr) {
		return c.JSON(http.StatusUnprocessableEntity, notification{Message: vErr.Message})
	}

	if errors.Is(err, apperrors.ErrAuth) {
		return c.JSON(http.StatusUnauthorized, notification{Message: "Sessão expirada. Faça login novamente."})
	}

	var opErr *apperrors.RemoteOperationError
	if errors.As(err, &opErr) {
		return c.JSON(http.StatusBadGateway, notification{Message: opErr.Message, Retryable: opErr.Retryable})
	}

	if errors.Is(err, apperrors.ErrTransient) {
		return c.JSON(http.StatusServiceUnavailable, notification{
			Message:   "Estamos com instabilidade no momento. Tente novamente em instantes.",
			Retryable: true,
		})
	}

	log.Error().Err(err).Msg("api: unhandled error")
	return c.JSON(http.StatusInternalServerError, notification{Message: "Erro interno."})
}

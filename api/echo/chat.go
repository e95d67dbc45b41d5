package echo

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	apperrors "github.com/wecanbr/portal-gateway/errors"
)

// ChatChannelHandler returns the user's support channel, creating it when
// needed.
func (a *PortalAPI) ChatChannelHandler(c echo.Context) error {
	up, err := a.client(c)
	if err != nil {
		return writeError(c, err)
	}

	ch, err := up.EnsureChannel(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ch)
}

type chatMessageRequest struct {
	ChannelID string `json:"canal_id"`
	Text      string `json:"texto"`
}

// ChatMessageHandler posts one message into a channel.
func (a *PortalAPI) ChatMessageHandler(c echo.Context) error {
	var req chatMessageRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, &apperrors.ValidationError{Field: "body", Message: "Requisição inválida."})
	}
	if req.ChannelID == "" || strings.TrimSpace(req.Text) == "" {
		return writeError(c, &apperrors.ValidationError{Field: "texto", Message: "Informe canal e mensagem."})
	}

	up, err := a.client(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := up.PostMessage(c.Request().Context(), req.ChannelID, req.Text); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type chatTicketRequest struct {
	ChannelID string `json:"canal_id"`
	Subject   string `json:"assunto"`
}

// ChatTicketHandler opens a support ticket bound to a channel.
func (a *PortalAPI) ChatTicketHandler(c echo.Context) error {
	var req chatTicketRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, &apperrors.ValidationError{Field: "body", Message: "Requisição inválida."})
	}
	if req.ChannelID == "" || strings.TrimSpace(req.Subject) == "" {
		return writeError(c, &apperrors.ValidationError{Field: "assunto", Message: "Informe canal e assunto."})
	}

	up, err := a.client(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := up.OpenTicket(c.Request().Context(), req.ChannelID, req.Subject); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, notification{Message: "Chamado aberto."})
}

// ChatAttachmentHandler forwards a multipart file into a channel.
func (a *PortalAPI) ChatAttachmentHandler(c echo.Context) error {
	channelID := c.FormValue("canal_id")
	if channelID == "" {
		return writeError(c, &apperrors.ValidationError{Field: "canal_id", Message: "Informe o canal."})
	}

	fh, err := c.FormFile("arquivo")
	if err != nil {
		return writeError(c, &apperrors.ValidationError{Field: "arquivo", Message: "Anexe um arquivo."})
	}
	src, err := fh.Open()
	if err != nil {
		return writeError(c, err)
	}
	defer src.Close()

	up, err := a.client(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := up.AttachFile(c.Request().Context(), channelID, fh.Filename, src); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

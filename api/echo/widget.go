package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/wecanbr/portal-gateway/errors"
	"github.com/wecanbr/portal-gateway/widget"
)

func (a *PortalAPI) queueHost(c echo.Context) *widget.QueueHost {
	m := a.manager(c)
	if m == nil {
		return nil
	}
	qh, _ := m.Host().(*widget.QueueHost)
	return qh
}

// WidgetMountHandler reconciles the widget against the current identity.
// An identity change since the last mount triggers the hard reset before
// the scripts load.
func (a *PortalAPI) WidgetMountHandler(c echo.Context) error {
	m := a.manager(c)
	if m == nil {
		return c.JSON(http.StatusOK, map[string]string{"estado": "desabilitado"})
	}

	h := handleFrom(c)
	sess := a.hydrate(c, h)

	if err := m.Ensure(c.Request().Context(), sess.IdentityKey()); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"estado": m.State().String()})
}

// WidgetCommandsHandler drains the pending DOM commands for the page to
// apply.
func (a *PortalAPI) WidgetCommandsHandler(c echo.Context) error {
	qh := a.queueHost(c)
	if qh == nil {
		return c.JSON(http.StatusOK, []widget.Command{})
	}
	cmds := qh.Drain()
	if cmds == nil {
		cmds = []widget.Command{}
	}
	return c.JSON(http.StatusOK, cmds)
}

type widgetEventRequest struct {
	AddedText string `json:"texto_adicionado"`
}

// WidgetEventHandler receives a DOM mutation report from the page and fans
// it out to the manager's subscription.
func (a *PortalAPI) WidgetEventHandler(c echo.Context) error {
	var req widgetEventRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, &apperrors.ValidationError{Field: "body", Message: "Requisição inválida."})
	}

	if qh := a.queueHost(c); qh != nil {
		qh.NotifyDOMChanged(req.AddedText)
	}
	return c.NoContent(http.StatusNoContent)
}

type widgetPositionRequest struct {
	Top  int `json:"top"`
	Left int `json:"left"`
}

// WidgetPositionHandler persists the dragged position and re-applies it.
func (a *PortalAPI) WidgetPositionHandler(c echo.Context) error {
	var req widgetPositionRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, &apperrors.ValidationError{Field: "body", Message: "Requisição inválida."})
	}

	m := a.manager(c)
	if m == nil {
		return c.NoContent(http.StatusNoContent)
	}
	if err := m.SavePosition(c.Request().Context(), widget.Position{Top: req.Top, Left: req.Left}); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

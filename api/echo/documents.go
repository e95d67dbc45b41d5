package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/wecanbr/portal-gateway/errors"
	"github.com/wecanbr/portal-gateway/upstream"
)

func documentType(c echo.Context) (upstream.DocumentType, error) {
	switch t := upstream.DocumentType(c.Param("tipo")); t {
	case upstream.DocumentPayslip, upstream.DocumentBenefits, upstream.DocumentHR:
		return t, nil
	default:
		return "", &apperrors.ValidationError{Field: "tipo", Message: "Tipo de documento desconhecido."}
	}
}

type documentSearchRequest struct {
	Matricula   string `json:"matricula"`
	Competencia string `json:"competencia"`
}

// DocumentSearchHandler lists documents of one type for the logged-in user.
func (a *PortalAPI) DocumentSearchHandler(c echo.Context) error {
	docType, err := documentType(c)
	if err != nil {
		return writeError(c, err)
	}

	var req documentSearchRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, &apperrors.ValidationError{Field: "body", Message: "Requisição inválida."})
	}

	up, err := a.client(c)
	if err != nil {
		return writeError(c, err)
	}

	refs, err := up.SearchDocuments(c.Request().Context(), upstream.SearchRequest{
		Type:        docType,
		Matricula:   req.Matricula,
		Competencia: req.Competencia,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, refs)
}

// DocumentFetchHandler returns one document payload by uuid. The PDF stays
// base64-encoded end to end.
func (a *PortalAPI) DocumentFetchHandler(c echo.Context) error {
	docType, err := documentType(c)
	if err != nil {
		return writeError(c, err)
	}

	up, err := a.client(c)
	if err != nil {
		return writeError(c, err)
	}

	doc, err := up.FetchDocument(c.Request().Context(), docType, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}

// AcceptanceStatusHandler reports whether a document still awaits the
// employee's acceptance.
func (a *PortalAPI) AcceptanceStatusHandler(c echo.Context) error {
	up, err := a.client(c)
	if err != nil {
		return writeError(c, err)
	}

	status, err := up.FetchAcceptanceStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// AcceptDocumentHandler records the employee's acceptance of a document.
func (a *PortalAPI) AcceptDocumentHandler(c echo.Context) error {
	up, err := a.client(c)
	if err != nil {
		return writeError(c, err)
	}

	if err := up.AcceptDocument(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, notification{Message: "Aceite registrado."})
}

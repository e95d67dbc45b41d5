package upstream

import (
	"context"
	"fmt"
	"net/http"
)

// DocumentType selects which backend document family an operation targets.
type DocumentType string

const (
	DocumentPayslip  DocumentType = "holerite"
	DocumentBenefits DocumentType = "beneficios"
	DocumentHR       DocumentType = "rh"
)

// DocumentRef identifies one document in a search result.
type DocumentRef struct {
	UUID        string `json:"uuid"`
	Matricula   string `json:"matricula"`
	Competencia string `json:"competencia"` // reference period, e.g. "2026-07"
	Title       string `json:"titulo"`
	Type        string `json:"tipo"`
}

// Document is a fetched document; the PDF travels through as base64 and is
// never decoded here.
type Document struct {
	DocumentRef
	PDFBase64 string `json:"pdf_base64"`
}

// SearchRequest filters a document search.
type SearchRequest struct {
	Type        DocumentType `json:"tipo"`
	Matricula   string       `json:"matricula,omitempty"`
	Competencia string       `json:"competencia,omitempty"`
}

// SearchDocuments lists documents of one type for the logged-in user.
func (c *Client) SearchDocuments(ctx context.Context, req SearchRequest) ([]DocumentRef, error) {
	path := fmt.Sprintf("/documentos/%s/buscar", req.Type)

	var raw []map[string]interface{}
	if err := c.do(ctx, http.MethodPost, path, req, &raw); err != nil {
		return nil, err
	}

	refs := make([]DocumentRef, 0, len(raw))
	for _, item := range raw {
		refs = append(refs, normalizeDocumentRef(req.Type, item))
	}
	return refs, nil
}

// FetchDocument retrieves one document payload by uuid.
func (c *Client) FetchDocument(ctx context.Context, docType DocumentType, id string) (*Document, error) {
	var raw map[string]interface{}
	path := fmt.Sprintf("/documentos/%s/%s", docType, id)
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	doc := &Document{DocumentRef: normalizeDocumentRef(docType, raw)}
	if pdf, ok := stringField(raw, "pdf_base64"); ok {
		doc.PDFBase64 = pdf
	} else if pdf, ok := stringField(raw, "arquivo"); ok {
		doc.PDFBase64 = pdf
	}
	return doc, nil
}

// AcceptanceStatus reports whether a document still awaits the employee's
// acceptance.
type AcceptanceStatus struct {
	UUID     string `json:"uuid"`
	Accepted bool   `json:"aceito"`
}

// FetchAcceptanceStatus returns the acceptance state of a document.
func (c *Client) FetchAcceptanceStatus(ctx context.Context, id string) (*AcceptanceStatus, error) {
	var status AcceptanceStatus
	if err := c.do(ctx, http.MethodGet, "/documentos/aceite/"+id, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// AcceptDocument records the employee's acceptance.
func (c *Client) AcceptDocument(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/documentos/aceite/"+id, map[string]string{"uuid": id}, nil)
}

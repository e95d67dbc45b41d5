package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/wecanbr/portal-gateway/errors"
)

// Channel is a support chat channel bound to the logged-in user.
type Channel struct {
	ID string `json:"id"`
}

// EnsureChannel returns the user's support channel, creating it if needed.
func (c *Client) EnsureChannel(ctx context.Context) (*Channel, error) {
	var ch Channel
	if err := c.do(ctx, http.MethodPost, "/chat/canal", nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// PostMessage sends a chat message into a channel.
func (c *Client) PostMessage(ctx context.Context, channelID, text string) error {
	body := map[string]string{"canal_id": channelID, "mensagem": text}
	return c.do(ctx, http.MethodPost, "/chat/mensagem", body, nil)
}

// OpenTicket escalates a conversation into a support ticket.
func (c *Client) OpenTicket(ctx context.Context, channelID, subject string) error {
	body := map[string]string{"canal_id": channelID, "assunto": subject}
	return c.do(ctx, http.MethodPost, "/chat/ticket", body, nil)
}

// AttachFile uploads a file into a channel as multipart form data.
func (c *Client) AttachFile(ctx context.Context, channelID, filename string, content io.Reader) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("canal_id", channelID); err != nil {
		return fmt.Errorf("write multipart field: %w", err)
	}
	part, err := writer.CreateFormFile("arquivo", filename)
	if err != nil {
		return fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("copy attachment: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL.JoinPath("/chat/anexo").String(), &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: upload attachment: %v", apperrors.ErrTransient, err)
	}
	defer resp.Body.Close()

	if apperrors.IsAuthStatus(resp.StatusCode) {
		return apperrors.NewAuthError(resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.NewRemoteOperationError("POST /chat/anexo", resp.StatusCode, nil)
	}
	return nil
}

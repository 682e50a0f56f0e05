// Package telegram is a minimal Bot API client used to push requisition
// notifications into the operators' channel.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(token string) (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("TELEGRAM_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type sendMessageRequest struct {
	ChatId    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	Ok          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage posts a plain-text message to the configured chat.
func (c *Client) SendMessage(ctx context.Context, chatId string, text string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatId: chatId, Text: text})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return err
	}
	if !parsed.Ok {
		return fmt.Errorf("telegram api rejected message: %s", parsed.Description)
	}
	return nil
}

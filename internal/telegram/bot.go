package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const telegramAPI = "https://api.telegram.org/bot"

// Bot is a minimal Telegram Bot API client that only sends messages.
type Bot struct {
	token   string
	logger  *slog.Logger
	client  *http.Client
	baseURL string
}

func NewBot(token string, logger *slog.Logger) *Bot {
	return &Bot{
		token:   token,
		logger:  logger,
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: telegramAPI,
	}
}

// SendMessage sends a plain-text message. chatID may be a numeric id or an
// @channel username.
func (b *Bot) SendMessage(ctx context.Context, chatID, text string) error {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+b.token+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("telegram API error %d: %s", resp.StatusCode, errResp.Description)
	}
	b.logger.Debug("telegram message sent", "chat_id", chatID, "bytes", len(text))
	return nil
}

package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"ppewatch/internal/violation"
)

// TelegramNotifier delivers violation alerts to a Telegram chat. When the
// event carries a snapshot reference the image is attached, otherwise a
// plain text message is sent. Dedup is the gate's job; the notifier just
// delivers.
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *http.Client
}

// TelegramConfig holds Telegram delivery settings.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// NewTelegramNotifier creates a notifier for the configured bot and chat.
func NewTelegramNotifier(cfg TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify sends the violation to the chat.
func (tn *TelegramNotifier) Notify(ctx context.Context, e violation.Event) error {
	if tn.botToken == "" || tn.chatID == "" {
		return fmt.Errorf("alert: telegram bot token or chat ID not configured")
	}

	caption := fmt.Sprintf("🚨 <b>PPE violation</b>\n%s: %s (%.0f%%)\n%s",
		e.Domain, e.Class, e.Confidence*100, e.DetectedAt.Format("2006-01-02 15:04:05"))

	if e.ImageRef != "" {
		if err := tn.sendPhoto(ctx, e.ImageRef, caption); err == nil {
			return nil
		}
		// Fall through to a plain message when the photo upload fails.
	}
	return tn.sendMessage(ctx, caption)
}

func (tn *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	payload := map[string]any{
		"chat_id":    tn.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("alert: encoding telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", tn.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return tn.do(req)
}

func (tn *TelegramNotifier) sendPhoto(ctx context.Context, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("alert: opening snapshot: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("chat_id", tn.chatID)
	w.WriteField("caption", caption)
	w.WriteField("parse_mode", "HTML")
	fw, err := w.CreateFormFile("photo", "violation.jpg")
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return err
	}
	w.Close()

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendPhoto", tn.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return tn.do(req)
}

func (tn *TelegramNotifier) do(req *http.Request) error {
	resp, err := tn.client.Do(req)
	if err != nil {
		return fmt.Errorf("alert: telegram request: %w", err)
	}
	defer resp.Body.Close()

	var tr telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("alert: decoding telegram response: %w", err)
	}
	if !tr.OK {
		return fmt.Errorf("alert: telegram error %d: %s", tr.ErrorCode, tr.Description)
	}
	return nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTelegramBaseURL = "https://api.telegram.org"
	telegramParseMode      = "MarkdownV2"

	botConnectTimeout = 10 * time.Second
	sendTimeout       = 30 * time.Second
)

// TelegramConfig carries the bot credential and an optional API base URL
// override for tests.
type TelegramConfig struct {
	BotToken string
	BaseURL  string
}

// TelegramSender delivers messages through the Telegram Bot API.
type TelegramSender struct {
	baseURL string
	token   string
	client  *http.Client
	log     *zap.Logger
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// NewTelegramSender validates the bot credential with a getMe call and
// returns a ready sender.
func NewTelegramSender(ctx context.Context, cfg TelegramConfig, log *zap.Logger) (*TelegramSender, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTelegramBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &TelegramSender{
		baseURL: baseURL,
		token:   cfg.BotToken,
		client:  &http.Client{},
		log:     log,
	}
	if err := s.checkBot(ctx); err != nil {
		return nil, err
	}
	s.log.Info("telegram bot initialized")
	return s, nil
}

func (s *TelegramSender) checkBot(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, botConnectTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/bot%s/getMe", s.baseURL, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build getMe request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram bot unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram bot check failed with status %d", resp.StatusCode)
	}
	return nil
}

// Send delivers one message to one chat. The raw message is truncated to
// the Telegram limit and MarkdownV2-escaped before posting.
func (s *TelegramSender) Send(ctx context.Context, chatID, message string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	payload := sendMessageRequest{
		ChatID:                chatID,
		Text:                  EscapeMarkdownV2(TruncateMessage(message)),
		ParseMode:             telegramParseMode,
		DisableWebPagePreview: true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sendMessage payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram sendMessage returned status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}

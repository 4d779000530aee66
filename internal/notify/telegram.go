package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

type Telegram struct {
	token  string
	chatID string
	base   string
	client *http.Client
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{token: token, chatID: chatID, base: telegramAPI, client: &http.Client{Timeout: 10 * time.Second}}
}

// WithBaseURL points the bot at another API host (tests, self-hosted bot API).
func (t *Telegram) WithBaseURL(u string) *Telegram {
	t.base = strings.TrimRight(u, "/")
	return t
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, text string) error {
	form := url.Values{"chat_id": {t.chatID}, "text": {text}}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.base, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := t.client.Do(req)
	if err != nil {
		// o token vai na URL; não deixar vazar no log
		return fmt.Errorf("telegram request failed: %s", strings.ReplaceAll(err.Error(), t.token, "***"))
	}
	_ = resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("telegram http status %s", resp.Status)
	}
	return nil
}

package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"TSIWatch/internal/logger"
)

const (
	telegramAPI = "https://api.telegram.org"
	// Telegram rejects messages longer than 4096 characters.
	maxMessageLen = 4000
)

// Sender delivers a text message to the operator.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	APIBase  string
	Client   *http.Client
	Log      *logger.Logger

	// retryDelay is the first backoff step of SendWithRetry.
	retryDelay time.Duration
	// pollTimeout is the long-polling wait passed to getUpdates.
	pollTimeout time.Duration
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string, log *logger.Logger) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		APIBase:  telegramAPI,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		Log:         log.WithField("component", "telegram"),
		retryDelay:  time.Second,
		pollTimeout: 30 * time.Second,
	}
}

func (t *TelegramNotifier) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(t.APIBase, "/"), t.BotToken, method)
}

// Send sends a message to the configured chat. Long messages are sent in parts.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	for _, part := range splitMessage(text, maxMessageLen) {
		if err := t.sendOne(ctx, part); err != nil {
			return err
		}
	}
	return nil
}

func (t *TelegramNotifier) sendOne(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry. Each part of a
// split message is retried on its own, so delivered parts are not repeated.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	parts := splitMessage(text, maxMessageLen)
	for i, part := range parts {
		if err := t.sendPartWithRetry(ctx, part, maxRetries); err != nil {
			if len(parts) > 1 {
				return fmt.Errorf("part %d/%d: %w", i+1, len(parts), err)
			}
			return err
		}
	}
	return nil
}

func (t *TelegramNotifier) sendPartWithRetry(ctx context.Context, part string, maxRetries int) error {
	var lastErr error
	backoff := t.retryDelay
	for i := 0; i <= maxRetries; i++ {
		err := t.sendOne(ctx, part)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == maxRetries {
			break
		}
		t.Log.WithError(err).Warnf("telegram send failed (attempt %d/%d), retrying in %v", i+1, maxRetries+1, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("all %d attempts exhausted: %w", maxRetries+1, lastErr)
}

const (
	preOpen  = "<pre>"
	preClose = "</pre>"
)

// splitMessage cuts text into parts of at most limit bytes, preferring line
// breaks. A <pre> block crossing a cut is closed and reopened so every part is
// valid HTML on its own. A single line longer than limit is cut on a rune
// boundary.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var parts []string
	var b strings.Builder
	inPre := false
	reopened := 0
	flush := func() {
		if b.Len() == reopened {
			return
		}
		part := b.String()
		if inPre {
			part += preClose
		}
		parts = append(parts, part)
		b.Reset()
		reopened = 0
		if inPre {
			b.WriteString(preOpen)
			reopened = len(preOpen)
		}
	}
	closing := func(open bool) int {
		if open {
			return len(preClose)
		}
		return 0
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		next := preStateAfter(inPre, line)
		if b.Len()+len(line)+closing(next) > limit {
			flush()
		}
		for len(line) > 0 && b.Len()+len(line)+closing(next) > limit {
			n := runeCut(line, limit-b.Len()-closing(inPre))
			b.WriteString(line[:n])
			line = line[n:]
			flush()
		}
		b.WriteString(line)
		inPre = next
	}
	flush()
	return parts
}

// preStateAfter reports whether a <pre> block is open after line.
func preStateAfter(open bool, line string) bool {
	o, c := strings.LastIndex(line, preOpen), strings.LastIndex(line, preClose)
	if o < 0 && c < 0 {
		return open
	}
	return o > c
}

// runeCut returns the largest prefix length of s not above n that ends on a
// rune boundary. It is at least one rune so callers always make progress.
func runeCut(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	if n == 0 {
		_, n = utf8.DecodeRuneInString(s)
	}
	return n
}

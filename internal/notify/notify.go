// Package notify предоставляет клиент шлюза уведомлений.
//
// Канал строго побочный: вызывающий обязан подавлять ошибки отправки,
// доставка уведомлений не гарантируется.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client инкапсулирует HTTP-взаимодействие со шлюзом уведомлений.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type message struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

// NewClient создаёт клиент шлюза уведомлений по указанному адресу.
// Пустой адрес означает, что уведомления отключены.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Send отправляет одно уведомление указанному контакту.
func (c *Client) Send(ctx context.Context, contact, text string) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("notify client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(message{PhoneNumber: contact, Message: text})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/notify", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}

// Package ledger предоставляет клиент для узла реестра и шлюза подписи кошелька.
//
// Чтения выполняются view-функциями узла, записи уходят через шлюз подписи:
// сам сервис транзакции не подписывает. Отправленная транзакция
// подтверждается опросом узла до терминального статуса.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

const moduleName = "supply_chain"

// RejectionError означает, что транзакция была принята узлом,
// но отклонена реестром. Диагностика реестра передаётся без изменений.
type RejectionError struct {
	Hash     string
	VMStatus string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("transaction %s rejected by ledger: %s", e.Hash, e.VMStatus)
}

// Client инкапсулирует HTTP-взаимодействие с узлом реестра.
type Client struct {
	baseURL       string
	moduleAddress string
	httpClient    *retryablehttp.Client
	limiter       *rate.Limiter
}

// NewClient создаёт клиент реестра для указанного адреса узла и адреса
// модуля цепочки поставок.
func NewClient(baseURL, moduleAddress string) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 2
	httpClient.Logger = nil
	httpClient.HTTPClient.Timeout = 5 * time.Second

	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		moduleAddress: moduleAddress,
		httpClient:    httpClient,
		limiter:       rate.NewLimiter(rate.Limit(10), 20),
	}
}

func (c *Client) endpoint(path string) string {
	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return base + path
}

func (c *Client) function(name string) string {
	return fmt.Sprintf("%s::%s::%s", c.moduleAddress, moduleName, name)
}

type viewRequest struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

// view вызывает view-функцию узла и возвращает сырые записи как есть.
func (c *Client) view(ctx context.Context, function string, args []any) ([]map[string]any, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("ledger client not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(viewRequest{
		Function:      function,
		TypeArguments: []string{},
		Arguments:     args,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal view request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/view"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var records []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return records, nil
}

// GetBatches возвращает сырые записи партий указанного аккаунта.
func (c *Client) GetBatches(ctx context.Context, account string) ([]map[string]any, error) {
	return c.view(ctx, c.function("get_all_batches"), []any{account})
}

// GetOrders возвращает сырые записи заказов указанного аккаунта.
func (c *Client) GetOrders(ctx context.Context, account string) ([]map[string]any, error) {
	return c.view(ctx, c.function("get_all_orders"), []any{account})
}

// GetFeedbacks возвращает сырые записи отзывов указанного аккаунта.
func (c *Client) GetFeedbacks(ctx context.Context, account string) ([]map[string]any, error) {
	return c.view(ctx, c.function("get_all_feedbacks"), []any{account})
}

type submitRequest struct {
	Sender        string   `json:"sender"`
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

type submitResponse struct {
	Hash string `json:"hash"`
}

// SubmitEntry отправляет entry-функцию модуля через шлюз подписи и
// возвращает хеш ожидающей подтверждения транзакции.
func (c *Client) SubmitEntry(ctx context.Context, sender, entry string, args []any) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("ledger client not configured")
	}

	body, err := json.Marshal(submitRequest{
		Sender:        sender,
		Function:      c.function(entry),
		TypeArguments: []string{},
		Arguments:     args,
	})
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/transactions"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.Hash == "" {
		return "", fmt.Errorf("empty transaction hash in response")
	}

	return result.Hash, nil
}

type transactionStatus struct {
	Hash     string `json:"hash"`
	Pending  bool   `json:"pending"`
	Success  bool   `json:"success"`
	VMStatus string `json:"vm_status"`
}

// WaitForTransaction блокируется до терминального статуса транзакции.
// Незавершённая транзакция опрашивается с экспоненциальной задержкой;
// отклонение реестра возвращается как *RejectionError.
func (c *Client) WaitForTransaction(ctx context.Context, hash string) error {
	backoff := retry.WithMaxDuration(60*time.Second, retry.NewExponential(200*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		st, err := c.getTransaction(ctx, hash)
		if err != nil {
			return retry.RetryableError(err)
		}
		if st == nil || st.Pending {
			// Узел мог ещё не проиндексировать транзакцию
			return retry.RetryableError(fmt.Errorf("transaction %s still pending", hash))
		}
		if !st.Success {
			return &RejectionError{Hash: hash, VMStatus: st.VMStatus}
		}
		return nil
	})
}

// getTransaction возвращает статус транзакции либо nil, если узел о ней ещё не знает.
func (c *Client) getTransaction(ctx context.Context, hash string) (*transactionStatus, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/transactions/"+hash), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var st transactionStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &st, nil
}

// Package notify предоставляет клиент отправки уведомлений о событиях счёта.
// Уведомления отправляются после фиксации транзакции и являются необязательным
// побочным эффектом: их сбой не откатывает операцию.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/interact-app/points-ledger/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с приёмником уведомлений.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Event описывает отправляемое уведомление.
type Event struct {
	Type      string `json:"type"`
	AccountID int64  `json:"account_id"`
	Level     int    `json:"level,omitempty"`
	Title     string `json:"title,omitempty"`
	ItemID    int64  `json:"item_id,omitempty"`
	Points    int64  `json:"points,omitempty"`
	Status    string `json:"status,omitempty"`
}

// NewClient создаёт HTTP-клиент для отправки уведомлений по указанному адресу.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 1 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc.StandardClient(),
	}
}

// LevelUp отправляет уведомление о повышении уровня счёта.
func (c *Client) LevelUp(ctx context.Context, accountID int64, level int, title string) error {
	return c.send(ctx, Event{
		Type:      "level_up",
		AccountID: accountID,
		Level:     level,
		Title:     title,
	})
}

// RedemptionCreated отправляет уведомление о созданном обмене баллов.
func (c *Client) RedemptionCreated(ctx context.Context, red *model.Redemption) error {
	return c.send(ctx, Event{
		Type:      "redemption_created",
		AccountID: red.AccountID,
		ItemID:    red.ItemID,
		Points:    red.PointsSpent,
		Status:    string(red.Status),
	})
}

func (c *Client) send(ctx context.Context, ev Event) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("notify client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	url := base + "/api/events"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}

package clockd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Клиент сервиса виртуальных часов: в тестовых стендах время
// симулируется, и все временные проверки ядра читают его отсюда
type Client struct {
	base   string
	client *http.Client
}

type clockResponse struct {
	Now          time.Time `json:"now"`
	IsGraceDay   bool      `json:"isGraceDay"`
	CurrentMonth string    `json:"currentMonth"`
}

func NewClient() (*Client, error) {
	// config
	host := os.Getenv("CLOCKD_HOST")
	if host == "" {
		return nil, fmt.Errorf("env CLOCKD_HOST is not set")
	}
	port := os.Getenv("CLOCKD_PORT")
	if port == "" {
		return nil, fmt.Errorf("env CLOCKD_PORT is not set")
	}
	return &Client{
		base:   host + ":" + port,
		client: &http.Client{Timeout: 5 * time.Second},
	}, nil
}

func (c *Client) fetch(ctx context.Context) (*clockResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/clock", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clockd HTTP error: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	clock := &clockResponse{}
	err = json.Unmarshal(body, clock)
	if err != nil {
		return nil, err
	}
	return clock, nil
}

func (c *Client) Now(ctx context.Context) (time.Time, error) {
	clock, err := c.fetch(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return clock.Now, nil
}

func (c *Client) IsGraceDay(ctx context.Context) (bool, error) {
	clock, err := c.fetch(ctx)
	if err != nil {
		return false, err
	}
	return clock.IsGraceDay, nil
}

func (c *Client) CurrentMonth(ctx context.Context) (string, error) {
	clock, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}
	return clock.CurrentMonth, nil
}

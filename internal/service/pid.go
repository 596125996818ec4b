package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// PIDIssuer mints permanent identifiers.
type PIDIssuer interface {
	IssuePID(ctx context.Context, uuid string) (string, error)
}

// PIDConfig holds configuration for the PID service client.
type PIDConfig struct {
	BaseURL string
	Timeout time.Duration
}

// PIDClient requests permanent identifiers from the PID service.
type PIDClient struct {
	client   *resty.Client
	endpoint string
}

// NewPIDClient creates a new PID service client.
func NewPIDClient(cfg *PIDConfig) *PIDClient {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	return &PIDClient{
		client:   client,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/pid",
	}
}

type pidRequest struct {
	Type string `json:"type"`
	UUID string `json:"uuid"`
}

type pidResponse struct {
	PID string `json:"pid"`
}

// IssuePID returns a new permanent identifier for the file uuid.
func (c *PIDClient) IssuePID(ctx context.Context, uuid string) (string, error) {
	var result pidResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(pidRequest{Type: "file", UUID: uuid}).
		SetResult(&result).
		Post(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call PID service: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("PID service returned HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	if result.PID == "" {
		return "", fmt.Errorf("PID service returned no pid for %s", uuid)
	}
	return result.PID, nil
}

package pusher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// 一次 multicast 请求的令牌上限
const maxTokensPerRequest = 500

var invalidTokenErrors = map[string]bool{
	"NotRegistered":       true,
	"InvalidRegistration": true,
	"MismatchSenderId":    true,
}

type fcmGateway struct {
	endpoint  string
	serverKey string
	client    *http.Client
}

var _ Gateway = (*fcmGateway)(nil)

func NewFCMGateway(endpoint, serverKey string, client *http.Client) Gateway {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &fcmGateway{endpoint: endpoint, serverKey: serverKey, client: client}
}

type fcmRequest struct {
	RegistrationIDs []string          `json:"registration_ids"`
	Notification    fcmNotification   `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

func (g *fcmGateway) Send(ctx context.Context, tokens []string, n Notification) ([]TokenResult, error) {
	results := make([]TokenResult, 0, len(tokens))
	for start := 0; start < len(tokens); start += maxTokensPerRequest {
		end := start + maxTokensPerRequest
		if end > len(tokens) {
			end = len(tokens)
		}
		batch, err := g.sendBatch(ctx, tokens[start:end], n)
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}
	return results, nil
}

func (g *fcmGateway) sendBatch(ctx context.Context, tokens []string, n Notification) ([]TokenResult, error) {
	body, err := json.Marshal(fcmRequest{
		RegistrationIDs: tokens,
		Notification:    fcmNotification{Title: n.Title, Body: n.Body},
		Data:            n.Data,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+g.serverKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("push gateway: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("push gateway: decode response: %w", err)
	}
	if len(out.Results) != len(tokens) {
		return nil, fmt.Errorf("push gateway: expected %d results, got %d", len(tokens), len(out.Results))
	}

	results := make([]TokenResult, len(tokens))
	for i, r := range out.Results {
		results[i] = TokenResult{Token: tokens[i]}
		if r.Error == "" {
			continue
		}
		if invalidTokenErrors[r.Error] {
			results[i].Invalid = true
		}
		results[i].Err = errors.New(r.Error)
	}
	return results, nil
}

package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// batchSize is the gateway's per-request message cap.
const batchSize = 100

// Client talks to an Expo-style push gateway: POST a JSON array of messages,
// each addressed to one device token.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient builds a push client. Returns nil if the endpoint is empty so
// the posts handlers can skip fan-out entirely.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		return nil
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type message struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send fans a notification out to every token, batching requests. A failed
// batch is logged and skipped; the remaining batches still go out.
func (c *Client) Send(ctx context.Context, tokens []string, title, body string) error {
	var failed int

	for start := 0; start < len(tokens); start += batchSize {
		end := start + batchSize
		if end > len(tokens) {
			end = len(tokens)
		}

		batch := make([]message, 0, end-start)
		for _, token := range tokens[start:end] {
			batch = append(batch, message{To: token, Title: title, Body: body})
		}

		if err := c.sendBatch(ctx, batch); err != nil {
			log.Printf("[push] batch %d-%d error: %v", start, end, err)
			failed += len(batch)
		}
	}

	if failed > 0 {
		return fmt.Errorf("push delivery failed for %d of %d tokens", failed, len(tokens))
	}
	return nil
}

func (c *Client) sendBatch(ctx context.Context, batch []message) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encoding push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	log.Printf("[push] sent %d messages status=%d duration=%dms",
		len(batch), resp.StatusCode, time.Since(start).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push gateway returned HTTP %d", resp.StatusCode)
	}
	return nil
}

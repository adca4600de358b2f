package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/procwatch/internal/history"
)

// Sink indexes events into OpenSearch (or Elasticsearch) over its REST API,
// one document per event at baseURL/index/_doc. The same index serves Recent
// and Prune.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	return &Sink{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
	}
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	return s.post(ctx, "/_doc", e, nil)
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source history.Event `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Recent returns up to limit events, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]history.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	q := map[string]any{
		"size": limit,
		"sort": []any{map[string]any{"occurred_at": map[string]string{"order": "desc"}}},
	}
	var resp searchResponse
	if err := s.post(ctx, "/_search", q, &resp); err != nil {
		return nil, err
	}
	out := make([]history.Event, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

// Prune removes events that occurred before the given time.
func (s *Sink) Prune(ctx context.Context, before time.Time) (int64, error) {
	q := map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"occurred_at": map[string]string{"lt": before.UTC().Format(time.RFC3339Nano)},
			},
		},
	}
	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	if err := s.post(ctx, "/_delete_by_query", q, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

func (s *Sink) post(ctx context.Context, endpoint string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	u := s.baseURL + "/" + s.index + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("opensearch sink status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

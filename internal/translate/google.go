package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultGoogleEndpoint = "https://translate.googleapis.com/translate_a/single"

// Google calls the public web translation endpoint used by the browser
// widget (client=gtx). No API key is required.
type Google struct {
	endpoint string
	client   *http.Client
}

// NewGoogle returns a client for endpoint (empty for the public one), routed
// through proxy when set.
func NewGoogle(endpoint, proxy string, timeout time.Duration) (*Google, error) {
	if endpoint == "" {
		endpoint = defaultGoogleEndpoint
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("translate proxy %q: %w", proxy, err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &Google{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout, Transport: transport},
	}, nil
}

func (g *Google) Translate(ctx context.Context, text, source, target string) (string, error) {
	if source == "" {
		source = "auto"
	}
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", source)
	q.Set("tl", target)
	q.Set("dt", "t")
	q.Set("q", text)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("google translate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("google translate: %s", resp.Status)
	}
	return parseGoogle(data)
}

// parseGoogle joins the translated chunks at data[0][i][0].
func parseGoogle(data []byte) (string, error) {
	var top []json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return "", fmt.Errorf("google translate: decode: %w", err)
	}
	if len(top) == 0 {
		return "", ErrEmptyTranslation
	}
	var chunks [][]any
	if err := json.Unmarshal(top[0], &chunks); err != nil {
		return "", fmt.Errorf("google translate: decode chunks: %w", err)
	}
	var b strings.Builder
	for _, c := range chunks {
		if len(c) == 0 {
			continue
		}
		if s, ok := c[0].(string); ok {
			b.WriteString(s)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrEmptyTranslation
	}
	return out, nil
}

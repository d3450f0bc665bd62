package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shoplist/internal/models"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultReconnectDelay = 2 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Client talks to a shoplist document server.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
		},
		reconnectDelay: DefaultReconnectDelay,
	}
}

// SetReconnectDelay changes the initial wait before a dropped listen stream
// is redialed. The wait doubles on each failure up to 30s.
func (c *Client) SetReconnectDelay(d time.Duration) {
	c.reconnectDelay = d
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err != nil {
			return &APIError{
				StatusCode: resp.StatusCode,
				Code:       "unknown_error",
				Message:    string(respBody),
			}
		}
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

func documentURLPath(path string) (string, error) {
	collection, document, err := SplitPath(path)
	if err != nil {
		return "", err
	}
	return "/v1/documents/" + url.PathEscape(collection) + "/" + url.PathEscape(document), nil
}

func (c *Client) FetchOnce(ctx context.Context, path string) (*models.Document, error) {
	urlPath, err := documentURLPath(path)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := c.do(ctx, http.MethodGet, urlPath, nil, &snap); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return DecodeDocument(snap.Data)
}

func (c *Client) Overwrite(ctx context.Context, path string, doc *models.Document) error {
	urlPath, err := documentURLPath(path)
	if err != nil {
		return err
	}

	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	return c.do(ctx, http.MethodPut, urlPath, data, nil)
}

// Subscribe keeps a listen stream open until ctx is cancelled, redialing
// whenever the connection drops. Connection failures are logged, not
// returned.
func (c *Client) Subscribe(ctx context.Context, path string, onChange func(*models.Document)) (Subscription, error) {
	urlPath, err := documentURLPath(path)
	if err != nil {
		return nil, err
	}

	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + urlPath + "/listen"

	ctx, cancel := context.WithCancel(ctx)
	sub := &cancelSubscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		c.listen(ctx, wsURL, onChange)
	}()

	return sub, nil
}

func (c *Client) listen(ctx context.Context, wsURL string, onChange func(*models.Document)) {
	delay := c.reconnectDelay
	for {
		err := c.listenOnce(ctx, wsURL, onChange, func() { delay = c.reconnectDelay })
		if ctx.Err() != nil {
			return
		}
		glog.Warningf("[docstore] listen %s dropped: %v (retrying in %s)", wsURL, err, delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (c *Client) listenOnce(ctx context.Context, wsURL string, onChange func(*models.Document), connected func()) error {
	ws, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer ws.Close()
	connected()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			ws.Close()
		case <-stop:
		}
	}()

	glog.Infof("[docstore] listening on %s", wsURL)

	for {
		var snap Snapshot
		if err := ws.ReadJSON(&snap); err != nil {
			return err
		}

		doc, err := DecodeDocument(snap.Data)
		if err != nil {
			glog.Warningf("[docstore] skipping snapshot %s: %v", snap.Revision, err)
			continue
		}

		glog.V(2).Infof("[docstore] snapshot %s rev=%s items=%d", snap.Path, snap.Revision, len(doc.ShoppingList))
		onChange(doc)
	}
}

package toolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SSETransport is a Transport over a server-sent-events stream paired with
// POST-per-call request delivery, the framing used by tool servers that
// speak the SSE flavor of this protocol: the client opens a long-lived GET
// to discover a POST endpoint for messages, then correlates responses
// arriving on the SSE stream back to outstanding calls by request ID.
type SSETransport struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger

	connected atomic.Bool
	nextID    atomic.Int64

	mu       sync.Mutex
	pending  map[int64]chan jsonrpcResponse
	postURL  string
	cancelSSE context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSETransport builds a transport for the given server config. The
// returned transport is not connected until Connect is called.
func NewSSETransport(cfg Config, logger *slog.Logger) *SSETransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SSETransport{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "toolserver.sse_transport", "server", cfg.Name),
		pending: make(map[int64]chan jsonrpcResponse),
	}
}

// Connect opens the SSE stream and waits for the server's "endpoint" event
// announcing the URL subsequent POSTs should target.
func (t *SSETransport) Connect(ctx context.Context) error {
	sseCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(sseCtx, http.MethodGet, t.cfg.URL, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("building SSE request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}

	// The SSE GET stays open for the session's lifetime, so it is sent
	// without the client's overall timeout (which also cuts off the body);
	// ctx bounds the wait for the response headers instead.
	stopOnCtx := context.AfterFunc(ctx, cancel)
	resp, err := (&http.Client{Transport: t.client.Transport}).Do(req)
	stopOnCtx()
	if err != nil {
		cancel()
		return fmt.Errorf("connecting to tool server: %w", err)
	}
	if resp.StatusCode == http.StatusBadGateway {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("tool server returned bad gateway")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("tool server returned status %d", resp.StatusCode)
	}

	endpointCh := make(chan string, 1)
	t.mu.Lock()
	t.cancelSSE = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go t.readLoop(resp.Body, endpointCh)

	select {
	case ep := <-endpointCh:
		t.mu.Lock()
		t.postURL = t.resolvePostURL(ep)
		t.mu.Unlock()
		t.connected.Store(true)
		return nil
	case <-ctx.Done():
		t.Close()
		return ctx.Err()
	case <-time.After(t.client.Timeout):
		t.Close()
		return fmt.Errorf("timed out waiting for tool server endpoint event")
	}
}

func (t *SSETransport) resolvePostURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	base := strings.TrimSuffix(t.cfg.URL, "/sse")
	base = strings.TrimRight(base, "/")
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return base + endpoint
}

// readLoop parses the SSE stream, routing "endpoint" events to endpointCh
// once and "message" events to whichever pending call matches their ID.
func (t *SSETransport) readLoop(body io.ReadCloser, endpointCh chan<- string) {
	defer t.wg.Done()
	defer body.Close()
	defer t.connected.Store(false)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	var dataBuf strings.Builder

	flush := func() {
		defer func() {
			eventName = ""
			dataBuf.Reset()
		}()
		data := dataBuf.String()
		if data == "" {
			return
		}
		switch eventName {
		case "endpoint":
			select {
			case endpointCh <- data:
			default:
			}
		case "message", "":
			var resp jsonrpcResponse
			if err := json.Unmarshal([]byte(data), &resp); err != nil {
				t.logger.Warn("discarding malformed SSE message", "error", err)
				return
			}
			t.mu.Lock()
			ch, ok := t.pending[resp.ID]
			if ok {
				delete(t.pending, resp.ID)
			}
			t.mu.Unlock()
			if ok {
				ch <- resp
			}
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if dataBuf.Len() > 0 {
				dataBuf.WriteByte('\n')
			}
			dataBuf.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	flush()
}

// Call sends a JSON-RPC request to the discovered POST endpoint and blocks
// until the matching response arrives on the SSE stream or ctx is done.
func (t *SSETransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	t.mu.Lock()
	postURL := t.postURL
	t.mu.Unlock()
	if postURL == "" {
		return nil, fmt.Errorf("transport not connected")
	}

	var rawParams json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding params: %w", err)
		}
		rawParams = encoded
	}

	id := t.nextID.Add(1)
	reqBody := jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: rawParams}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	respCh := make(chan jsonrpcResponse, 1)
	t.mu.Lock()
	t.pending[id] = respCh
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("building call request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("posting call: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusBadGateway {
		return nil, fmt.Errorf("tool server returned bad gateway")
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tool server returned status %d", resp.StatusCode)
	}

	select {
	case rpcResp := <-respCh:
		if rpcResp.Error != nil {
			return nil, rpcResp.Error
		}
		return rpcResp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Connected reports the last-known liveness of the SSE stream.
func (t *SSETransport) Connected() bool {
	return t.connected.Load()
}

// Close cancels the SSE read loop and waits for it to exit.
func (t *SSETransport) Close() error {
	t.mu.Lock()
	cancel := t.cancelSSE
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
	t.connected.Store(false)
	return nil
}

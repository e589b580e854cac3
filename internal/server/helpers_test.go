package server

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hooklens/internal/broadcast"
	"hooklens/internal/config"
	"hooklens/internal/history"
	"hooklens/internal/metrics"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Port:              8080,
		ServiceName:       "hooklens",
		InstanceID:        "test",
		HistorySize:       history.DefaultCapacity,
		SubscriberBuffer:  broadcast.DefaultBuffer,
		KeepAliveInterval: 30 * time.Second,
		WriteTimeout:      5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

func newTestHandler(t *testing.T, mutate func(*config.Config)) *Handler {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return NewHandler(
		cfg,
		metrics.New(),
		history.New(cfg.HistorySize),
		broadcast.NewRegistry(cfg.SubscriberBuffer),
		zerolog.Nop(),
	)
}

func newTestServer(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewRouter(h))
	t.Cleanup(ts.Close)
	return ts
}

type ack struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// send 는 ts 로 요청 하나를 보내고 응답 body 까지 읽어 돌려준다.
func send(t *testing.T, ts *httptest.Server, method, path, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func postWebhook(t *testing.T, ts *httptest.Server, path, body string, headers map[string]string) ack {
	t.Helper()
	resp, out := send(t, ts, http.MethodPost, path, body, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var a ack
	require.NoError(t, json.Unmarshal(out, &a))
	return a
}

// ------------------------------------------------------------
// event-stream client
// ------------------------------------------------------------

type streamPayload struct {
	ID        string            `json:"id"`
	Timestamp string            `json:"timestamp"`
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body"`
}

type streamMessage struct {
	Type    string         `json:"type"`
	Payload *streamPayload `json:"payload"`
}

type streamClient struct {
	resp   *http.Response
	frames chan string
	cancel context.CancelFunc
}

func openStream(t *testing.T, baseURL string) *streamClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	c := &streamClient{resp: resp, frames: make(chan string, 256), cancel: cancel}
	go c.readFrames()

	t.Cleanup(c.close)
	return c
}

func (c *streamClient) readFrames() {
	defer close(c.frames)
	br := bufio.NewReader(c.resp.Body)

	var lines []string
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(lines) > 0 {
				c.frames <- strings.Join(lines, "\n")
				lines = lines[:0]
			}
			continue
		}
		lines = append(lines, line)
	}
}

func (c *streamClient) close() {
	c.cancel()
	_ = c.resp.Body.Close()
}

// next 는 다음 프레임 원문을 돌려준다 ("data: {...}" 또는 ": keepalive").
func (c *streamClient) next(t *testing.T, within time.Duration) string {
	t.Helper()
	select {
	case f, ok := <-c.frames:
		require.True(t, ok, "stream closed")
		return f
	case <-time.After(within):
		t.Fatalf("no frame within %s", within)
		return ""
	}
}

func (c *streamClient) nextMessage(t *testing.T, within time.Duration) streamMessage {
	t.Helper()
	frame := c.next(t, within)
	require.True(t, strings.HasPrefix(frame, "data: "), "unexpected frame %q", frame)

	var msg streamMessage
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &msg))
	return msg
}

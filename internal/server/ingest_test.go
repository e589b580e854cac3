package server

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hooklens/internal/clock"
	"hooklens/internal/config"
	"hooklens/internal/model"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestHandleWebhook_AllMethods(t *testing.T) {
	h := newTestHandler(t, nil)
	ts := newTestServer(t, h)

	for _, method := range WebhookMethods {
		t.Run(method, func(t *testing.T) {
			req := require.New(t)

			// When a request is sent with the method
			resp, out := send(t, ts, method, "/webhook", `{"m":"`+method+`"}`, nil)

			// Then it is acknowledged with the stored record id
			req.Equal(http.StatusOK, resp.StatusCode)
			req.Equal("application/json", resp.Header.Get("Content-Type"))
			req.Equal("*", resp.Header.Get("Access-Control-Allow-Origin"))

			var a ack
			req.NoError(json.Unmarshal(out, &a))
			req.Equal("received", a.Status)
			req.NotEmpty(a.ID)

			latest := h.history.Snapshot()[0]
			req.Equal(a.ID, latest.ID)
			req.Equal(method, latest.Method)
			req.Equal(`{"m":"`+method+`"}`, latest.Body)
		})
	}

	require.Equal(t, len(WebhookMethods), h.history.Len())
	require.Equal(t, int64(len(WebhookMethods)), atomic.LoadInt64(&h.metrics.WebhooksReceivedTotal))
}

func TestHandleWebhook_RecordsRequest(t *testing.T) {
	req := require.New(t)
	fixed := time.Date(2026, 10, 17, 9, 30, 5, 0, time.Local)
	h := newTestHandler(t, nil).WithClock(clock.Fixed(fixed))
	ts := newTestServer(t, h)

	// Given a request with a query string and custom headers
	a := postWebhook(t, ts, "/webhook?a=1&b=two", "hello", map[string]string{
		"X-Test":       "1",
		"Content-Type": "text/plain",
	})

	// Then the record keeps the raw target, headers and body
	ev := h.history.Snapshot()[0]
	req.Equal(a.ID, ev.ID)
	req.Equal("/webhook?a=1&b=two", ev.Path)
	req.Equal("2026-10-17 09:30:05", ev.Timestamp)
	req.Equal("hello", ev.Body)

	v, ok := ev.Headers.Get("X-Test")
	req.True(ok)
	req.Equal("1", v)

	req.Equal("Host", ev.Headers[0].Name)
	req.Equal(int64(5), atomic.LoadInt64(&h.metrics.WebhookBodyBytesTotal))
}

func TestHandleWebhook_DuplicateHeaderKeepsLast(t *testing.T) {
	req := require.New(t)
	h := newTestHandler(t, nil)
	ts := newTestServer(t, h)

	r, err := http.NewRequest(http.MethodPost, ts.URL+"/webhook", nil)
	req.NoError(err)
	r.Header.Add("X-Dup", "first")
	r.Header.Add("X-Dup", "second")

	resp, err := ts.Client().Do(r)
	req.NoError(err)
	resp.Body.Close()

	v, ok := h.history.Snapshot()[0].Headers.Get("X-Dup")
	req.True(ok)
	req.Equal("second", v)
}

func TestHandleWebhook_LenientBody(t *testing.T) {
	req := require.New(t)
	h := newTestHandler(t, nil)
	ts := newTestServer(t, h)

	// Given a body that is not valid UTF-8
	postWebhook(t, ts, "/webhook", "ok\xff", nil)

	// Then the bad byte is replaced instead of failing the request
	req.Equal("ok�", h.history.Snapshot()[0].Body)
}

func TestHandleWebhook_EmptyBody(t *testing.T) {
	req := require.New(t)
	h := newTestHandler(t, nil)
	ts := newTestServer(t, h)

	resp, _ := send(t, ts, http.MethodGet, "/webhook", "", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("", h.history.Snapshot()[0].Body)
}

func TestHandleWebhook_MaxBodySizeTruncates(t *testing.T) {
	req := require.New(t)
	h := newTestHandler(t, func(c *config.Config) { c.MaxBodySize = 4 })
	ts := newTestServer(t, h)

	resp, _ := send(t, ts, http.MethodPost, "/webhook", "abcdefgh", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("abcd", h.history.Snapshot()[0].Body)
}

func TestHandleWebhook_HistoryBounded(t *testing.T) {
	req := require.New(t)
	h := newTestHandler(t, nil)
	ts := newTestServer(t, h)

	for i := 0; i < 103; i++ {
		postWebhook(t, ts, "/webhook", "x", nil)
	}

	req.Equal(100, h.history.Len())
	req.Equal(int64(3), atomic.LoadInt64(&h.metrics.HistoryEvictedTotal))
}

func TestHandleWebhook_SlowSubscriberDoesNotBlock(t *testing.T) {
	req := require.New(t)
	h := newTestHandler(t, func(c *config.Config) { c.SubscriberBuffer = 1 })
	ts := newTestServer(t, h)

	// Given a subscriber that never reads
	sub := h.registry.Register()
	defer h.registry.Unregister(sub)

	// When more webhooks arrive than its buffer holds
	postWebhook(t, ts, "/webhook", "1", nil)
	postWebhook(t, ts, "/webhook", "2", nil)
	postWebhook(t, ts, "/webhook", "3", nil)

	// Then ingestion still succeeds and the overflow is counted
	req.Equal(3, h.history.Len())
	req.Equal(int64(2), atomic.LoadInt64(&h.metrics.BroadcastDroppedTotal))
	req.Len(sub.C, 1)
}

type fakeArchiver struct {
	mu     sync.Mutex
	events []model.Event
}

func (f *fakeArchiver) Enqueue(ev model.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return true
}

func TestHandleWebhook_ForwardsToArchive(t *testing.T) {
	req := require.New(t)
	arch := &fakeArchiver{}
	h := newTestHandler(t, nil).WithArchive(arch)
	ts := newTestServer(t, h)

	a := postWebhook(t, ts, "/webhook", "archived", nil)

	arch.mu.Lock()
	defer arch.mu.Unlock()
	req.Len(arch.events, 1)
	req.Equal(a.ID, arch.events[0].ID)
	req.Equal("archived", arch.events[0].Body)
}

func TestDecodeText(t *testing.T) {
	req := require.New(t)
	req.Equal("plain", decodeText([]byte("plain")))
	req.Equal("한글", decodeText([]byte("한글")))
	req.Equal("�a", decodeText([]byte{0xff, 'a'}))
}

func TestHandleWebhook_SubscribersSeeRecordedOrder(t *testing.T) {
	req := require.New(t)
	const workers, perWorker = 50, 50

	h := newTestHandler(t, func(c *config.Config) {
		c.HistorySize = workers * perWorker
		c.SubscriberBuffer = workers * perWorker
	})
	sub := h.registry.Register()

	// When many senders post at once
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				body := strconv.Itoa(w) + "-" + strconv.Itoa(i)
				h.HandleWebhook(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
			}
		}(w)
	}
	wg.Wait()

	// Then the live order equals the recorded order (snapshot is newest-first)
	snap := h.history.Snapshot()
	req.Len(snap, workers*perWorker)
	req.Len(sub.C, workers*perWorker)

	for i := len(snap) - 1; i >= 0; i-- {
		msg := <-sub.C
		req.Equal(snap[i].ID, msg.Payload.ID)
	}
}

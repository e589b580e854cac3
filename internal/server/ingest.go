package server

import (
	"io"
	"net/http"
	"sync/atomic"

	"hooklens/internal/clock"
	"hooklens/internal/model"
	"hooklens/internal/pool"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
)

type ackResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// HandleWebhook
//
// /webhook 으로 들어온 모든 요청(GET/POST/PUT/DELETE/PATCH)을 Event 로 기록한다.
//
// 순서:
//  1. body 읽기 (pool 버퍼, MaxBodySize 초과분은 잘라냄)
//  2. lenient UTF-8 디코딩 (깨진 바이트 → U+FFFD)
//  3. Event 생성 → History.Record → Registry.Broadcast (ingestMu 아래 한 묶음)
//  4. 아카이브 큐에 non-blocking push (가득 차면 drop)
//  5. 200 {"status":"received","id":...}
//
// body 를 못 읽어도 에러 응답은 없다. 빈 body 로 기록한다.
// Broadcast 는 구독자 채널에 try-push 만 하므로 느린 뷰어가 이 경로를 막지 못한다.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	raw, body := h.readBody(r)

	ev := model.Event{
		ID:        uuid.NewString(),
		Timestamp: clock.Format(h.clock.Now()),
		Method:    r.Method,
		Path:      requestPath(r),
		Headers:   model.NewHeaders(r.Header, r.Host),
		Body:      body,
	}

	h.ingestMu.Lock()
	h.history.Record(ev)
	dropped := h.registry.Broadcast(model.Webhook(ev))
	h.ingestMu.Unlock()

	atomic.AddInt64(&h.metrics.WebhooksReceivedTotal, 1)
	atomic.AddInt64(&h.metrics.WebhookBodyBytesTotal, int64(len(raw)))

	if dropped > 0 {
		atomic.AddInt64(&h.metrics.BroadcastDroppedTotal, int64(dropped))
		h.log.Warn().Int("subscribers", dropped).Str("id", ev.ID).Msg("slow subscriber, webhook dropped")
	}

	if h.archive != nil {
		h.archive.Enqueue(ev)
	}

	logLine := h.log.Info().
		Str("method", ev.Method).
		Str("path", ev.Path).
		Str("id", ev.ID).
		Str("ip", clientIP(r)).
		Int("bytes", len(raw))
	if len(raw) > 0 {
		logLine = logLine.Str("mime", mimetype.Detect(raw).String())
	}
	logLine.Msg("webhook")

	_ = h.writeDeadline(http.NewResponseController(w))
	if err := writeJSON(w, http.StatusOK, ackResponse{Status: "received", ID: ev.ID}); err != nil {
		h.log.Debug().Err(err).Str("id", ev.ID).Msg("write ack")
	}
}

// readBody 는 원본 바이트(로그/메트릭용 복사본)와 디코딩된 텍스트를 돌려준다.
// 읽기 실패는 빈 body 로 취급한다.
func (h *Handler) readBody(r *http.Request) ([]byte, string) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, ""
	}

	buf := pool.GetBody()
	defer pool.PutBody(buf)

	var src io.Reader = r.Body
	if h.cfg.MaxBodySize > 0 {
		src = io.LimitReader(r.Body, h.cfg.MaxBodySize)
	}
	if _, err := io.Copy(buf, src); err != nil {
		h.log.Debug().Err(err).Msg("read webhook body")
		return nil, ""
	}

	raw := make([]byte, buf.Len())
	copy(raw, buf.Bytes())
	return raw, decodeText(raw)
}

// decodeText 는 UTF-8 로 해석하고, 잘못된 바이트는 U+FFFD 로 바꾼다.
func decodeText(b []byte) string {
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// requestPath 는 요청 라인의 target 을 가공 없이 돌려준다 (query string 포함).
func requestPath(r *http.Request) string {
	if r.RequestURI != "" {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}

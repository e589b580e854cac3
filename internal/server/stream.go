package server

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"hooklens/internal/broadcast"
	"hooklens/internal/model"
	"hooklens/internal/pool"

	json "github.com/goccy/go-json"
)

var keepaliveFrame = []byte(": keepalive\n\n")

// HandleEvents
//
// 뷰어 하나당 하나씩 열리는 event-stream.
//
//	CONNECTING → STREAMING ⇄ KEEPALIVE → CLOSED
//
//  1. 구독 등록 (snapshot 보다 먼저. 사이에 들어온 이벤트는 중복될 수는 있어도 빠지지 않는다)
//  2. {"type":"connected"} 1회
//  3. History snapshot 을 snapshot 순서(최신 → 과거) 그대로 재생
//  4. 채널 대기. KeepAliveInterval 동안 아무것도 안 보냈으면 ": keepalive" 주석 프레임
//
// 종료 조건: 쓰기/flush 실패, 요청 context 취소 (peer 종료 또는 서버 shutdown).
// 어느 경로로 나가든 defer 로 Unregister 가 정확히 한 번 실행된다.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")

	sub := h.registry.Register()
	defer h.unsubscribe(sub)

	atomic.AddInt64(&h.metrics.StreamClientsCurrent, 1)
	atomic.AddInt64(&h.metrics.StreamClientsTotal, 1)
	h.log.Debug().Str("subscriber", sub.ID).Int("subscribers", h.registry.Count()).Msg("stream connected")

	s := &eventStream{h: h, w: w, rc: http.NewResponseController(w)}
	w.WriteHeader(http.StatusOK)

	if err := s.send(model.Connected()); err != nil {
		return
	}
	for _, ev := range h.history.Snapshot() {
		if err := s.send(model.Webhook(ev)); err != nil {
			return
		}
	}

	idle := h.cfg.KeepAliveInterval
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case msg := <-sub.C:
			if err := s.send(msg); err != nil {
				return
			}
			// 마지막 프레임 기준으로 idle 시간을 다시 센다
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idle)

		case <-timer.C:
			if err := s.write(keepaliveFrame); err != nil {
				return
			}
			atomic.AddInt64(&h.metrics.StreamKeepalivesTotal, 1)
			timer.Reset(idle)
		}
	}
}

func (h *Handler) unsubscribe(sub *broadcast.Subscription) {
	if !h.registry.Unregister(sub) {
		return
	}
	atomic.AddInt64(&h.metrics.StreamClientsCurrent, -1)
	h.log.Debug().Str("subscriber", sub.ID).Int("subscribers", h.registry.Count()).Msg("stream closed")
}

// eventStream 은 프레임 단위 쓰기 + flush 를 담당한다.
// 프레임마다 새 write deadline 을 걸고, 다 쓰면 해제한다.
// idle 구간에는 deadline 이 없으므로 keep-alive 가 만료된 deadline 에 걸리지 않는다.
type eventStream struct {
	h  *Handler
	w  http.ResponseWriter
	rc *http.ResponseController
}

// send 는 msg 를 "data: <json>\n\n" 한 프레임으로 쓴다.
func (s *eventStream) send(msg model.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		// Event 는 string 필드뿐이라 사실상 발생하지 않는다. 해당 프레임만 건너뛴다.
		s.h.log.Error().Err(err).Str("type", msg.Type).Msg("encode stream message")
		return nil
	}

	buf := pool.GetBody()
	defer pool.PutBody(buf)
	buf.Grow(len(payload) + 8)
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")

	if err := s.write(buf.Bytes()); err != nil {
		return err
	}
	atomic.AddInt64(&s.h.metrics.StreamMessagesSentTotal, 1)
	return nil
}

func (s *eventStream) write(frame []byte) error {
	if err := s.h.writeDeadline(s.rc); err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		return err
	}
	return s.clearDeadline()
}

func (s *eventStream) clearDeadline() error {
	if err := s.rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

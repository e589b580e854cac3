package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics 는 서버 상태를 나타내는 카운터 모음이다.
// 모든 필드는 sync/atomic 으로만 읽고 쓴다.
type Metrics struct {
	// ======================
	// 수집(ingestion) 지표
	// ======================

	// WebhooksReceivedTotal
	// - /webhook 으로 들어와 History 에 기록된 요청 수.
	WebhooksReceivedTotal int64

	// WebhookBodyBytesTotal
	// - 기록된 body 의 누적 바이트 수 (디코딩 전 원본 기준).
	WebhookBodyBytesTotal int64

	// HistoryEvictedTotal
	// - History 용량 초과로 밀려난 이벤트 수.
	HistoryEvictedTotal int64

	// ======================
	// 스트리밍 지표
	// ======================

	// StreamClientsCurrent
	// - 현재 연결된 /events 구독자 수 (gauge).
	StreamClientsCurrent int64

	// StreamClientsTotal
	// - 지금까지 연결된 /events 구독자 수.
	StreamClientsTotal int64

	// StreamMessagesSentTotal
	// - 구독자에게 실제로 쓴 data 프레임 수 (connected / replay / live 포함).
	StreamMessagesSentTotal int64

	// StreamKeepalivesTotal
	// - idle 구간에 보낸 keep-alive 주석 프레임 수.
	StreamKeepalivesTotal int64

	// BroadcastDroppedTotal
	// - 구독자 채널이 가득 차서 버려진 (구독자, 메시지) 쌍의 수.
	// - 이 값이 증가하면 어떤 뷰어가 따라오지 못하고 있다는 뜻.
	BroadcastDroppedTotal int64

	// ======================
	// 아카이브(S3) 지표
	// ======================

	// ArchiveEnqueuedTotal / ArchiveDroppedTotal
	// - 아카이브 큐에 들어간 / 큐가 가득 차서 버린 이벤트 수.
	ArchiveEnqueuedTotal int64
	ArchiveDroppedTotal  int64

	// S3EventsStoredTotal
	// - S3 에 저장 완료된 이벤트 수 (배치 수가 아니라 이벤트 수).
	S3EventsStoredTotal int64

	// S3PutErrorsTotal
	// - 실패한 PutObject 시도(attempt) 수. 재시도마다 증가한다.
	S3PutErrorsTotal int64

	// S3EventsLostTotal
	// - 재시도를 모두 소진해 버려진 이벤트 수.
	S3EventsLostTotal int64

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{}
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(collectors.NewGoCollector())
	for _, c := range m.counterViews() {
		m.registry.MustRegister(c)
	}
	return m
}

// Registry 는 promhttp 로 노출할 전용 레지스트리.
// 전역 DefaultRegisterer 를 쓰지 않으므로 테스트에서 New() 를 여러 번 불러도 충돌하지 않는다.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) counterViews() []prometheus.Collector {
	counter := func(name, help string, v *int64) prometheus.Collector {
		return prometheus.NewCounterFunc(
			prometheus.CounterOpts{Namespace: "hooklens", Name: name, Help: help},
			func() float64 { return float64(atomic.LoadInt64(v)) },
		)
	}
	gauge := func(name, help string, v *int64) prometheus.Collector {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: "hooklens", Name: name, Help: help},
			func() float64 { return float64(atomic.LoadInt64(v)) },
		)
	}

	return []prometheus.Collector{
		counter("webhooks_received_total", "Webhooks recorded into history", &m.WebhooksReceivedTotal),
		counter("webhook_body_bytes_total", "Raw body bytes of recorded webhooks", &m.WebhookBodyBytesTotal),
		counter("history_evicted_total", "Events evicted from the bounded history", &m.HistoryEvictedTotal),
		gauge("stream_clients", "Currently connected event-stream clients", &m.StreamClientsCurrent),
		counter("stream_clients_total", "Event-stream clients ever connected", &m.StreamClientsTotal),
		counter("stream_messages_sent_total", "Data frames written to event-stream clients", &m.StreamMessagesSentTotal),
		counter("stream_keepalives_total", "Keep-alive frames written to idle clients", &m.StreamKeepalivesTotal),
		counter("broadcast_dropped_total", "Messages dropped for subscribers with a full buffer", &m.BroadcastDroppedTotal),
		counter("archive_enqueued_total", "Events queued for S3 archiving", &m.ArchiveEnqueuedTotal),
		counter("archive_dropped_total", "Events dropped because the archive queue was full", &m.ArchiveDroppedTotal),
		counter("s3_events_stored_total", "Events stored in S3", &m.S3EventsStoredTotal),
		counter("s3_put_errors_total", "Failed S3 PutObject attempts", &m.S3PutErrorsTotal),
		counter("s3_events_lost_total", "Events lost after exhausting S3 retries", &m.S3EventsLostTotal),
	}
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(512)

	fmt.Fprintf(&sb, "webhooks_received_total=%d\n", atomic.LoadInt64(&m.WebhooksReceivedTotal))
	fmt.Fprintf(&sb, "webhook_body_bytes_total=%d\n", atomic.LoadInt64(&m.WebhookBodyBytesTotal))
	fmt.Fprintf(&sb, "history_evicted_total=%d\n", atomic.LoadInt64(&m.HistoryEvictedTotal))

	fmt.Fprintf(&sb, "stream_clients=%d\n", atomic.LoadInt64(&m.StreamClientsCurrent))
	fmt.Fprintf(&sb, "stream_clients_total=%d\n", atomic.LoadInt64(&m.StreamClientsTotal))
	fmt.Fprintf(&sb, "stream_messages_sent_total=%d\n", atomic.LoadInt64(&m.StreamMessagesSentTotal))
	fmt.Fprintf(&sb, "stream_keepalives_total=%d\n", atomic.LoadInt64(&m.StreamKeepalivesTotal))
	fmt.Fprintf(&sb, "broadcast_dropped_total=%d\n", atomic.LoadInt64(&m.BroadcastDroppedTotal))

	fmt.Fprintf(&sb, "archive_enqueued_total=%d\n", atomic.LoadInt64(&m.ArchiveEnqueuedTotal))
	fmt.Fprintf(&sb, "archive_dropped_total=%d\n", atomic.LoadInt64(&m.ArchiveDroppedTotal))
	fmt.Fprintf(&sb, "s3_events_stored_total=%d\n", atomic.LoadInt64(&m.S3EventsStoredTotal))
	fmt.Fprintf(&sb, "s3_put_errors_total=%d\n", atomic.LoadInt64(&m.S3PutErrorsTotal))
	fmt.Fprintf(&sb, "s3_events_lost_total=%d\n", atomic.LoadInt64(&m.S3EventsLostTotal))

	return sb.String()
}

package archive

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"hooklens/internal/config"
	"hooklens/internal/metrics"
	"hooklens/internal/model"

	"github.com/rs/zerolog"
)

// Uploader 는 완성된 배치 object 하나를 저장소에 올린다.
// 운영에서는 S3Uploader, 테스트에서는 fake 를 쓴다.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) error
}

// Manager 는 기록된 webhook 을 모아 S3 에 아카이브하는 파이프라인이다.
//
// 흐름:
//   - Enqueue: 요청 처리 goroutine → EventCh (non-blocking, 가득 차면 drop)
//   - collectLoop: BatchSize 도달 또는 FlushInterval 만료 시 uploadCh 로 전달
//   - uploadLoop: gzip+JSONL 인코딩 후 Uploader 호출
//
// 아카이브는 부가 기능이다. 큐가 밀려도 수집/스트리밍 경로는 절대 막히지 않는다.
type Manager struct {
	prefix        string
	instanceID    string
	batchSize     int
	flushInterval time.Duration

	metrics  *metrics.Metrics
	uploader Uploader
	encoder  *Encoder
	log      zerolog.Logger
	now      func() time.Time

	EventCh  chan model.Event
	uploadCh chan []model.Event
	stopCh   chan struct{}

	// gate 는 Enqueue 의 stopped 확인 + send 를 Shutdown 과 직렬화한다.
	// Shutdown 이 stopped 를 세운 뒤에는 EventCh 로 들어오는 이벤트가 없다.
	gate    sync.RWMutex
	stopped bool

	// 업로드용 컨텍스트. Shutdown 의 deadline 을 넘겼을 때만 취소된다.
	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewManager(cfg config.Config, uploader Uploader, m *metrics.Metrics, log zerolog.Logger) *Manager {
	return &Manager{
		prefix:        cfg.ArchivePrefix,
		instanceID:    cfg.InstanceID,
		batchSize:     cfg.ArchiveBatchSize,
		flushInterval: cfg.ArchiveFlushInterval,
		metrics:       m,
		uploader:      uploader,
		encoder:       NewEncoder(),
		log:           log.With().Str("component", "archive").Logger(),
		now:           time.Now,
		EventCh:       make(chan model.Event, cfg.ArchiveQueue),
		uploadCh:      make(chan []model.Event, 4),
		stopCh:        make(chan struct{}),
	}
}

func (m *Manager) Start() {
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(2)
	go m.collectLoop()
	go m.uploadLoop()
}

// Enqueue 는 이벤트를 아카이브 큐에 넣는다. 큐가 가득 찼거나 종료 중이면 false.
//
// EventCh 는 닫지 않는다. 요청 goroutine 이 Shutdown 과 겹쳐도 closed channel 에
// send 하는 panic 이 날 수 없다.
func (m *Manager) Enqueue(ev model.Event) bool {
	m.gate.RLock()
	defer m.gate.RUnlock()

	if m.stopped {
		atomic.AddInt64(&m.metrics.ArchiveDroppedTotal, 1)
		return false
	}
	select {
	case m.EventCh <- ev:
		atomic.AddInt64(&m.metrics.ArchiveEnqueuedTotal, 1)
		return true
	default:
		atomic.AddInt64(&m.metrics.ArchiveDroppedTotal, 1)
		return false
	}
}

// Shutdown 은 큐에 남은 이벤트까지 업로드를 시도한 뒤 반환한다.
// ctx 가 먼저 끝나면 진행 중인 업로드를 취소하고 goroutine 종료만 기다린다.
// 업로드되지 못하고 큐에 남은 이벤트는 S3EventsLostTotal 로 센다.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.gate.Lock()
		m.stopped = true
		m.gate.Unlock()
		close(m.stopCh)
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		m.stop()
		<-done
		err = ctx.Err()
	}
	m.stop()
	m.dropRemaining()
	return err
}

// dropRemaining 은 collectLoop 가 가져가지 못한 이벤트를 비우고 유실로 센다.
// (Start 없이 Shutdown 한 경우)
func (m *Manager) dropRemaining() {
	var n int64
	for {
		select {
		case <-m.EventCh:
			n++
		default:
			if n > 0 {
				atomic.AddInt64(&m.metrics.S3EventsLostTotal, n)
				m.log.Warn().Int64("events", n).Msg("archive queue dropped at shutdown")
			}
			return
		}
	}
}

func (m *Manager) stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Manager) collectLoop() {
	defer m.wg.Done()
	defer close(m.uploadCh)

	batch := make([]model.Event, 0, m.batchSize)
	timer := time.NewTimer(m.flushInterval)
	defer timer.Stop()

	reset := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.flushInterval)
	}

	flush := func() {
		if len(batch) == 0 {
			return
		}
		m.uploadCh <- batch
		// 새 slice 로 교체 (uploadLoop 가 아직 읽는 중일 수 있다)
		batch = make([]model.Event, 0, m.batchSize)
	}

	for {
		select {
		case <-m.stopCh:
			// 이미 큐에 들어온 것까지는 배치로 묶어 내보낸다
			for {
				select {
				case ev := <-m.EventCh:
					batch = append(batch, ev)
					if len(batch) >= m.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}

		case ev := <-m.EventCh:
			batch = append(batch, ev)
			if len(batch) >= m.batchSize {
				flush()
				reset()
			}

		case <-timer.C:
			flush()
			timer.Reset(m.flushInterval)
		}
	}
}

func (m *Manager) uploadLoop() {
	defer m.wg.Done()

	for batch := range m.uploadCh {
		m.process(m.ctx, batch)
	}
	m.log.Debug().Msg("uploader exiting")
}

// process 는 배치 하나를 인코딩해서 올린다.
// 재시도를 모두 소진하면 이벤트는 버려지고 S3EventsLostTotal 로만 남는다.
func (m *Manager) process(ctx context.Context, batch []model.Event) {
	n := int64(len(batch))

	data, err := m.encoder.EncodeJSONLGZ(batch)
	if err != nil {
		atomic.AddInt64(&m.metrics.S3EventsLostTotal, n)
		m.log.Error().Err(err).Int64("events", n).Msg("encode archive batch")
		return
	}

	now := m.now()
	key := BuildKey(m.prefix, now, NewFilename(m.instanceID, now))

	if err := m.uploader.Upload(ctx, key, data); err != nil {
		atomic.AddInt64(&m.metrics.S3EventsLostTotal, n)
		m.log.Error().Err(err).Str("key", key).Int64("events", n).Msg("archive upload failed")
		return
	}

	atomic.AddInt64(&m.metrics.S3EventsStoredTotal, n)
	m.log.Debug().Str("key", key).Int64("events", n).Int("bytes", len(data)).Msg("archived batch")
}

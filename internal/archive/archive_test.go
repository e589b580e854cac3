package archive

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hooklens/internal/config"
	"hooklens/internal/metrics"
	"hooklens/internal/mocks"
	"hooklens/internal/model"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func sampleEvents(n int) []model.Event {
	out := make([]model.Event, n)
	for i := range out {
		out[i] = model.Event{
			ID:        "id-" + string(rune('a'+i)),
			Timestamp: "2026-10-17 09:00:00",
			Method:    "POST",
			Path:      "/webhook",
			Headers:   model.Headers{{Name: "Content-Type", Value: "application/json"}},
			Body:      `{"n":1}`,
		}
	}
	return out
}

func decodeJSONLGZ(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer zr.Close()

	var rows []map[string]any
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		var row map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &row))
		rows = append(rows, row)
	}
	require.NoError(t, sc.Err())
	return rows
}

func TestEncoder_JSONLGZ(t *testing.T) {
	req := require.New(t)

	// Given three recorded events
	events := sampleEvents(3)

	// When they are encoded
	data, err := NewEncoder().EncodeJSONLGZ(events)
	req.NoError(err)

	// Then each one is a JSON line with the public event shape
	rows := decodeJSONLGZ(t, data)
	req.Len(rows, 3)
	req.Equal("id-a", rows[0]["id"])
	req.Equal("POST", rows[0]["method"])
	req.Equal(map[string]any{"Content-Type": "application/json"}, rows[0]["headers"])
}

func TestEncoder_EmptyBatchIsValidGzip(t *testing.T) {
	data, err := NewEncoder().EncodeJSONLGZ(nil)
	require.NoError(t, err)

	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Empty(t, raw)
}

func TestNaming_KeyLayout(t *testing.T) {
	req := require.New(t)
	now := time.Date(2026, 10, 17, 9, 5, 0, 0, time.UTC)

	name := NewFilename("laptop", now)
	req.Regexp(`^\d+_laptop_\d{6}\.jsonl\.gz$`, name)

	key := BuildKey("hooklens", now, name)
	req.Equal("hooklens/dt=2026-10-17/hr=09/"+name, key)
}

func TestNaming_CounterIsUnique(t *testing.T) {
	now := time.Now()
	require.NotEqual(t, NewFilename("x", now), NewFilename("x", now))
}

// ------------------------------------------------------------
// S3Uploader
// ------------------------------------------------------------

func testConfig() config.Config {
	return config.Config{
		InstanceID:           "test",
		ArchiveBucket:        "bucket",
		ArchivePrefix:        "hooklens",
		AWSRegion:            "us-east-1",
		ArchiveQueue:         16,
		ArchiveBatchSize:     2,
		ArchiveFlushInterval: time.Hour,
		S3Timeout:            time.Second,
		S3AppRetries:         3,
	}
}

func newTestUploader(putter ObjectPutter, m *metrics.Metrics) *S3Uploader {
	u := NewS3UploaderWithClient(putter, testConfig(), m)
	u.backoff = time.Millisecond
	u.maxBackoff = 2 * time.Millisecond
	return u
}

func TestS3Uploader_Upload(t *testing.T) {
	t.Run("Success on first attempt", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		putter := mocks.NewMockObjectPutter(ctrl)
		m := metrics.New()

		putter.EXPECT().PutObject(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
				req.Equal("bucket", *in.Bucket)
				req.Equal("k", *in.Key)
				req.Equal("gzip", *in.ContentEncoding)
				req.Equal(int64(3), *in.ContentLength)
				return &s3.PutObjectOutput{}, nil
			})

		err := newTestUploader(putter, m).Upload(context.Background(), "k", []byte("abc"))
		req.NoError(err)
		req.Zero(atomic.LoadInt64(&m.S3PutErrorsTotal))
	})

	t.Run("Retries then succeeds", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		putter := mocks.NewMockObjectPutter(ctrl)
		m := metrics.New()

		gomock.InOrder(
			putter.EXPECT().PutObject(gomock.Any(), gomock.Any()).Return(nil, errors.New("slow down")).Times(2),
			putter.EXPECT().PutObject(gomock.Any(), gomock.Any()).Return(&s3.PutObjectOutput{}, nil),
		)

		err := newTestUploader(putter, m).Upload(context.Background(), "k", []byte("abc"))
		req.NoError(err)
		req.Equal(int64(2), atomic.LoadInt64(&m.S3PutErrorsTotal))
	})

	t.Run("Gives up after all attempts", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		putter := mocks.NewMockObjectPutter(ctrl)
		m := metrics.New()

		putter.EXPECT().PutObject(gomock.Any(), gomock.Any()).Return(nil, errors.New("denied")).Times(3)

		err := newTestUploader(putter, m).Upload(context.Background(), "k", []byte("abc"))
		req.Error(err)
		req.Contains(err.Error(), "after 3 attempts")
		req.Equal(int64(3), atomic.LoadInt64(&m.S3PutErrorsTotal))
	})

	t.Run("Cancelled context stops before calling S3", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		putter := mocks.NewMockObjectPutter(ctrl)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := newTestUploader(putter, metrics.New()).Upload(ctx, "k", []byte("abc"))
		require.ErrorIs(t, err, context.Canceled)
	})
}

// ------------------------------------------------------------
// Manager
// ------------------------------------------------------------

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
	rows int
	err  error
	t    *testing.T
}

func (f *fakeUploader) Upload(_ context.Context, key string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.rows += len(decodeJSONLGZ(f.t, body))
	return nil
}

func (f *fakeUploader) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...), f.rows
}

func TestManager_BatchesBySize(t *testing.T) {
	req := require.New(t)
	up := &fakeUploader{t: t}
	m := metrics.New()

	mgr := NewManager(testConfig(), up, m, zerolog.Nop())
	mgr.Start()

	// Given a batch size of 2, when 4 events are enqueued
	for _, ev := range sampleEvents(4) {
		req.True(mgr.Enqueue(ev))
	}

	// Then two objects are written without waiting for the flush interval
	req.Eventually(func() bool {
		keys, _ := up.snapshot()
		return len(keys) == 2
	}, 2*time.Second, 10*time.Millisecond)

	req.NoError(mgr.Shutdown(context.Background()))
	_, rows := up.snapshot()
	req.Equal(4, rows)
	req.Equal(int64(4), atomic.LoadInt64(&m.S3EventsStoredTotal))
	req.Equal(int64(4), atomic.LoadInt64(&m.ArchiveEnqueuedTotal))
}

func TestManager_FlushesOnInterval(t *testing.T) {
	req := require.New(t)
	up := &fakeUploader{t: t}

	cfg := testConfig()
	cfg.ArchiveBatchSize = 100
	cfg.ArchiveFlushInterval = 20 * time.Millisecond

	mgr := NewManager(cfg, up, metrics.New(), zerolog.Nop())
	mgr.Start()
	defer func() { _ = mgr.Shutdown(context.Background()) }()

	req.True(mgr.Enqueue(sampleEvents(1)[0]))

	req.Eventually(func() bool {
		_, rows := up.snapshot()
		return rows == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_ShutdownFlushesPending(t *testing.T) {
	req := require.New(t)
	up := &fakeUploader{t: t}

	cfg := testConfig()
	cfg.ArchiveBatchSize = 100

	mgr := NewManager(cfg, up, metrics.New(), zerolog.Nop())
	mgr.Start()

	for _, ev := range sampleEvents(3) {
		mgr.Enqueue(ev)
	}
	req.NoError(mgr.Shutdown(context.Background()))

	keys, rows := up.snapshot()
	req.Len(keys, 1)
	req.Equal(3, rows)

	// enqueue after shutdown is refused, never panics
	req.False(mgr.Enqueue(sampleEvents(1)[0]))
}

func TestManager_QueueFullDrops(t *testing.T) {
	req := require.New(t)
	m := metrics.New()

	cfg := testConfig()
	cfg.ArchiveQueue = 1

	// not started: nothing drains the queue
	mgr := NewManager(cfg, &fakeUploader{t: t}, m, zerolog.Nop())

	req.True(mgr.Enqueue(sampleEvents(1)[0]))
	req.False(mgr.Enqueue(sampleEvents(1)[0]))
	req.Equal(int64(1), atomic.LoadInt64(&m.ArchiveDroppedTotal))
}

func TestManager_UploadFailureCountsLostEvents(t *testing.T) {
	req := require.New(t)
	m := metrics.New()
	up := &fakeUploader{t: t, err: errors.New("boom")}

	mgr := NewManager(testConfig(), up, m, zerolog.Nop())
	mgr.Start()

	for _, ev := range sampleEvents(2) {
		mgr.Enqueue(ev)
	}
	req.NoError(mgr.Shutdown(context.Background()))
	req.Equal(int64(2), atomic.LoadInt64(&m.S3EventsLostTotal))
	req.Zero(atomic.LoadInt64(&m.S3EventsStoredTotal))
}

func TestManager_ShutdownCountsUncollectedAsLost(t *testing.T) {
	req := require.New(t)
	m := metrics.New()
	up := &fakeUploader{t: t}

	// Given events queued on a manager whose loops never ran
	mgr := NewManager(testConfig(), up, m, zerolog.Nop())
	for _, ev := range sampleEvents(2) {
		req.True(mgr.Enqueue(ev))
	}

	// When it shuts down
	req.NoError(mgr.Shutdown(context.Background()))

	// Then nothing is uploaded and every queued event is accounted as lost
	keys, _ := up.snapshot()
	req.Empty(keys)
	req.Equal(int64(2), atomic.LoadInt64(&m.S3EventsLostTotal))
}

func TestManager_EnqueueRacingShutdownIsAccounted(t *testing.T) {
	req := require.New(t)
	m := metrics.New()
	up := &fakeUploader{t: t}

	cfg := testConfig()
	cfg.ArchiveQueue = 4096
	mgr := NewManager(cfg, up, m, zerolog.Nop())
	mgr.Start()

	// Given producers enqueueing while the manager shuts down
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, ev := range sampleEvents(20) {
				mgr.Enqueue(ev)
			}
		}()
	}
	req.NoError(mgr.Shutdown(context.Background()))
	wg.Wait()

	// Then every accepted event ends up stored or lost
	_, rows := up.snapshot()
	enqueued := atomic.LoadInt64(&m.ArchiveEnqueuedTotal)
	req.Equal(enqueued, atomic.LoadInt64(&m.S3EventsStoredTotal)+atomic.LoadInt64(&m.S3EventsLostTotal))
	req.Equal(int64(rows), atomic.LoadInt64(&m.S3EventsStoredTotal))
	req.Equal(int64(8*20), enqueued+atomic.LoadInt64(&m.ArchiveDroppedTotal))
}

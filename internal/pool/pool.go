package pool

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// 요청 body 는 webhook 마다, gzip 결과 버퍼와 writer 는 export / 아카이브 배치마다 필요하다.
// 할당을 줄이기 위해 재사용한다.
//
// Event 는 History / 구독자 / 아카이브가 공유하는 불변 값이라 풀링 대상이 아니다.

// MaxBufferCap 보다 커진 버퍼는 풀에 되돌리지 않고 GC 에 맡긴다.
// 큰 webhook 하나 때문에 메모리를 계속 쥐고 있지 않도록 한다.
const MaxBufferCap = 1 << 20

// Buffers 는 용량 상한이 있는 *bytes.Buffer 풀.
type Buffers struct {
	p      sync.Pool
	maxCap int
}

func NewBuffers(initialCap, maxCap int) *Buffers {
	b := &Buffers{maxCap: maxCap}
	b.p.New = func() any {
		return bytes.NewBuffer(make([]byte, 0, initialCap))
	}
	return b
}

// Get 은 항상 비어 있는 버퍼를 돌려준다.
func (b *Buffers) Get() *bytes.Buffer {
	buf := b.p.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func (b *Buffers) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > b.maxCap {
		return
	}
	buf.Reset()
	b.p.Put(buf)
}

var (
	body   = NewBuffers(4<<10, MaxBufferCap)  // 요청 body
	output = NewBuffers(64<<10, MaxBufferCap) // gzip 결과 (History 100건 기준)

	gzipWriters = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
)

func GetBody() *bytes.Buffer { return body.Get() }

func PutBody(buf *bytes.Buffer) { body.Put(buf) }

func GetBuffer() *bytes.Buffer { return output.Get() }

func PutBuffer(buf *bytes.Buffer) { output.Put(buf) }

// GetGzip 은 w 로 쓰도록 Reset 된 gzip.Writer (BestSpeed) 를 꺼낸다.
// 다 쓴 뒤 Close 하고 PutGzip 으로 돌려준다.
func GetGzip(w io.Writer) *gzip.Writer {
	gz := gzipWriters.Get().(*gzip.Writer)
	gz.Reset(w)
	return gz
}

func PutGzip(gz *gzip.Writer) {
	gz.Reset(io.Discard)
	gzipWriters.Put(gz)
}

package archive

import (
	"io"

	"hooklens/internal/model"
	"hooklens/internal/pool"

	json "github.com/goccy/go-json"
)

// Encoder 는 이벤트 목록을 JSONL → gzip 으로 직렬화한다.
// S3 아카이브 배치와 /export 다운로드가 같은 포맷을 쓴다.
//
// 특징:
//   - goccy/go-json 인코더를 gzip writer 에 직결
//   - gzip.Writer + bytes.Buffer 는 pool 에서 재사용
//   - Encode 결과는 새 []byte 로 복사해 호출자에게 소유권을 넘긴다
//     (pool 버퍼를 그대로 넘기면 재사용 시 데이터가 오염된다)
type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// EncodeJSONLGZ 는 events 를 한 줄에 하나씩 JSON 으로 쓰고 gzip 으로 압축한 결과를 돌려준다.
func (e *Encoder) EncodeJSONLGZ(events []model.Event) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if err := e.WriteJSONLGZ(buf, events); err != nil {
		return nil, err
	}

	raw := buf.Bytes()
	data := make([]byte, len(raw))
	copy(data, raw)
	return data, nil
}

// WriteJSONLGZ 는 압축 스트림을 w 로 바로 흘려보낸다.
// Close 까지 끝내야 gzip footer 가 써지므로, 에러가 나도 writer 는 항상 pool 로 돌려준다.
func (e *Encoder) WriteJSONLGZ(w io.Writer, events []model.Event) error {
	gz := pool.GetGzip(w)
	defer pool.PutGzip(gz)

	enc := json.NewEncoder(gz)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			_ = gz.Close()
			return err
		}
	}
	return gz.Close()
}

// internal/model/event.go
package model

import (
	"bytes"
	"net/http"
	"sort"

	json "github.com/goccy/go-json"
)

// Event
// ------------------------------------------------------------
// /webhook 으로 들어온 요청 하나의 스냅샷.
// 생성 이후에는 절대 수정하지 않는다 (History 에서 제거만 된다).
// History Store, Subscriber 채널, 아카이브 큐가 같은 값을 공유하므로
// Headers 슬라이스도 생성 후에는 읽기 전용으로 취급한다.
type Event struct {
	ID        string  `json:"id"`        // uuid v4
	Timestamp string  `json:"timestamp"` // "YYYY-MM-DD HH:MM:SS" (local, 초 단위)
	Method    string  `json:"method"`    // GET / POST / PUT / DELETE / PATCH
	Path      string  `json:"path"`      // query string 포함, 파싱하지 않은 원문
	Headers   Headers `json:"headers"`   // 이름 → 값 (중복 이름은 마지막 값)
	Body      string  `json:"body"`      // lenient UTF-8 디코딩 결과, 없으면 ""
}

// Header 는 이름/값 한 쌍.
type Header struct {
	Name  string
	Value string
}

// Headers
// ------------------------------------------------------------
// 순서가 있는 헤더 목록. JSON 으로는 목록 순서를 유지한 object 로 직렬화된다.
type Headers []Header

// NewHeaders
//
// net/http 는 헤더를 map 으로 넘겨주기 때문에 wire 상의 도착 순서를 알 수 없다.
// 대신 Host 를 맨 앞에 두고 나머지는 canonical 이름 순으로 정렬해 결정적인 순서를 만든다.
// 같은 이름이 여러 번 오면 마지막 값만 남긴다 (의도된 lossy 동작).
func NewHeaders(h http.Header, host string) Headers {
	names := make([]string, 0, len(h))
	for name, values := range h {
		if len(values) == 0 || name == "Host" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(Headers, 0, len(names)+1)
	if host != "" {
		out = append(out, Header{Name: "Host", Value: host})
	}
	for _, name := range names {
		values := h[name]
		out = append(out, Header{Name: name, Value: values[len(values)-1]})
	}
	return out
}

// Get 은 이름이 정확히 일치하는 헤더 값을 돌려준다.
func (h Headers) Get(name string) (string, bool) {
	for _, kv := range h {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return "", false
}

// MarshalJSON 은 목록 순서를 그대로 유지한 JSON object 를 만든다.
func (h Headers) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range h {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

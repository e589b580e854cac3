package model

// 스트림(/events)으로 나가는 메시지 종류.
const (
	TypeConnected = "connected"
	TypeWebhook   = "webhook"
)

// Message 는 event-stream 의 `data:` 한 줄에 들어가는 JSON envelope.
type Message struct {
	Type    string `json:"type"`
	Payload *Event `json:"payload,omitempty"`
}

// Connected 는 구독 직후 한 번 보내는 알림.
func Connected() Message {
	return Message{Type: TypeConnected}
}

// Webhook 은 Event 를 감싼 브로드캐스트 메시지.
// Event 는 값으로 복사해 들고 가므로 호출자 쪽 변수와 공유하지 않는다.
func Webhook(ev Event) Message {
	return Message{Type: TypeWebhook, Payload: &ev}
}

package server

import (
	"fmt"
	"net/http"
)

// HandleExport
//
// 현재 History snapshot 을 gzip 압축된 JSON Lines 로 내려준다 (최신 → 과거).
// 아카이브 object 와 같은 포맷이라 `zcat | jq` 로 그대로 볼 수 있다.
func (h *Handler) HandleExport(w http.ResponseWriter, _ *http.Request) {
	events := h.history.Snapshot()
	now := h.clock.Now()

	hdr := w.Header()
	hdr.Set("Content-Type", "application/gzip")
	hdr.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="hooklens-%d.jsonl.gz"`, now.Unix()))

	_ = h.writeDeadline(http.NewResponseController(w))
	if err := h.encoder.WriteJSONLGZ(w, events); err != nil {
		// 헤더는 이미 나갔으므로 연결만 끊긴다
		h.log.Warn().Err(err).Int("events", len(events)).Msg("export")
		return
	}
	h.log.Debug().Int("events", len(events)).Msg("export")
}

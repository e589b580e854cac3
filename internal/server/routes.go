package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WebhookMethods 는 /webhook 이 받는 메서드 집합. 그 밖의 메서드는 404.
var WebhookMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
}

// NewRouter
//
//	GET  /         뷰어
//	GET  /events   event-stream
//	*    /webhook  수집 (WebhookMethods)
//	GET  /health   "ok"
//	GET  /metrics  Prometheus
//	GET  /export   History → JSONL.gz
//	OPTIONS *      200 (cors 에서 처리)
//
// 매칭되지 않는 경로와 메서드는 모두 404.
// 경로는 요청에 온 그대로(raw, percent-encoding 유지) 비교한다.
// "//webhook", "/./webhook", "/%77ebhook" 은 redirect 나 decode 없이 404.
func NewRouter(h *Handler) http.Handler {
	r := mux.NewRouter().SkipClean(true).UseEncodedPath()

	r.HandleFunc("/", h.HandleIndex).Methods(http.MethodGet)
	r.HandleFunc("/events", h.HandleEvents).Methods(http.MethodGet)
	r.HandleFunc("/webhook", h.HandleWebhook).Methods(WebhookMethods...)
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/export", h.HandleExport).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(h.metrics.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(notFound)

	return recoverer(h.log)(cors(r))
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "404 Not Found", http.StatusNotFound)
}


package server

import (
	"context"
	"errors"
	stdlog "log"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Server 는 http.Server 를 감싼다.
//
// WriteTimeout 은 두지 않는다. /events 는 끝나지 않는 응답이라 서버 전역 제한에 걸리면
// 30초 keep-alive 전에 끊긴다. 쓰기 제한은 handler 가 응답/프레임 단위로 직접 건다.
//
// 모든 요청 context 는 baseCtx 에서 파생된다. Shutdown 이 시작되면 baseCtx 가 취소되어
// 열려 있는 스트림이 스스로 빠져나가고, Shutdown 은 idle 대기에서 풀려난다.
type Server struct {
	srv *http.Server
}

func New(handler http.Handler, log zerolog.Logger) *Server {
	baseCtx, cancel := context.WithCancel(context.Background())

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		ErrorLog:          stdlog.New(log.With().Str("component", "http").Logger(), "", 0),
	}
	srv.RegisterOnShutdown(cancel)

	return &Server{srv: srv}
}

// Serve 는 ln 에서 연결을 받는다. 연결마다 goroutine 하나 (net/http 기본 동작).
// Shutdown 으로 끝난 경우는 nil.
func (s *Server) Serve(ln net.Listener) error {
	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown 은 새 연결을 멈추고 진행 중인 요청을 ctx 안에서 기다린다.
// deadline 을 넘기면 남은 연결을 강제로 닫는다.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		_ = s.srv.Close()
	}
	return err
}

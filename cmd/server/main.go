package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"hooklens/internal/archive"
	"hooklens/internal/broadcast"
	"hooklens/internal/clock"
	"hooklens/internal/config"
	"hooklens/internal/history"
	"hooklens/internal/logger"
	"hooklens/internal/metrics"
	"hooklens/internal/server"
)

// 프로세스 종료 코드
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "hooklens: %v\n", err)
	}
	os.Exit(code)
}

// run 은 모든 구성 요소를 만들고 서버 수명을 관리한다.
// os.Exit 를 여기서 부르지 않으므로 defer 가 모두 실행된 뒤 종료 코드가 main 으로 돌아간다.
func run(args []string) (int, error) {
	// ====================================================================
	// Config & Logger
	// ====================================================================
	cfg, err := config.Load(args)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK, nil
	}
	if err != nil {
		return exitConfig, err
	}

	log := logger.Init(cfg)

	// ====================================================================
	// 공유 상태
	// ====================================================================
	//
	// History Store / Subscriber Registry 는 여기서 딱 한 번 만들고
	// Handler 를 통해 모든 연결에 같은 인스턴스를 넘긴다.
	m := metrics.New()
	store := history.New(cfg.HistorySize)
	reg := broadcast.NewRegistry(cfg.SubscriberBuffer)

	// Event.Timestamp 는 초 단위면 충분하다. 요청마다 time.Now 대신 1초 캐시를 쓴다.
	clk := clock.NewCached()
	defer clk.Stop()

	h := server.NewHandler(cfg, m, store, reg, log).WithClock(clk)

	// ====================================================================
	// Listen
	// ====================================================================
	//
	// 포트를 못 잡는 것이 유일한 치명적 에러다. 다른 구성 요소를 띄우기 전에 먼저 확인한다.
	ln, err := net.Listen("tcp", cfg.HTTPAddr())
	if err != nil {
		return exitRuntime, fmt.Errorf("cannot listen on %s: %w", cfg.HTTPAddr(), err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ====================================================================
	// S3 아카이브 (선택)
	// ====================================================================
	var mgr *archive.Manager
	if cfg.ArchiveEnabled() {
		uploader, err := archive.NewS3Uploader(ctx, cfg, m)
		if err != nil {
			_ = ln.Close()
			return exitConfig, err
		}
		mgr = archive.NewManager(cfg, uploader, m, log)
		mgr.Start()
		h.WithArchive(mgr)
	}

	// ====================================================================
	// Serve
	// ====================================================================
	srv := server.New(server.NewRouter(h), log)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	printBanner(os.Stdout, cfg)
	log.Info().Str("addr", ln.Addr().String()).Bool("archive", mgr != nil).Msg("hooklens listening")

	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			code, runErr = exitRuntime, fmt.Errorf("http server terminated: %w", err)
		}
	}

	// ====================================================================
	// Graceful Shutdown
	// ====================================================================
	//
	//  1. HTTP 서버: 새 연결 중단, 열린 스트림은 base context 취소로 빠져나감
	//  2. 아카이브: 큐에 남은 이벤트까지 업로드 시도
	//
	// 둘 다 SHUTDOWN_TIMEOUT 하나를 공유한다.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if mgr != nil {
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("archive shutdown")
		}
	}

	log.Info().Str("counters", m.String()).Msg("shutdown complete")
	return code, runErr
}

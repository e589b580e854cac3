// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	"hooklens/internal/config"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// 애플리케이션 시작 시 한 번만 호출되는 로거 초기화 함수.
// New(cfg) 로 만든 로거를 전역 zerolog 로거로 교체하고,
// 표준 log 패키지(http.Server.ErrorLog 포함) 출력도 zerolog 로 돌린다.
//
// 사용 예:
//
//	log := logger.Init(cfg)
//	log.Info().Msg("server started")
func Init(cfg config.Config) zerolog.Logger {
	l := New(cfg, os.Stdout)

	zerolog.SetGlobalLevel(l.GetLevel())
	zlog.Logger = l

	// zerolog 가 시간을 따로 찍으므로 표준 로그의 기본 시간 포맷은 제거
	stdlog.SetFlags(0)
	stdlog.SetOutput(l)

	return l
}

// New
//
// 설정에 따라 '개발자용 콘솔' 또는 'JSON' 로거를 만든다.
//   - LOG_PRETTY=true (기본값): 색상 + 정렬된 텍스트. 로컬 디버깅 도구이므로 기본으로 켠다.
//   - LOG_PRETTY=false: 한 줄 JSON. 다른 도구로 파이프할 때 사용.
//
// 모든 로그에 service / instance 필드가 붙는다.
// 전역 상태(zerolog global level 등)는 건드리지 않는다. 전역 설정은 Init 의 몫이다.
// LOG_SAMPLE_N > 1 이면 Debug/Info 는 N 개 중 1 개만 남기고 Warn 이상은 전부 남긴다.
func New(cfg config.Config, out io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil && l != zerolog.NoLevel {
		level = l
	}

	var w io.Writer = out
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}

	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	if cfg.LogSampleN > 1 {
		n := uint32(cfg.LogSampleN)
		return base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: n},
			InfoSampler:  &zerolog.BasicSampler{N: n},
		})
	}
	return base
}

// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config
//
// 프로세스 시작 시점에 한 번 만들어지고 이후에는 읽기 전용으로만 쓰이는 설정값 모음.
// 우선순위: CLI flag > 환경변수 > .env 파일 > default 태그.
type Config struct {

	// ---------------------------
	// 서버 식별자 / 네트워크
	// ---------------------------

	Host        string `env:"HOST"`
	Port        int    `env:"PORT,default=8080" validate:"min=1,max=65535"`
	ServiceName string `env:"SERVICE_NAME,default=hooklens"`
	InstanceID  string // 호스트명 기반, 실패 시 랜덤 hex

	// ---------------------------
	// 로깅
	// ---------------------------

	LogLevel   string `env:"LOG_LEVEL,default=info"`
	LogPretty  bool   `env:"LOG_PRETTY,default=true"`
	LogSampleN int    `env:"LOG_SAMPLE_N,default=0" validate:"min=0"`

	// ---------------------------
	// 수집 / 스트리밍 파라미터
	// ---------------------------

	HistorySize       int           `env:"HISTORY_SIZE,default=100" validate:"min=1"`
	SubscriberBuffer  int           `env:"SUBSCRIBER_BUFFER,default=4096" validate:"min=1"`
	KeepAliveInterval time.Duration `env:"KEEPALIVE_INTERVAL,default=30s" validate:"gt=0"`
	MaxBodySize       int64         `env:"MAX_BODY_SIZE,default=0" validate:"min=0"` // 0 = 무제한
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT,default=15s" validate:"gt=0"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`

	// ---------------------------
	// S3 아카이브 (ARCHIVE_BUCKET 이 비어 있으면 비활성)
	// ---------------------------
	// SDK retry 는 항상 0 으로 고정하고, 재시도 횟수는 S3AppRetries 하나로만 제어한다.

	ArchiveBucket        string        `env:"ARCHIVE_BUCKET"`
	ArchivePrefix        string        `env:"ARCHIVE_PREFIX,default=hooklens"`
	AWSRegion            string        `env:"AWS_REGION" validate:"required_with=ArchiveBucket"`
	ArchiveQueue         int           `env:"ARCHIVE_QUEUE,default=1024" validate:"min=1"`
	ArchiveBatchSize     int           `env:"ARCHIVE_BATCH_SIZE,default=100" validate:"min=1"`
	ArchiveFlushInterval time.Duration `env:"ARCHIVE_FLUSH_INTERVAL,default=30s" validate:"gt=0"`
	S3Timeout            time.Duration `env:"S3_TIMEOUT,default=5s" validate:"gt=0"`
	S3AppRetries         int           `env:"S3_APP_RETRIES,default=3" validate:"min=1"`
}

// HTTPAddr 는 net.Listen 에 그대로 넘길 수 있는 "host:port" 문자열.
func (c Config) HTTPAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ArchiveEnabled 는 S3 아카이브 파이프라인을 띄울지 여부.
func (c Config) ArchiveEnabled() bool {
	return c.ArchiveBucket != ""
}

var validate = validator.New()

// Load
//
// 작업 디렉토리의 .env 를 (있으면) 먼저 읽고, 환경변수와 CLI 인자를 합쳐 Config 를 만든다.
// 잘못된 값이 있으면 에러를 반환하며, 종료 여부는 호출자(main)가 결정한다.
func Load(args []string) (Config, error) {
	// .env 는 선택 사항. 파일이 없으면 조용히 무시한다.
	_ = godotenv.Load()
	return LoadFrom(os.Environ(), args)
}

// LoadFrom 은 주어진 environ / args 만으로 Config 를 구성한다 (테스트용 진입점).
func LoadFrom(environ []string, args []string) (Config, error) {
	var cfg Config

	es, err := env.EnvironToEnvSet(environ)
	if err != nil {
		return Config{}, fmt.Errorf("parse environ: %w", err)
	}
	if err := env.Unmarshal(es, &cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}

	if err := applyFlags(&cfg, args); err != nil {
		return Config{}, err
	}

	cfg.InstanceID = fallbackInstanceID()

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return Config{}, fmt.Errorf("invalid config %s=%v (%s)", fe.Field(), fe.Value(), fe.Tag())
		}
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyFlags
//
// --port / -p, --host 만 지원한다. 명시적으로 넘긴 flag 만 환경변수 값을 덮어쓴다.
func applyFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("hooklens", flag.ContinueOnError)

	var port int
	var host string
	fs.IntVar(&port, "port", cfg.Port, "port to listen on")
	fs.IntVar(&port, "p", cfg.Port, "port to listen on (shorthand)")
	fs.StringVar(&host, "host", cfg.Host, "host to bind (default: all interfaces)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port", "p":
			cfg.Port = port
		case "host":
			cfg.Host = host
		}
	})
	return nil
}

// fallbackInstanceID
//
// 인스턴스 식별 값. 기본은 hostname, 실패하면 12자리 랜덤 hex.
// 로그 필드와 아카이브 파일명에 들어간다.
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}

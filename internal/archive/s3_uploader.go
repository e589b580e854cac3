//go:generate go run go.uber.org/mock/mockgen -source=s3_uploader.go -destination=../mocks/mock_object_putter.go -package=mocks
package archive

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"hooklens/internal/config"
	"hooklens/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter 는 S3Uploader 가 쓰는 s3.Client 의 부분 집합.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader 는 아카이브 배치(JSONL.gz)를 S3 에 올린다.
//
// 모든 업로드는 컨텍스트 기반(timeout + cancel-safe)이며
// 애플리케이션 레벨 retry + exponential backoff 를 포함한다.
// SDK 자체 retry 는 0 으로 고정해 재시도 횟수가 겹치지 않게 한다.
type S3Uploader struct {
	client  ObjectPutter
	bucket  string
	timeout time.Duration
	retries int
	metrics *metrics.Metrics

	backoff    time.Duration
	maxBackoff time.Duration
}

// NewS3Uploader 는 AWS 기본 자격 증명 체인으로 S3 client 를 만든다.
func NewS3Uploader(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*S3Uploader, error) {
	awsCfg, err := awsCfgLib.LoadDefaultConfig(ctx, awsCfgLib.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
	})
	return NewS3UploaderWithClient(client, cfg, m), nil
}

// NewS3UploaderWithClient 는 이미 만들어진 client(또는 mock)로 uploader 를 구성한다.
func NewS3UploaderWithClient(client ObjectPutter, cfg config.Config, m *metrics.Metrics) *S3Uploader {
	retries := cfg.S3AppRetries
	if retries <= 0 {
		retries = 1
	}
	return &S3Uploader{
		client:     client,
		bucket:     cfg.ArchiveBucket,
		timeout:    cfg.S3Timeout,
		retries:    retries,
		metrics:    m,
		backoff:    200 * time.Millisecond,
		maxBackoff: 2 * time.Second,
	}
}

// Upload
// -----------------------
// 메모리에 있는 gzip+JSONL 바이트를 key 로 업로드한다.
//   - 시도당 S3Timeout
//   - 실패 시 backoff 두 배씩 (최대 2초)
//   - ctx 가 끝나면 즉시 중단
//
// body 는 재시도마다 reader 를 새로 만들어야 하므로 bytes.NewReader 를 쓴다.
func (u *S3Uploader) Upload(ctx context.Context, key string, body []byte) error {
	var lastErr error
	backoff := u.backoff

	for attempt := 1; attempt <= u.retries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := u.putObject(ctx, key, body)
		if err == nil {
			return nil
		}
		lastErr = err
		atomic.AddInt64(&u.metrics.S3PutErrorsTotal, 1)

		if attempt == u.retries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > u.maxBackoff {
				backoff = u.maxBackoff
			}
		}
	}

	return fmt.Errorf("put s3://%s/%s after %d attempts: %w", u.bucket, key, u.retries, lastErr)
}

// putObject 는 PutObject 1회 호출만 담당한다. retry 는 호출자가 제어한다.
func (u *S3Uploader) putObject(ctx context.Context, key string, body []byte) error {
	ctx2, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	_, err := u.client.PutObject(ctx2, &s3.PutObjectInput{
		Bucket:          aws.String(u.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentLength:   aws.Int64(int64(len(body))),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	return err
}

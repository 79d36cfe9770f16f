// Package s3 implements the record store on an S3 bucket. A record write is
// one PutObject, so each state transition commits atomically and concurrent
// writers to one key resolve last-write-wins.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kirillkom/mailtriage/internal/core/domain"
	"github.com/kirillkom/mailtriage/internal/infrastructure/resilience"
)

type Store struct {
	client   *s3.Client
	bucket   string
	executor *resilience.Executor
}

func New(ctx context.Context, bucket, region string, executor *resilience.Executor) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 store: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Store{
		client:   s3.NewFromConfig(cfg),
		bucket:   bucket,
		executor: executor,
	}, nil
}

func (s *Store) Put(ctx context.Context, key string, rec *domain.ContentRecord) error {
	return s.putJSON(ctx, key, rec)
}

func (s *Store) Get(ctx context.Context, key string) (*domain.ContentRecord, error) {
	var rec domain.ContentRecord
	call := func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()

		data, err := io.ReadAll(out.Body)
		if err != nil {
			return fmt.Errorf("read object body: %w", err)
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode record %s: %w", key, err)
		}
		return nil
	}

	if err := s.execute(ctx, "s3.get", call); err != nil {
		return nil, wrapStoreError("get record "+key, err)
	}
	return &rec, nil
}

func (s *Store) List(ctx context.Context, prefix string, status domain.RecordStatus, limit int) ([]string, error) {
	var all []string
	call := func(ctx context.Context) error {
		all = all[:0]
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, obj := range page.Contents {
				all = append(all, aws.ToString(obj.Key))
			}
		}
		return nil
	}
	if err := s.execute(ctx, "s3.list", call); err != nil {
		return nil, wrapStoreError("list "+prefix, err)
	}
	sort.Strings(all)

	if status == "" {
		if limit > 0 && len(all) > limit {
			all = all[:limit]
		}
		return all, nil
	}

	// The status lives inside the record blob, so filtering reads each
	// candidate. Batches are bounded, which keeps this tolerable.
	var keys []string
	for _, key := range all {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		rec, err := s.Get(ctx, key)
		if err != nil {
			if domain.IsKind(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if rec.Status != status {
			continue
		}
		keys = append(keys, key)
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	return keys, nil
}

func (s *Store) PutResult(ctx context.Context, res *domain.ClassificationResult) error {
	messageID := strings.TrimSuffix(strings.TrimPrefix(res.RecordKey, domain.RecordPrefix), ".json")
	return s.putJSON(ctx, domain.ResultKey(messageID), res)
}

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	call := func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		return err
	}
	if err := s.execute(ctx, "s3.put", call); err != nil {
		return wrapStoreError("put "+key, err)
	}
	return nil
}

func (s *Store) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	if s.executor == nil {
		return call(ctx)
	}
	return s.executor.Execute(ctx, operation, call, classifyS3Error)
}

func classifyS3Error(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if isNotFound(err) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable", "Throttling", "ThrottlingException":
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		case "AccessDenied", "InvalidAccessKeyId", "ExpiredToken", "SignatureDoesNotMatch":
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func wrapStoreError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return domain.WrapError(domain.ErrNotFound, operation, err)
	}
	if isAuthDenied(err) {
		return domain.WrapError(domain.ErrAuth, operation, err)
	}
	class := classifyS3Error(err)
	if class.Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTransient, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound"
}

func isAuthDenied(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "AccessDenied", "InvalidAccessKeyId", "ExpiredToken", "SignatureDoesNotMatch":
		return true
	}
	return false
}

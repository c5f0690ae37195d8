package usecase

import (
	"context"
	"time"

	"github.com/allisson/keyvault/internal/metrics"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
)

// secretUseCaseWithMetrics decorates SecretUseCase with metrics instrumentation.
type secretUseCaseWithMetrics struct {
	next    SecretUseCase
	metrics metrics.BusinessMetrics
}

// NewSecretUseCaseWithMetrics wraps a SecretUseCase with metrics recording.
func NewSecretUseCaseWithMetrics(useCase SecretUseCase, m metrics.BusinessMetrics) SecretUseCase {
	return &secretUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (s *secretUseCaseWithMetrics) record(ctx context.Context, op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordOperation(ctx, "secrets", op, status)
	s.metrics.RecordDuration(ctx, "secrets", op, time.Since(start), status)
}

func (s *secretUseCaseWithMetrics) Get(
	ctx context.Context,
	path string,
	version int,
) (*secretsDomain.SecretValue, error) {
	start := time.Now()
	value, err := s.next.Get(ctx, path, version)
	s.record(ctx, "secret_get", start, err)
	return value, err
}

func (s *secretUseCaseWithMetrics) Put(
	ctx context.Context,
	path string,
	value []byte,
	opts secretsDomain.PutOptions,
) (int, error) {
	start := time.Now()
	version, err := s.next.Put(ctx, path, value, opts)
	s.record(ctx, "secret_put", start, err)
	return version, err
}

func (s *secretUseCaseWithMetrics) Delete(ctx context.Context, path string, actor string) error {
	start := time.Now()
	err := s.next.Delete(ctx, path, actor)
	s.record(ctx, "secret_delete", start, err)
	return err
}

func (s *secretUseCaseWithMetrics) List(ctx context.Context, prefix string) ([]secretsDomain.Entry, error) {
	start := time.Now()
	entries, err := s.next.List(ctx, prefix)
	s.record(ctx, "secret_list", start, err)
	return entries, err
}

func (s *secretUseCaseWithMetrics) Versions(
	ctx context.Context,
	path string,
) ([]secretsDomain.VersionInfo, error) {
	start := time.Now()
	versions, err := s.next.Versions(ctx, path)
	s.record(ctx, "secret_versions", start, err)
	return versions, err
}

func (s *secretUseCaseWithMetrics) Import(
	ctx context.Context,
	values map[string]string,
	prefix string,
	actor string,
) (*secretsDomain.ImportResult, error) {
	start := time.Now()
	result, err := s.next.Import(ctx, values, prefix, actor)
	s.record(ctx, "secret_import", start, err)
	return result, err
}

// Stats is not instrumented; the maintenance worker polls it for gauges.
func (s *secretUseCaseWithMetrics) Stats(ctx context.Context) (secretsDomain.Stats, error) {
	return s.next.Stats(ctx)
}

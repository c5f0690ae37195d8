package commands

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/allisson/keyvault/internal/app"
	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	complianceDomain "github.com/allisson/keyvault/internal/compliance/domain"
	drDomain "github.com/allisson/keyvault/internal/dr/domain"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
	rotationDomain "github.com/allisson/keyvault/internal/rotation/domain"
	"github.com/allisson/keyvault/internal/worker"
	ztService "github.com/allisson/keyvault/internal/zerotrust/service"
)

type mockAuditVerifier struct{ mock.Mock }

func (m *mockAuditVerifier) Verify(
	ctx context.Context,
	filter auditDomain.Filter,
) (*auditDomain.VerificationReport, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auditDomain.VerificationReport), args.Error(1)
}

type mockPolicySeeder struct{ mock.Mock }

func (m *mockPolicySeeder) SeedPolicies(
	ctx context.Context,
	seed *app.PolicySeed,
	actor string,
) (*app.SeedReport, error) {
	args := m.Called(ctx, seed, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*app.SeedReport), args.Error(1)
}

type mockTokenCreator struct{ mock.Mock }

func (m *mockTokenCreator) Create(
	ctx context.Context,
	req policyDomain.CreateTokenRequest,
) (*policyDomain.CreatedToken, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*policyDomain.CreatedToken), args.Error(1)
}

type mockBreakGlassIssuer struct{ mock.Mock }

func (m *mockBreakGlassIssuer) Issue(ctx context.Context, actor string, ttl time.Duration) (*ztService.IssuedCode, error) {
	args := m.Called(ctx, actor, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ztService.IssuedCode), args.Error(1)
}

type mockSecretRotator struct{ mock.Mock }

func (m *mockSecretRotator) RotateNow(ctx context.Context, path, actor string) rotationDomain.Result {
	args := m.Called(ctx, path, actor)
	return args.Get(0).(rotationDomain.Result)
}

func (m *mockSecretRotator) ExecutePending(ctx context.Context) rotationDomain.BatchResult {
	args := m.Called(ctx)
	return args.Get(0).(rotationDomain.BatchResult)
}

type mockDekRotator struct{ mock.Mock }

func (m *mockDekRotator) Rotate(ctx context.Context, purpose, actor string) rotationDomain.DekRotationResult {
	args := m.Called(ctx, purpose, actor)
	return args.Get(0).(rotationDomain.DekRotationResult)
}

func (m *mockDekRotator) ReEncryptTable(
	ctx context.Context,
	table, purpose string,
	batchSize int,
) (*rotationDomain.ReEncryptionResult, error) {
	args := m.Called(ctx, table, purpose, batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rotationDomain.ReEncryptionResult), args.Error(1)
}

func (m *mockDekRotator) ReEncryptAll(
	ctx context.Context,
	purpose string,
) ([]*rotationDomain.ReEncryptionResult, error) {
	args := m.Called(ctx, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*rotationDomain.ReEncryptionResult), args.Error(1)
}

type mockDbRotator struct{ mock.Mock }

func (m *mockDbRotator) Rotate(ctx context.Context, actor string) rotationDomain.DbRotationResult {
	args := m.Called(ctx, actor)
	return args.Get(0).(rotationDomain.DbRotationResult)
}

type mockDisasterRecovery struct{ mock.Mock }

func (m *mockDisasterRecovery) Backup(
	ctx context.Context,
	passphrase, actor string,
) (*drDomain.BackupResult, []byte, error) {
	args := m.Called(ctx, passphrase, actor)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*drDomain.BackupResult), args.Get(1).([]byte), args.Error(2)
}

func (m *mockDisasterRecovery) Restore(
	ctx context.Context,
	blob []byte,
	passphrase, actor string,
) (*drDomain.RestoreResult, error) {
	args := m.Called(ctx, blob, passphrase, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drDomain.RestoreResult), args.Error(1)
}

func (m *mockDisasterRecovery) Validate(
	ctx context.Context,
	blob []byte,
	passphrase string,
) (*drDomain.ValidationResult, error) {
	args := m.Called(ctx, blob, passphrase)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drDomain.ValidationResult), args.Error(1)
}

type mockComplianceEvaluator struct{ mock.Mock }

func (m *mockComplianceEvaluator) Evaluate(ctx context.Context) (*complianceDomain.Summary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*complianceDomain.Summary), args.Error(1)
}

func (m *mockComplianceEvaluator) EvaluateFramework(
	ctx context.Context,
	framework string,
) (*complianceDomain.Report, error) {
	args := m.Called(ctx, framework)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*complianceDomain.Report), args.Error(1)
}

type mockSweeper struct{ mock.Mock }

func (m *mockSweeper) Start(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockSweeper) RunOnce(ctx context.Context) (*worker.SweepReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*worker.SweepReport), args.Error(1)
}

package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	complianceDomain "github.com/allisson/keyvault/internal/compliance/domain"
	complianceService "github.com/allisson/keyvault/internal/compliance/service"
	drDomain "github.com/allisson/keyvault/internal/dr/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
	secretsUsecase "github.com/allisson/keyvault/internal/secrets/usecase"
	"github.com/allisson/keyvault/internal/settings"
)

const dekVersionPrefix = "dek-version-"

var frameworks = []string{
	complianceDomain.FrameworkHIPAA,
	complianceDomain.FrameworkSOC2,
	complianceDomain.FrameworkGDPR,
}

type complianceUseCase struct {
	state  StateReader
	store  *settings.Store
	kms    KmsHealth
	unseal UnsealStatus
	logger *slog.Logger
	now    func() time.Time
}

// NewComplianceUseCase creates the compliance scorer.
func NewComplianceUseCase(
	state StateReader,
	store *settings.Store,
	kms KmsHealth,
	unseal UnsealStatus,
	logger *slog.Logger,
) ComplianceUseCase {
	return &complianceUseCase{
		state:  state,
		store:  store,
		kms:    kms,
		unseal: unseal,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (u *complianceUseCase) Facts(ctx context.Context) (*complianceDomain.Facts, error) {
	now := u.now()
	f := &complianceDomain.Facts{KmsProvider: u.kms.Name(), KmsHealthy: u.kms.IsHealthy(ctx)}

	configs, err := u.state.ListEncryptionConfigs(ctx)
	if err != nil {
		return nil, err
	}
	f.EncryptionConfigs = len(configs)
	for _, c := range configs {
		if c.Enabled {
			f.EnabledConfigs++
		}
	}

	if f.AuditLogs, err = u.state.CountAuditLogs(ctx, auditDomain.Filter{}); err != nil {
		return nil, err
	}
	if f.SecurityEvents, err = u.state.CountSecurityEvents(ctx, auditDomain.EventFilter{}); err != nil {
		return nil, err
	}

	stats, err := u.state.SecretStats(ctx)
	if err != nil {
		return nil, err
	}
	f.Secrets, f.VersionedSecrets = stats.Paths, stats.VersionedPaths

	policies, err := u.state.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	f.Policies = len(policies)
	if f.UserPolicies, err = u.state.CountUserPolicies(ctx); err != nil {
		return nil, err
	}

	tokens, err := u.state.ListTokens(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tokens {
		switch {
		case t.Revoked:
		case t.IsExpired(now):
			f.ExpiredUnrevokedTokens++
		default:
			f.ActiveTokens++
		}
	}

	schedules, err := u.state.ListSchedules(ctx, true)
	if err != nil {
		return nil, err
	}
	f.ActiveSchedules = len(schedules)

	leases, err := u.state.ListActiveLeases(ctx, now)
	if err != nil {
		return nil, err
	}
	f.ActiveLeases = len(leases)

	creds, err := u.state.ListCredentials(ctx, false)
	if err != nil {
		return nil, err
	}
	f.ActiveCredentials = len(creds)

	ztPolicies, err := u.state.ListZTPolicies(ctx)
	if err != nil {
		return nil, err
	}
	f.ZeroTrustPolicies = len(ztPolicies)

	if err := u.settingsFacts(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (u *complianceUseCase) settingsFacts(ctx context.Context, f *complianceDomain.Facts) error {
	status, err := u.unseal.Status(ctx)
	if err != nil {
		return err
	}
	f.UnsealConfigured = status.Configured

	if f.KekWrapped, err = u.store.Exists(ctx, secretsUsecase.WrappedKekSetting); err != nil {
		return err
	}

	keys, err := u.store.Keys(ctx, dekVersionPrefix)
	if err != nil {
		return err
	}
	f.DekPurposes = len(keys)
	f.DekRotated = len(keys) > 0

	var last drDomain.LastBackup
	if err := u.store.Load(ctx, drDomain.LastBackupSettingKey, drDomain.LastBackupSchema, &last); err != nil {
		if !apperrors.Is(err, settings.ErrSettingNotFound) {
			return err
		}
	} else {
		f.LastBackupAt = &last.At
	}
	return nil
}

func (u *complianceUseCase) EvaluateFramework(ctx context.Context, framework string) (*complianceDomain.Report, error) {
	facts, err := u.Facts(ctx)
	if err != nil {
		return nil, err
	}
	report, ok := complianceService.Evaluate(strings.ToUpper(framework), *facts)
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "unknown compliance framework "+framework)
	}
	report.GeneratedAt = u.now()
	return &report, nil
}

func (u *complianceUseCase) Evaluate(ctx context.Context) (*complianceDomain.Summary, error) {
	facts, err := u.Facts(ctx)
	if err != nil {
		return nil, err
	}

	summary := &complianceDomain.Summary{GeneratedAt: u.now()}
	score, maxScore := 0, 0
	for _, fw := range frameworks {
		report, _ := complianceService.Evaluate(fw, *facts)
		report.GeneratedAt = summary.GeneratedAt
		summary.Reports = append(summary.Reports, report)
		score += report.Score
		maxScore += report.MaxScore
	}
	if maxScore > 0 {
		summary.Percentage = float64(score) * 100 / float64(maxScore)
	}
	summary.Grade = complianceDomain.Grade(summary.Percentage)

	u.logger.Info("compliance evaluated",
		slog.Float64("percentage", summary.Percentage),
		slog.String("grade", summary.Grade),
	)
	return summary, nil
}

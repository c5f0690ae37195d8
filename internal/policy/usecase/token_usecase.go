package usecase

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	"github.com/allisson/keyvault/internal/database"
	apperrors "github.com/allisson/keyvault/internal/errors"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
	customValidation "github.com/allisson/keyvault/internal/validation"
)

const (
	ActionTokenCreate     = "token.create"
	ActionTokenRevoke     = "token.revoke"
	ActionTokenAutoRevoke = "token.auto-revoke"

	resourceToken  = "token"
	tokenBytes     = 32
	accessorLength = 24
	systemActor    = "system"
)

// Evaluator authorizes a principal against path policies.
type Evaluator interface {
	Evaluate(
		ctx context.Context,
		path string,
		capability policyDomain.Capability,
		principal policyDomain.Principal,
	) (*policyDomain.Evaluation, error)
}

type tokenUseCase struct {
	txManager database.TxManager
	repo      TokenRepository
	policies  Evaluator
	audit     auditUsecase.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewTokenUseCase creates the vault token issuer. Raw tokens are never stored, only
// their SHA-256 digest.
func NewTokenUseCase(
	txManager database.TxManager,
	repo TokenRepository,
	policies Evaluator,
	audit auditUsecase.Recorder,
	logger *slog.Logger,
) TokenUseCase {
	return &tokenUseCase{
		txManager: txManager,
		repo:      repo,
		policies:  policies,
		audit:     audit,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func hashToken(raw string) string {
	return cryptoService.SHA256Hex([]byte(raw))
}

func (u *tokenUseCase) Create(
	ctx context.Context,
	req policyDomain.CreateTokenRequest,
) (*policyDomain.CreatedToken, error) {
	if err := req.Validate(); err != nil {
		return nil, customValidation.WrapValidationError(err)
	}
	if req.Type == "" {
		req.Type = policyDomain.TokenTypeService
	}
	if len(req.Policies) == 0 {
		req.Policies = []string{policyDomain.DefaultPolicy}
	}

	secret, err := cryptoService.RandomBytes(tokenBytes)
	if err != nil {
		return nil, err
	}
	raw := policyDomain.TokenPrefix + base64.RawURLEncoding.EncodeToString(secret)
	accessor, err := nanoid.New(accessorLength)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to generate token accessor")
	}

	now := u.now()
	token := &policyDomain.Token{
		ID:          uuid.Must(uuid.NewV7()),
		Accessor:    accessor,
		TokenHash:   hashToken(raw),
		DisplayName: req.DisplayName,
		Policies:    req.Policies,
		Type:        req.Type,
		NumUses:     req.NumUses,
		ParentID:    req.ParentID,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
	}
	if req.TTLSeconds > 0 {
		exp := now.Add(time.Duration(req.TTLSeconds) * time.Second)
		token.ExpiresAt = &exp
	}

	err = u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := u.repo.CreateToken(txCtx, token); err != nil {
			return err
		}
		return u.audit.Record(txCtx, auditDomain.Entry{
			Action:       ActionTokenCreate,
			ResourceType: resourceToken,
			ResourceID:   token.Accessor,
			ActorID:      req.CreatedBy,
			Details: map[string]any{
				"policies": strings.Join(token.Policies, ","),
				"type":     token.Type,
				"numUses":  token.NumUses,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return &policyDomain.CreatedToken{
		ID:        token.ID,
		Token:     raw,
		Accessor:  token.Accessor,
		Policies:  token.Policies,
		ExpiresAt: token.ExpiresAt,
	}, nil
}

func toInfo(t *policyDomain.Token) *policyDomain.TokenInfo {
	return &policyDomain.TokenInfo{
		ID:          t.ID,
		Accessor:    t.Accessor,
		DisplayName: t.DisplayName,
		Policies:    t.Policies,
		Type:        t.Type,
		ExpiresAt:   t.ExpiresAt,
		UsesCount:   t.UsesCount,
		NumUses:     t.NumUses,
	}
}

func (u *tokenUseCase) Validate(ctx context.Context, rawToken string) (*policyDomain.TokenInfo, error) {
	if !strings.HasPrefix(rawToken, policyDomain.TokenPrefix) {
		return nil, nil
	}

	token, err := u.repo.GetTokenByHash(ctx, hashToken(rawToken))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	now := u.now()
	if !token.IsValid(now) {
		return nil, nil
	}
	if err := u.repo.ConsumeTokenUse(ctx, token.ID, now); err != nil {
		if apperrors.Is(err, apperrors.ErrPreconditionFailed) || apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	info := toInfo(token)
	info.UsesCount++
	return info, nil
}

func (u *tokenUseCase) Lookup(ctx context.Context, accessor string) (*policyDomain.TokenInfo, error) {
	token, err := u.repo.GetTokenByAccessor(ctx, accessor)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, policyDomain.ErrTokenNotFound
		}
		return nil, err
	}
	return toInfo(token), nil
}

func (u *tokenUseCase) revoke(ctx context.Context, token *policyDomain.Token, action, actor string) error {
	if token.Revoked {
		return apperrors.Wrap(apperrors.ErrPreconditionFailed, "token already revoked")
	}
	return u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := u.repo.RevokeToken(txCtx, token.ID, u.now()); err != nil {
			return err
		}
		return u.audit.Record(txCtx, auditDomain.Entry{
			Action:       action,
			ResourceType: resourceToken,
			ResourceID:   token.Accessor,
			ActorID:      actor,
		})
	})
}

func (u *tokenUseCase) Revoke(ctx context.Context, id uuid.UUID, actor string) error {
	token, err := u.repo.GetToken(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return policyDomain.ErrTokenNotFound
		}
		return err
	}
	return u.revoke(ctx, token, ActionTokenRevoke, actor)
}

func (u *tokenUseCase) RevokeByAccessor(ctx context.Context, accessor string, actor string) error {
	token, err := u.repo.GetTokenByAccessor(ctx, accessor)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return policyDomain.ErrTokenNotFound
		}
		return err
	}
	return u.revoke(ctx, token, ActionTokenRevoke, actor)
}

// HasCapability validates the token, consuming one use, and evaluates its policies.
func (u *tokenUseCase) HasCapability(
	ctx context.Context,
	rawToken, path string,
	capability policyDomain.Capability,
) (bool, error) {
	info, err := u.Validate(ctx, rawToken)
	if err != nil || info == nil {
		return false, err
	}
	eval, err := u.policies.Evaluate(ctx, path, capability, info.Principal())
	if err != nil {
		return false, err
	}
	return eval.Allowed, nil
}

func (u *tokenUseCase) RevokeInvalid(ctx context.Context) (int, error) {
	tokens, err := u.repo.ListInvalidTokens(ctx, u.now())
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, t := range tokens {
		if err := u.revoke(ctx, t, ActionTokenAutoRevoke, systemActor); err != nil {
			u.logger.Warn("failed to revoke invalid token",
				slog.String("accessor", t.Accessor),
				slog.Any("error", err),
			)
			continue
		}
		revoked++
	}
	if revoked > 0 {
		u.logger.Info("revoked invalid tokens", slog.Int("count", revoked))
	}
	return revoked, nil
}

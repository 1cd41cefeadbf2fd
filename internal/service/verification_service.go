package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"expense_ingest/internal/channel"
	"expense_ingest/internal/ratelimit"
	"expense_ingest/internal/repository"

	"go.uber.org/zap"
)

const (
	minPhoneDigits = 8
	codeLength     = 6
)

// VerificationService links a phone number to a profile with a one-time code
// delivered over the messaging channel.
type VerificationService interface {
	IssueCode(ctx context.Context, userID, rawPhone string) error
	VerifyCode(ctx context.Context, userID, code string) error
	Disconnect(ctx context.Context, userID string) error
}

// CodeLimiter throttles code issuance. *ratelimit.Cooldown implements it.
type CodeLimiter interface {
	Acquire(ctx context.Context, key string) (time.Duration, error)
	Release(ctx context.Context, key string) error
}

// VerificationConfig tunes the service. Zero values select the defaults.
type VerificationConfig struct {
	CodeTTL time.Duration
	Limiter CodeLimiter // optional
	Now     func() time.Time
	NewCode func() (string, error)
}

type verificationService struct {
	profiles repository.ProfileRepository
	sender   channel.Sender
	limiter  CodeLimiter
	codeTTL  time.Duration
	now      func() time.Time
	newCode  func() (string, error)
	logger   *zap.Logger
}

// NewVerificationService creates a new VerificationService
func NewVerificationService(profiles repository.ProfileRepository, sender channel.Sender, cfg VerificationConfig, logger *zap.Logger) VerificationService {
	s := &verificationService{
		profiles: profiles,
		sender:   sender,
		limiter:  cfg.Limiter,
		codeTTL:  cfg.CodeTTL,
		now:      cfg.Now,
		newCode:  cfg.NewCode,
		logger:   logger,
	}
	if s.codeTTL <= 0 {
		s.codeTTL = 10 * time.Minute
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newCode == nil {
		s.newCode = GenerateCode
	}
	return s
}

// GenerateCode returns a uniformly distributed code in 100000..999999.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}

// NormalizePhone strips every non-digit character.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *verificationService) IssueCode(ctx context.Context, userID, rawPhone string) error {
	phone := NormalizePhone(rawPhone)
	if len(phone) < minPhoneDigits {
		return ErrInvalidPhone
	}

	if s.limiter != nil {
		wait, err := s.limiter.Acquire(ctx, userID)
		switch {
		case errors.Is(err, ratelimit.ErrCoolingDown):
			return fmt.Errorf("%w (retry in %ds)", ErrTooManyRequests, int(wait.Seconds()))
		case err != nil:
			// Fail open when the cache is unreachable.
			s.logger.Warn("code issue limiter unavailable", zap.String("user_id", userID), zap.Error(err))
		}
	}

	code, err := s.newCode()
	if err != nil {
		s.releaseLimiter(ctx, userID)
		return err
	}
	expiresAt := s.now().Add(s.codeTTL)

	if err := s.profiles.SetPendingCode(ctx, userID, phone, code, expiresAt); err != nil {
		s.releaseLimiter(ctx, userID)
		if errors.Is(err, repository.ErrProfileNotFound) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("failed to store verification code: %w", err)
	}

	message := fmt.Sprintf("🔐 Seu código de verificação TrackyFinance é: *%s*\n\nEste código expira em %d minutos.",
		code, int(math.Ceil(s.codeTTL.Minutes())))
	if err := s.sender.SendText(ctx, phone, message); err != nil {
		// The stored code stays in place; a retry simply overwrites it.
		s.releaseLimiter(ctx, userID)
		return fmt.Errorf("failed to send verification code: %w", err)
	}

	s.logger.Info("verification code issued",
		zap.String("user_id", userID),
		zap.Time("expires_at", expiresAt))
	return nil
}

func (s *verificationService) VerifyCode(ctx context.Context, userID, code string) error {
	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		return ErrProfileNotFound
	}
	if !profile.HasPendingCode() {
		return ErrCodeNotFound
	}

	// Equality first: a correct but stale code reports expiry, not a mismatch.
	if subtle.ConstantTimeCompare([]byte(*profile.VerificationCode), []byte(code)) != 1 {
		return ErrIncorrectCode
	}
	now := s.now()
	if profile.VerificationCodeExpiresAt == nil || now.After(*profile.VerificationCodeExpiresAt) {
		return ErrCodeExpired
	}

	// The update re-checks the code, so a concurrent IssueCode cannot be confirmed with the old one.
	if err := s.profiles.MarkVerified(ctx, userID, code, now); err != nil {
		if errors.Is(err, repository.ErrCodeMismatch) {
			return ErrIncorrectCode
		}
		return fmt.Errorf("failed to mark phone verified: %w", err)
	}

	s.logger.Info("phone verified", zap.String("user_id", userID))
	return nil
}

func (s *verificationService) Disconnect(ctx context.Context, userID string) error {
	if err := s.profiles.Disconnect(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("failed to disconnect phone: %w", err)
	}
	s.logger.Info("phone disconnected", zap.String("user_id", userID))
	return nil
}

func (s *verificationService) releaseLimiter(ctx context.Context, userID string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Release(ctx, userID); err != nil {
		s.logger.Warn("failed to release code issue limiter", zap.String("user_id", userID), zap.Error(err))
	}
}

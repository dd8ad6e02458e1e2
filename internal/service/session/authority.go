// Package session issues professional sessions and gates them behind a
// second factor.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/repository"
	"github.com/jwalitptl/opinion-api/internal/service/notification"
	"github.com/jwalitptl/opinion-api/pkg/auth"
	"github.com/jwalitptl/opinion-api/pkg/clock"
	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
	"github.com/jwalitptl/opinion-api/pkg/logger"
	"github.com/jwalitptl/opinion-api/pkg/metrics"
	"github.com/jwalitptl/opinion-api/pkg/security"
)

type Config struct {
	PendingTTL      time.Duration
	CodeTTL         time.Duration
	Lifetime        time.Duration
	CodeDigits      int
	MaxCodeAttempts int
}

func DefaultConfig() Config {
	return Config{
		PendingTTL:      10 * time.Minute,
		CodeTTL:         5 * time.Minute,
		Lifetime:        12 * time.Hour,
		CodeDigits:      6,
		MaxCodeAttempts: 5,
	}
}

// Issued is returned by Login. Token is the bearer the client presents.
type Issued struct {
	Token   string                     `json:"token"`
	Session *model.ProfessionalSession `json:"session"`
}

type Authority struct {
	cfg           Config
	sessions      repository.SessionRepository
	professionals repository.ProfessionalRepository
	credentials   CredentialStore
	notifier      notification.Sender
	signer        auth.TokenSigner
	codes         *security.CodeHasher
	clock         clock.Clock
	log           *logger.Logger
	metrics       *metrics.Metrics
}

func NewAuthority(
	cfg Config,
	sessions repository.SessionRepository,
	professionals repository.ProfessionalRepository,
	credentials CredentialStore,
	notifier notification.Sender,
	signer auth.TokenSigner,
	codes *security.CodeHasher,
	clk clock.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
) *Authority {
	return &Authority{
		cfg:           cfg,
		sessions:      sessions,
		professionals: professionals,
		credentials:   credentials,
		notifier:      notifier,
		signer:        signer,
		codes:         codes,
		clock:         clk,
		log:           log,
		metrics:       m,
	}
}

// LoginByEmail resolves the professional and calls Login. An unknown email
// fails exactly like a wrong password.
func (a *Authority) LoginByEmail(ctx context.Context, email, proof string) (*Issued, error) {
	p, err := a.professionals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.NotFoundErr) {
			a.metrics.SessionEvents.WithLabelValues("login_failed").Inc()
			return nil, apperrors.InvalidCredentials()
		}
		return nil, err
	}
	return a.Login(ctx, p.ID, proof)
}

// Login checks the first factor, opens a pending session and sends a
// one-time code over the professional's two-factor channel.
func (a *Authority) Login(ctx context.Context, professionalID uuid.UUID, proof string) (*Issued, error) {
	if err := a.credentials.Verify(ctx, professionalID, proof); err != nil {
		a.metrics.SessionEvents.WithLabelValues("login_failed").Inc()
		return nil, err
	}

	p, err := a.professionals.Get(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	destination, err := p.TwoFactorDestination()
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	code, err := security.GenerateCode(a.cfg.CodeDigits)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	now := a.clock.Now()
	s := &model.ProfessionalSession{
		ID:                 uuid.New(),
		ProfessionalID:     professionalID,
		Token:              uuid.NewString(),
		ExpiresAt:          now.Add(a.cfg.PendingTTL),
		ChallengeExpiresAt: now.Add(a.cfg.CodeTTL),
		CreatedAt:          now,
	}
	s.ChallengeHash = a.codes.Hash(s.Token, code)

	// The bearer outlives the pending window so it still works once the
	// session is verified; the stored row decides validity.
	bearer, err := a.signer.Sign(s.Token, professionalID, now, now.Add(a.cfg.Lifetime))
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if err := a.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := a.notifier.Send(ctx, p.TwoFactorMethod, destination, code); err != nil {
		if rerr := a.revoke(ctx, s.Token); rerr != nil {
			a.log.Error(rerr, "failed to revoke session after code delivery failed",
				"session_id", s.ID.String(),
				"professional_id", professionalID.String(),
			)
		}
		return nil, apperrors.Internal(err)
	}

	a.metrics.SessionEvents.WithLabelValues("login").Inc()
	a.log.Info("session pending two-factor",
		"professional_id", professionalID.String(),
		"session_id", s.ID.String(),
		"method", string(p.TwoFactorMethod),
	)
	return &Issued{Token: bearer, Session: s}, nil
}

// VerifyTwoFactor checks the code for the session behind bearer. Expired
// sessions and codes fail closed. Too many wrong codes revoke the session.
func (a *Authority) VerifyTwoFactor(ctx context.Context, bearer, code string) (*model.ProfessionalSession, error) {
	claims, err := a.parse(bearer)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	s, err := a.sessions.UpdateLocked(ctx, claims.ID, func(s *model.ProfessionalSession) error {
		if s.ProfessionalID != claims.ProfessionalID {
			return apperrors.Unauthenticated(nil)
		}
		if !s.Live(now) {
			return apperrors.ExpiredSession()
		}
		if s.TwoFactorVerified {
			return nil
		}
		if s.ChallengeHash == "" || !now.Before(s.ChallengeExpiresAt) {
			return apperrors.ExpiredSession()
		}

		if !a.codes.Equal(s.ChallengeHash, s.Token, code) {
			s.FailedAttempts++
			if s.FailedAttempts >= a.cfg.MaxCodeAttempts {
				s.RevokedAt = &now
				s.ChallengeHash = ""
			}
			return repository.KeepChanges(apperrors.InvalidCode())
		}

		s.TwoFactorVerified = true
		s.ChallengeHash = ""
		s.FailedAttempts = 0
		s.ExpiresAt = now.Add(a.cfg.Lifetime)
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, apperrors.NotFoundErr):
			return nil, apperrors.Unauthenticated(nil)
		case errors.Is(err, apperrors.InvalidCodeErr):
			a.metrics.SessionEvents.WithLabelValues("code_rejected").Inc()
			if s != nil && s.RevokedAt != nil {
				a.metrics.SessionEvents.WithLabelValues("locked_out").Inc()
				a.log.Warn("session revoked after repeated invalid codes",
					"session_id", s.ID.String(),
					"professional_id", s.ProfessionalID.String(),
				)
			}
		}
		return nil, err
	}

	a.metrics.SessionEvents.WithLabelValues("verified").Inc()
	return s, nil
}

// ResendCode replaces the code of a pending session. Failed attempts carry
// over so resending does not reset the lockout budget.
func (a *Authority) ResendCode(ctx context.Context, bearer string) error {
	claims, err := a.parse(bearer)
	if err != nil {
		return err
	}

	code, err := security.GenerateCode(a.cfg.CodeDigits)
	if err != nil {
		return apperrors.Internal(err)
	}

	now := a.clock.Now()
	_, err = a.sessions.UpdateLocked(ctx, claims.ID, func(s *model.ProfessionalSession) error {
		if s.ProfessionalID != claims.ProfessionalID {
			return apperrors.Unauthenticated(nil)
		}
		if !s.Live(now) {
			return apperrors.ExpiredSession()
		}
		if s.TwoFactorVerified {
			return apperrors.Validation("session is already verified", nil)
		}
		s.ChallengeHash = a.codes.Hash(s.Token, code)
		s.ChallengeExpiresAt = now.Add(a.cfg.CodeTTL)
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.NotFoundErr) {
			return apperrors.Unauthenticated(nil)
		}
		return err
	}

	p, err := a.professionals.Get(ctx, claims.ProfessionalID)
	if err != nil {
		return err
	}
	destination, err := p.TwoFactorDestination()
	if err != nil {
		return apperrors.Internal(err)
	}
	if err := a.notifier.Send(ctx, p.TwoFactorMethod, destination, code); err != nil {
		return apperrors.Internal(err)
	}

	a.metrics.SessionEvents.WithLabelValues("code_resent").Inc()
	return nil
}

// Authorize returns the professional behind bearer if the session is live
// and verified.
func (a *Authority) Authorize(ctx context.Context, bearer string) (uuid.UUID, error) {
	claims, err := a.parse(bearer)
	if err != nil {
		return uuid.Nil, err
	}

	s, err := a.sessions.GetByToken(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, apperrors.NotFoundErr) {
			return uuid.Nil, apperrors.Unauthenticated(nil)
		}
		return uuid.Nil, err
	}
	if s.ProfessionalID != claims.ProfessionalID || !s.Usable(a.clock.Now()) {
		return uuid.Nil, apperrors.Unauthenticated(nil)
	}
	return s.ProfessionalID, nil
}

// Revoke ends the session immediately. Revoking twice is not an error.
func (a *Authority) Revoke(ctx context.Context, bearer string) error {
	claims, err := a.parse(bearer)
	if err != nil {
		return err
	}
	return a.revoke(ctx, claims.ID)
}

func (a *Authority) revoke(ctx context.Context, token string) error {
	now := a.clock.Now()
	_, err := a.sessions.UpdateLocked(ctx, token, func(s *model.ProfessionalSession) error {
		if s.RevokedAt == nil {
			s.RevokedAt = &now
		}
		return nil
	})
	if err != nil && !errors.Is(err, apperrors.NotFoundErr) {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	a.metrics.SessionEvents.WithLabelValues("revoked").Inc()
	return nil
}

func (a *Authority) parse(bearer string) (*auth.SessionClaims, error) {
	claims, err := a.signer.Parse(bearer, a.clock.Now())
	if err != nil {
		return nil, apperrors.Unauthenticated(err)
	}
	return claims, nil
}

package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jwalitptl/opinion-api/internal/repository"
	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
	"github.com/jwalitptl/opinion-api/pkg/security"
)

// CredentialStore checks a professional's first-factor proof.
type CredentialStore interface {
	Verify(ctx context.Context, professionalID uuid.UUID, proof string) error
}

// PasswordCredentials checks passwords against the stored bcrypt hash.
type PasswordCredentials struct {
	professionals repository.ProfessionalRepository
	hasher        security.PasswordHasher
}

func NewPasswordCredentials(professionals repository.ProfessionalRepository, hasher security.PasswordHasher) *PasswordCredentials {
	return &PasswordCredentials{professionals: professionals, hasher: hasher}
}

// Verify reports an unknown professional exactly like a wrong password.
func (c *PasswordCredentials) Verify(ctx context.Context, professionalID uuid.UUID, proof string) error {
	p, err := c.professionals.Get(ctx, professionalID)
	if err != nil {
		if errors.Is(err, apperrors.NotFoundErr) {
			return apperrors.InvalidCredentials()
		}
		return err
	}
	if p.PasswordHash == "" || c.hasher.Compare(p.PasswordHash, proof) != nil {
		return apperrors.InvalidCredentials()
	}
	return nil
}

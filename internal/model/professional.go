package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Level is the professional's seniority tier.
type Level string

const (
	LevelJunior        Level = "junior"
	LevelSenior        Level = "senior"
	LevelExpert        Level = "expert"
	LevelDistinguished Level = "distinguished"
)

// Rank orders levels: junior < senior < expert < distinguished.
// Unknown levels rank below junior.
func (l Level) Rank() int {
	switch l {
	case LevelJunior:
		return 1
	case LevelSenior:
		return 2
	case LevelExpert:
		return 3
	case LevelDistinguished:
		return 4
	default:
		return 0
	}
}

func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if l.Rank() == 0 {
		return "", fmt.Errorf("unknown professional level %q", s)
	}
	return l, nil
}

// TwoFactorMethod is the channel a professional receives login codes on.
type TwoFactorMethod string

const (
	TwoFactorEmail TwoFactorMethod = "email"
	TwoFactorSMS   TwoFactorMethod = "sms"
)

func ParseTwoFactorMethod(s string) (TwoFactorMethod, error) {
	switch m := TwoFactorMethod(s); m {
	case TwoFactorEmail, TwoFactorSMS:
		return m, nil
	default:
		return "", fmt.Errorf("unknown two-factor method %q", s)
	}
}

type MedicalProfessional struct {
	Base
	ProNumber       string          `db:"pro_number" json:"pro_number"`
	Email           string          `db:"email" json:"email"`
	Name            string          `db:"name" json:"name"`
	Phone           string          `db:"phone" json:"phone,omitempty"`
	LicenseNumber   string          `db:"license_number" json:"license_number"`
	LicenseExpiry   time.Time       `db:"license_expiry" json:"license_expiry"`
	Vetted          bool            `db:"vetted" json:"vetted"`
	Level           Level           `db:"level" json:"level"`
	Score           *float64        `db:"score" json:"score,omitempty"`
	Subspecialty    Subspecialty    `db:"subspecialty" json:"subspecialty"`
	TwoFactorMethod TwoFactorMethod `db:"two_factor_method" json:"two_factor_method"`
	PasswordHash    string          `db:"password_hash" json:"-"`
	Documents       json.RawMessage `db:"documents" json:"documents,omitempty"`
	BankDetails     json.RawMessage `db:"bank_details" json:"-"`
}

// TwoFactorDestination returns where codes for the configured method go.
func (p *MedicalProfessional) TwoFactorDestination() (string, error) {
	switch p.TwoFactorMethod {
	case TwoFactorEmail:
		return p.Email, nil
	case TwoFactorSMS:
		if p.Phone == "" {
			return "", fmt.Errorf("professional %s has no phone for sms codes", p.ID)
		}
		return p.Phone, nil
	default:
		return "", fmt.Errorf("professional %s has unknown two-factor method %q", p.ID, p.TwoFactorMethod)
	}
}

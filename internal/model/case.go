package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Subspecialty tags both a professional's field and a case's disease type.
type Subspecialty string

// Normalize lowercases and trims so "Oncology " and "oncology" compare equal.
func (s Subspecialty) Normalize() Subspecialty {
	return Subspecialty(strings.ToLower(strings.TrimSpace(string(s))))
}

type Customer struct {
	Base
	Email string `db:"email" json:"email"`
	Name  string `db:"name" json:"name"`
}

// Case is a second-opinion request. It cannot exist without consent.
type Case struct {
	Base
	CaseNumber      string        `db:"case_number" json:"case_number"`
	CustomerID      uuid.UUID     `db:"customer_id" json:"customer_id"`
	PatientName     string        `db:"patient_name" json:"patient_name"`
	DateOfBirth     time.Time     `db:"date_of_birth" json:"date_of_birth"`
	Gender          string        `db:"gender" json:"gender,omitempty"`
	DiseaseType     *Subspecialty `db:"disease_type" json:"disease_type,omitempty"`
	Description     string        `db:"description" json:"description,omitempty"`
	ConsentAccepted bool          `db:"consent_accepted" json:"consent_accepted"`
}

// CaseIntake is the payload a customer stages before the case is created.
type CaseIntake struct {
	PatientName     string    `json:"patient_name" validate:"required,max=200"`
	DateOfBirth     time.Time `json:"date_of_birth" validate:"required"`
	Gender          string    `json:"gender" validate:"omitempty,oneof=female male other undisclosed"`
	DiseaseType     string    `json:"disease_type" validate:"omitempty,max=100"`
	Description     string    `json:"description" validate:"max=5000"`
	ConsentAccepted bool      `json:"consent_accepted" validate:"eq=true"`
}

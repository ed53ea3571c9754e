// Package records supplies the student and school details that certificate
// templates bind against.
package records

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when no student matches an admission number.
var ErrNotFound = errors.New("records: student not found")

// Source looks up students by admission number.
type Source interface {
	Student(ctx context.Context, admissionNo string) (Student, error)
}

// School identifies the issuing institution.
type School struct {
	Name        string `yaml:"name" json:"name"`
	Address     string `yaml:"address" json:"address"`
	Place       string `yaml:"place" json:"place"`
	Affiliation string `yaml:"affiliation" json:"affiliation"`
	Code        string `yaml:"code" json:"code"`
	Principal   string `yaml:"principal" json:"principal"`
	Phone       string `yaml:"phone" json:"phone"`
	Email       string `yaml:"email" json:"email"`
	Logo        string `yaml:"logo" json:"logo"`
}

// Merge returns s with every empty field taken from fallback.
func (s School) Merge(fallback School) School {
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = src
		}
	}
	fill(&s.Name, fallback.Name)
	fill(&s.Address, fallback.Address)
	fill(&s.Place, fallback.Place)
	fill(&s.Affiliation, fallback.Affiliation)
	fill(&s.Code, fallback.Code)
	fill(&s.Principal, fallback.Principal)
	fill(&s.Phone, fallback.Phone)
	fill(&s.Email, fallback.Email)
	fill(&s.Logo, fallback.Logo)
	return s
}

// Data returns the binding map exposed to templates as ${school.*}.
func (s School) Data() map[string]any {
	return map[string]any{
		"name":        s.Name,
		"address":     s.Address,
		"place":       s.Place,
		"affiliation": s.Affiliation,
		"code":        s.Code,
		"principal":   s.Principal,
		"phone":       s.Phone,
		"email":       s.Email,
		"logo":        s.Logo,
	}
}

// Student is one pupil as recorded in the admission register.
// Dates are kept as strings; the date filters accept any layout words.ParseDate does.
type Student struct {
	AdmissionNo   string `yaml:"admission_no" json:"admission_no"`
	Name          string `yaml:"name" json:"name"`
	Gender        string `yaml:"gender" json:"gender"`
	Father        string `yaml:"father" json:"father"`
	Mother        string `yaml:"mother" json:"mother"`
	DateOfBirth   string `yaml:"dob" json:"dob"`
	Class         string `yaml:"class" json:"class"`
	Section       string `yaml:"section" json:"section"`
	Session       string `yaml:"session" json:"session"`
	AdmittedOn    string `yaml:"admitted_on" json:"admitted_on"`
	AdmittedClass string `yaml:"admitted_class" json:"admitted_class"`
	LeftOn        string `yaml:"left_on" json:"left_on"`
	Nationality   string `yaml:"nationality" json:"nationality"`
	Religion      string `yaml:"religion" json:"religion"`
	Category      string `yaml:"category" json:"category"`
	Conduct       string `yaml:"conduct" json:"conduct"`
	Reason        string `yaml:"reason" json:"reason"`
	Remarks       string `yaml:"remarks" json:"remarks"`
	FeesPaidUpTo  string `yaml:"fees_paid_up_to" json:"fees_paid_up_to"`
}

// Relation returns "son", "daughter" or "ward" according to Gender.
func (s Student) Relation() string {
	switch gender(s.Gender) {
	case male:
		return "son"
	case female:
		return "daughter"
	}
	return "ward"
}

// Pronoun returns the subject pronoun.
func (s Student) Pronoun() string {
	switch gender(s.Gender) {
	case male:
		return "he"
	case female:
		return "she"
	}
	return "they"
}

// Possessive returns the possessive determiner.
func (s Student) Possessive() string {
	switch gender(s.Gender) {
	case male:
		return "his"
	case female:
		return "her"
	}
	return "their"
}

// Guardian names the father, falling back to the mother.
func (s Student) Guardian() string {
	if s.Father != "" {
		return s.Father
	}
	return s.Mother
}

// Data returns the binding map exposed to templates as ${student.*},
// including the derived relation, pronoun, possessive and guardian fields.
func (s Student) Data() map[string]any {
	return map[string]any{
		"admission_no":    s.AdmissionNo,
		"name":            s.Name,
		"gender":          s.Gender,
		"father":          s.Father,
		"mother":          s.Mother,
		"guardian":        s.Guardian(),
		"dob":             s.DateOfBirth,
		"class":           s.Class,
		"section":         s.Section,
		"session":         s.Session,
		"admitted_on":     s.AdmittedOn,
		"admitted_class":  s.AdmittedClass,
		"left_on":         s.LeftOn,
		"nationality":     s.Nationality,
		"religion":        s.Religion,
		"category":        s.Category,
		"conduct":         s.Conduct,
		"reason":          s.Reason,
		"remarks":         s.Remarks,
		"fees_paid_up_to": s.FeesPaidUpTo,
		"relation":        s.Relation(),
		"pronoun":         s.Pronoun(),
		"possessive":      s.Possessive(),
	}
}

// Validate reports missing identifying fields.
func (s Student) Validate() error {
	if strings.TrimSpace(s.AdmissionNo) == "" {
		return errors.Errorf("student %q: missing admission number", s.Name)
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.Errorf("student %s: missing name", s.AdmissionNo)
	}
	return nil
}

type sex int

const (
	unknown sex = iota
	male
	female
)

func gender(s string) sex {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male", "boy":
		return male
	case "f", "female", "girl":
		return female
	}
	return unknown
}

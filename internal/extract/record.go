package extract

import (
	"fmt"
	"strings"
)

// Source names the path that produced a field.
type Source string

const (
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// Field is one populated record value.
type Field struct {
	Value      string  `json:"value" yaml:"value"`
	Source     Source  `json:"source" yaml:"source"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Record field names, in schema order.
const (
	FieldName        = "name"
	FieldTitle       = "title"
	FieldCompany     = "company"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldMobile      = "mobile"
	FieldWebsite     = "website"
	FieldAddress     = "address"
	FieldUniversity  = "university"
	FieldDepartment  = "department"
	FieldLanguage    = "language"
	FieldSocialMedia = "social_media"
	FieldNotes       = "notes"
	FieldOther       = "other"
)

// FieldNames lists every record field in schema order.
var FieldNames = []string{
	FieldName, FieldTitle, FieldCompany, FieldEmail, FieldPhone, FieldMobile,
	FieldWebsite, FieldAddress, FieldUniversity, FieldDepartment, FieldLanguage,
	FieldSocialMedia, FieldNotes, FieldOther,
}

// IsFieldName reports whether name is a record field.
func IsFieldName(name string) bool {
	for _, n := range FieldNames {
		if n == name {
			return true
		}
	}
	return false
}

// ContactRecord is the structured contact. Absent fields are nil and
// serialize as null.
type ContactRecord struct {
	Name        *Field `json:"name" yaml:"name"`
	Title       *Field `json:"title" yaml:"title"`
	Company     *Field `json:"company" yaml:"company"`
	Email       *Field `json:"email" yaml:"email"`
	Phone       *Field `json:"phone" yaml:"phone"`
	Mobile      *Field `json:"mobile" yaml:"mobile"`
	Website     *Field `json:"website" yaml:"website"`
	Address     *Field `json:"address" yaml:"address"`
	University  *Field `json:"university" yaml:"university"`
	Department  *Field `json:"department" yaml:"department"`
	Language    *Field `json:"language" yaml:"language"`
	SocialMedia *Field `json:"social_media" yaml:"social_media"`
	Notes       *Field `json:"notes" yaml:"notes"`
	Other       *Field `json:"other" yaml:"other"`
}

func (r *ContactRecord) slot(name string) **Field {
	switch name {
	case FieldName:
		return &r.Name
	case FieldTitle:
		return &r.Title
	case FieldCompany:
		return &r.Company
	case FieldEmail:
		return &r.Email
	case FieldPhone:
		return &r.Phone
	case FieldMobile:
		return &r.Mobile
	case FieldWebsite:
		return &r.Website
	case FieldAddress:
		return &r.Address
	case FieldUniversity:
		return &r.University
	case FieldDepartment:
		return &r.Department
	case FieldLanguage:
		return &r.Language
	case FieldSocialMedia:
		return &r.SocialMedia
	case FieldNotes:
		return &r.Notes
	case FieldOther:
		return &r.Other
	}
	return nil
}

// Get returns the named field, or nil when absent or unknown.
func (r *ContactRecord) Get(name string) *Field {
	if r == nil {
		return nil
	}
	if s := r.slot(name); s != nil {
		return *s
	}
	return nil
}

// Set assigns the named field. A nil f clears it.
func (r *ContactRecord) Set(name string, f *Field) error {
	s := r.slot(name)
	if s == nil {
		return fmt.Errorf("unknown record field %q", name)
	}
	*s = f
	return nil
}

// Value returns the named field's value, or "" when absent.
func (r *ContactRecord) Value(name string) string {
	if f := r.Get(name); f != nil {
		return f.Value
	}
	return ""
}

// Extracted returns the names of populated fields, excluding the catch-all
// "other", in schema order.
func (r *ContactRecord) Extracted() []string {
	var out []string
	for _, n := range FieldNames {
		if n == FieldOther {
			continue
		}
		if r.Get(n) != nil {
			out = append(out, n)
		}
	}
	return out
}

// MeanConfidence is the mean confidence over extracted fields, 0 when none.
func (r *ContactRecord) MeanConfidence() float64 {
	names := r.Extracted()
	if len(names) == 0 {
		return 0
	}
	var sum float64
	for _, n := range names {
		sum += r.Get(n).Confidence
	}
	return sum / float64(len(names))
}

// DisplayName formats the record for listings: "Name (Company)", else the
// name, else the company, else fallback.
func (r *ContactRecord) DisplayName(fallback string) string {
	name := strings.TrimSpace(r.Value(FieldName))
	company := strings.TrimSpace(r.Value(FieldCompany))
	switch {
	case name != "" && company != "":
		return fmt.Sprintf("%s (%s)", name, company)
	case name != "":
		return name
	case company != "":
		return company
	}
	return fallback
}

package export

import (
	"github.com/MeKo-Tech/cardex/internal/extract"
	"github.com/MeKo-Tech/cardex/internal/pipeline"
)

// Contact is the flat exported contact. Absent fields are null.
type Contact struct {
	Name        *string `json:"name" yaml:"name"`
	Title       *string `json:"title" yaml:"title"`
	Company     *string `json:"company" yaml:"company"`
	Email       *string `json:"email" yaml:"email"`
	Phone       *string `json:"phone" yaml:"phone"`
	Mobile      *string `json:"mobile" yaml:"mobile"`
	Website     *string `json:"website" yaml:"website"`
	Address     *string `json:"address" yaml:"address"`
	University  *string `json:"university" yaml:"university"`
	Department  *string `json:"department" yaml:"department"`
	Language    *string `json:"language" yaml:"language"`
	SocialMedia *string `json:"social_media" yaml:"social_media"`
	Notes       *string `json:"notes" yaml:"notes"`
	Other       *string `json:"other" yaml:"other"`
}

// ContactOf flattens a record to its values.
func ContactOf(rec *extract.ContactRecord) Contact {
	v := func(name string) *string {
		if f := rec.Get(name); f != nil {
			s := f.Value
			return &s
		}
		return nil
	}
	return Contact{
		Name:        v(extract.FieldName),
		Title:       v(extract.FieldTitle),
		Company:     v(extract.FieldCompany),
		Email:       v(extract.FieldEmail),
		Phone:       v(extract.FieldPhone),
		Mobile:      v(extract.FieldMobile),
		Website:     v(extract.FieldWebsite),
		Address:     v(extract.FieldAddress),
		University:  v(extract.FieldUniversity),
		Department:  v(extract.FieldDepartment),
		Language:    v(extract.FieldLanguage),
		SocialMedia: v(extract.FieldSocialMedia),
		Notes:       v(extract.FieldNotes),
		Other:       v(extract.FieldOther),
	}
}

// Document is the exported form of one processed card.
type Document struct {
	Source        string          `json:"source,omitempty" yaml:"source,omitempty"`
	Status        pipeline.Status `json:"status" yaml:"status"`
	Reason        string          `json:"reason,omitempty" yaml:"reason,omitempty"`
	Contact       Contact         `json:"contact" yaml:"contact"`
	ExtractedText string          `json:"extracted_text" yaml:"extracted_text"`
	Confidence    float64         `json:"confidence" yaml:"confidence"`
	// Details carries the full pipeline result when requested.
	Details *pipeline.Result `json:"details,omitempty" yaml:"details,omitempty"`
}

// NewDocument converts a pipeline result.
func NewDocument(res *pipeline.Result, details bool) Document {
	d := Document{
		Source:        res.Source,
		Status:        res.Status,
		Reason:        res.Reason,
		Contact:       ContactOf(res.Record),
		ExtractedText: res.Text,
		Confidence:    res.OverallConfidence,
	}
	if details {
		d.Details = res
	}
	return d
}

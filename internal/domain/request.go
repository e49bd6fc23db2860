package domain

import "strings"

// Document type values produced by the extraction collaborator. Anything
// else is treated as a generic document by the planner.
const (
	DocumentTypeBenefit   = "benefit"
	DocumentTypeProcedure = "procedure"
)

// BenefitInfo summarizes a monetary benefit described by the document.
type BenefitInfo struct {
	Amount      string `json:"amount,omitempty"`
	Eligibility string `json:"eligibility,omitempty"`
	Deadline    string `json:"deadline,omitempty"`
}

// ProcedureStep is one ordered action of an administrative procedure.
type ProcedureStep struct {
	Order  int    `json:"order"`
	Action string `json:"action"`
}

// ProcedureInfo describes the application procedure extracted from the document.
type ProcedureInfo struct {
	Steps             []ProcedureStep `json:"steps,omitempty"`
	RequiredDocuments []string        `json:"required_documents,omitempty"`
	Deadline          string          `json:"deadline,omitempty"`
}

// ContactInfo is the office to contact about the document.
type ContactInfo struct {
	Department string `json:"department,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// Personalization carries optional, user-supplied profile hints. All of its
// text is untrusted input and is sanitized before it reaches a prompt.
type Personalization struct {
	DisplayName    string   `json:"display_name,omitempty"`
	AgeGroup       string   `json:"age_group,omitempty"`
	Occupation     string   `json:"occupation,omitempty"`
	Interests      []string `json:"interests,omitempty"`
	HouseholdNotes string   `json:"household_notes,omitempty"`
}

// Empty reports whether no personalization field is set.
func (p *Personalization) Empty() bool {
	if p == nil {
		return true
	}
	return strings.TrimSpace(p.DisplayName) == "" &&
		strings.TrimSpace(p.AgeGroup) == "" &&
		strings.TrimSpace(p.Occupation) == "" &&
		len(p.Interests) == 0 &&
		strings.TrimSpace(p.HouseholdNotes) == ""
}

// MangaRequest is the immutable input of a job: the structured extraction of
// an administrative document plus optional personalization.
type MangaRequest struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Summary string `json:"summary"`

	DocumentType string   `json:"document_type,omitempty"`
	Target       string   `json:"target,omitempty"`
	KeyPoints    []string `json:"key_points,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	Tips         []string `json:"tips,omitempty"`

	Benefit   *BenefitInfo   `json:"benefit,omitempty"`
	Procedure *ProcedureInfo `json:"procedure,omitempty"`
	Contact   *ContactInfo   `json:"contact,omitempty"`

	SearchContext []string `json:"search_context,omitempty"`

	Personalization *Personalization `json:"personalization,omitempty"`
}

// Validate checks the fields required before a job may be created.
func (r *MangaRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return ErrMissingField("url")
	}
	if strings.TrimSpace(r.Title) == "" {
		return ErrMissingField("title")
	}
	if strings.TrimSpace(r.Summary) == "" {
		return ErrMissingField("summary")
	}
	return nil
}

package register

import (
	"github.com/dhawalhost/riskregister/internal/risk"
)

// CreateInput holds the fields of a new risk. A DepartmentUser may omit
// DepartmentID; it defaults to their own department.
type CreateInput struct {
	DepartmentID                string `json:"department_id"`
	ExpectedProblem             string `json:"expected_problem" validate:"required,max=5000"`
	Impact                      string `json:"impact" validate:"required,max=5000"`
	Severity                    string `json:"severity" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	EstimatedResolutionDuration int    `json:"estimated_resolution_duration" validate:"required,min=1,max=10000"`
	ResolutionDurationUnit      string `json:"resolution_duration_unit" validate:"required,oneof=HOURS DAYS WEEKS"`
	MitigationNotes             string `json:"mitigation_notes" validate:"max=5000"`
}

// EditInput is a partial update of the descriptive fields. Department and
// status are not editable here.
type EditInput struct {
	ExpectedProblem             *string `json:"expected_problem" validate:"omitnil,min=1,max=5000"`
	Impact                      *string `json:"impact" validate:"omitnil,min=1,max=5000"`
	Severity                    *string `json:"severity" validate:"omitnil,oneof=LOW MEDIUM HIGH CRITICAL"`
	EstimatedResolutionDuration *int    `json:"estimated_resolution_duration" validate:"omitnil,min=1,max=10000"`
	ResolutionDurationUnit      *string `json:"resolution_duration_unit" validate:"omitnil,oneof=HOURS DAYS WEEKS"`
	MitigationNotes             *string `json:"mitigation_notes" validate:"omitnil,max=5000"`
}

func (in EditInput) empty() bool {
	return in.ExpectedProblem == nil && in.Impact == nil && in.Severity == nil &&
		in.EstimatedResolutionDuration == nil && in.ResolutionDurationUnit == nil && in.MitigationNotes == nil
}

func (in EditInput) apply(r *risk.Risk) {
	if in.ExpectedProblem != nil {
		r.ExpectedProblem = *in.ExpectedProblem
	}
	if in.Impact != nil {
		r.Impact = *in.Impact
	}
	if in.Severity != nil {
		r.Severity = risk.Severity(*in.Severity)
	}
	if in.EstimatedResolutionDuration != nil {
		r.EstimatedResolutionDuration = *in.EstimatedResolutionDuration
	}
	if in.ResolutionDurationUnit != nil {
		r.ResolutionDurationUnit = risk.DurationUnit(*in.ResolutionDurationUnit)
	}
	if in.MitigationNotes != nil {
		r.MitigationNotes = *in.MitigationNotes
	}
}

// ListFilter narrows a listing. The caller's role further restricts it.
type ListFilter struct {
	DepartmentID string
	Severity     string
	Status       string
	Search       string
	Limit        int
	Offset       int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

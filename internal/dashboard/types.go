// Package dashboard computes risk statistics for the scope a caller may see.
package dashboard

import (
	"context"
	"math"

	"github.com/dhawalhost/riskregister/internal/risk"
)

// Scope values reported in a Summary.
const (
	ScopeAll        = "all"
	ScopeDepartment = "department"
	ScopeNone       = "none"
)

const recentLimit = 5

// Bucket is one status × severity group of risks.
type Bucket struct {
	Status   string `db:"status"`
	Severity string `db:"severity"`
	Count    int    `db:"n"`
	Locked   int    `db:"locked_n"`
	Hours    int64  `db:"hours"`
}

// DepartmentSummary is one row of the per-department breakdown.
type DepartmentSummary struct {
	DepartmentID string `json:"department_id" db:"id"`
	Code         string `json:"code" db:"code"`
	Name         string `json:"name" db:"name"`
	Total        int    `json:"total_risks" db:"total"`
	Open         int    `json:"open_risks" db:"open"`
	Critical     int    `json:"critical_risks" db:"critical"`
}

// Summary is the dashboard for one caller.
type Summary struct {
	Scope              string              `json:"scope"`
	DepartmentID       string              `json:"department_id,omitempty"`
	Total              int                 `json:"total_risks"`
	Open               int                 `json:"open_risks"`
	Critical           int                 `json:"critical_risks"`
	Locked             int                 `json:"locked_risks"`
	ByStatus           map[string]int      `json:"by_status"`
	BySeverity         map[string]int      `json:"by_severity"`
	AvgResolutionHours float64             `json:"avg_resolution_hours"`
	Departments        []DepartmentSummary `json:"departments,omitempty"`
	Recent             []risk.Risk         `json:"recent"`
}

// Store aggregates risk counts. An empty departmentID covers every department.
type Store interface {
	Buckets(ctx context.Context, departmentID string) ([]Bucket, error)
	Departments(ctx context.Context) ([]DepartmentSummary, error)
}

// RecentLister returns the newest risks matching a filter.
type RecentLister interface {
	List(ctx context.Context, filter risk.Filter) ([]risk.Risk, int, error)
}

func emptySummary(scope string) Summary {
	s := Summary{
		Scope:      scope,
		ByStatus:   make(map[string]int, len(risk.Statuses)),
		BySeverity: make(map[string]int, len(risk.Severities)),
		Recent:     []risk.Risk{},
	}
	for _, st := range risk.Statuses {
		s.ByStatus[string(st)] = 0
	}
	for _, sev := range risk.Severities {
		s.BySeverity[string(sev)] = 0
	}
	return s
}

// fold adds the buckets into s and derives the average resolution time.
func (s *Summary) fold(buckets []Bucket) {
	var hours int64
	for _, b := range buckets {
		s.Total += b.Count
		s.Locked += b.Locked
		s.ByStatus[b.Status] += b.Count
		s.BySeverity[b.Severity] += b.Count
		if b.Status == string(risk.StatusOpen) {
			s.Open += b.Count
		}
		if b.Severity == string(risk.SeverityCritical) {
			s.Critical += b.Count
		}
		hours += b.Hours
	}
	if s.Total > 0 {
		s.AvgResolutionHours = math.Round(float64(hours)/float64(s.Total)*10) / 10
	}
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Job is one field-service work order synced from the Zuper API.
//
// Source timestamps are stored as the API returns them (ISO-8601 strings) so
// that differential sync can compare them lexically against the cutoff.
type Job struct {
	JobUID            string    `gorm:"primaryKey;size:64"`
	JobNumber         string    `gorm:"size:64;index:idx_jobs_job_number"`
	Title             string    `gorm:"size:512"`
	Category          string    `gorm:"size:128;index"`
	Status            string    `gorm:"size:64"`
	CustomerName      string    `gorm:"size:256"`
	OrganizationUID   string    `gorm:"size:64;index"`
	OrganizationName  string    `gorm:"size:256;index:idx_jobs_completed_org,priority:2;index:idx_jobs_created_org,priority:2;index:idx_jobs_org_name"`
	ServiceTeam       *string   `gorm:"size:128;index:idx_jobs_completed_team,priority:2"`
	AssetName         string    `gorm:"size:128;index"`
	CreatedAt         string    `gorm:"size:40;index:idx_jobs_created_org,priority:1"`
	UpdatedAt         string    `gorm:"size:40"`
	CompletedAt       *string   `gorm:"size:40;index:idx_jobs_completed_org,priority:1;index:idx_jobs_completed_team,priority:1"`
	HasLineItems      bool      `gorm:"default:false"`
	HasChecklistParts bool      `gorm:"default:false"`
	HasNetsuiteID     bool      `gorm:"default:false"`
	NetsuiteID        *string   `gorm:"size:128"`
	JiraLink          *string   `gorm:"size:512"`
	SlackLink         *string   `gorm:"size:512"`
	SyncedAt          time.Time `gorm:"index"`

	LineItems      []LineItem       `gorm:"foreignKey:JobUID;references:JobUID"`
	ChecklistParts []ChecklistPart  `gorm:"foreignKey:JobUID;references:JobUID"`
	CustomFields   []CustomField    `gorm:"foreignKey:JobUID;references:JobUID"`
	Flags          []ValidationFlag `gorm:"foreignKey:JobUID;references:JobUID"`
}

// LineItem is a billable part or service recorded against a job.
type LineItem struct {
	ID       uint            `gorm:"primaryKey;autoIncrement"`
	JobUID   string          `gorm:"size:64;not null;index"`
	Name     string          `gorm:"size:256"`
	Code     string          `gorm:"size:128"`
	Serials  string          `gorm:"type:text"`
	Quantity decimal.Decimal `gorm:"type:decimal(12,3)"`
	Price    decimal.Decimal `gorm:"type:decimal(12,2)"`
	Type     string          `gorm:"size:64"`
}

// TableName overrides the default table name.
func (LineItem) TableName() string { return "job_line_items" }

// ChecklistPart is a serial number mined from a free-text checklist answer.
type ChecklistPart struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	JobUID     string `gorm:"size:64;not null;index"`
	Serial     string `gorm:"size:64;index"`
	Question   string `gorm:"type:text"`
	Answer     string `gorm:"size:800"`
	StatusName string `gorm:"size:64"`
}

// TableName overrides the default table name.
func (ChecklistPart) TableName() string { return "job_checklist_parts" }

// ChecklistAnswer keeps the full text of every non-empty checklist answer
// so part searches can match words that are not serial numbers.
type ChecklistAnswer struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	JobUID     string `gorm:"size:64;not null;index"`
	Question   string `gorm:"type:text"`
	Answer     string `gorm:"type:text"`
	StatusName string `gorm:"size:64"`
}

// TableName overrides the default table name.
func (ChecklistAnswer) TableName() string { return "job_checklist_text" }

// CustomField is a label/value/type triple carried through from the source.
type CustomField struct {
	ID     uint   `gorm:"primaryKey;autoIncrement"`
	JobUID string `gorm:"size:64;not null;index"`
	Label  string `gorm:"size:256"`
	Value  string `gorm:"type:text"`
	Type   string `gorm:"size:64"`
}

// TableName overrides the default table name.
func (CustomField) TableName() string { return "job_custom_fields" }

// Organization is a customer organization referenced by jobs.
type Organization struct {
	OrganizationUID string `gorm:"primaryKey;size:64"`
	Name            string `gorm:"size:256;index"`
	UpdatedAt       time.Time
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// Flag types produced by the validation rules.
const (
	FlagMissingNetsuiteID        = "missing_netsuite_id"
	FlagPartsReplacedNoLineItems = "parts_replaced_no_line_items"
	SeverityError                = "error"
	SeverityWarning              = "warning"
)

// ValidationFlag is a stored validation finding attached to a job. Resolution
// is set only by operator action.
type ValidationFlag struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	JobUID      string `gorm:"size:64;not null;index"`
	FlagType    string `gorm:"size:64;not null;index"`
	Severity    string `gorm:"size:16;default:error"`
	Message     string `gorm:"type:text"`
	Details     datatypes.JSON
	Fingerprint string `gorm:"size:64"`
	IsResolved  bool   `gorm:"default:false;index"`
	ResolvedAt  *time.Time
	CreatedAt   time.Time
}

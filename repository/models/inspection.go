package models

import "time"

// Inspection results.
const (
	ResultPass           = "pass"
	ResultFail           = "fail"
	ResultCosmeticDefect = "cosmetic_defect"
	ResultRework         = "rework"
)

// Inspection is one recorded result for a (panel, station) pair. Records are
// append-only: they are never updated or deleted after write. Attempt scopes
// the uniqueness to a rework cycle, so a re-admitted panel can be
// re-inspected at its failed station without touching the original record.
type Inspection struct {
	ID          string     `gorm:"column:inspection_id;primaryKey;type:varchar(50)"`
	PanelSerial string     `gorm:"column:panel_serial;type:varchar(16);uniqueIndex:idx_panel_station_attempt;not null"`
	Panel       *Panel     `gorm:"foreignKey:PanelSerial"`
	StationID   int        `gorm:"column:station_id;uniqueIndex:idx_panel_station_attempt;not null"`
	Attempt     int        `gorm:"column:attempt;uniqueIndex:idx_panel_station_attempt;not null;default:0"`
	InspectorID string     `gorm:"column:inspector_id;type:varchar(50);index"`
	Inspector   *Inspector `gorm:"foreignKey:InspectorID"`
	Result      string     `gorm:"column:result;type:varchar(20);not null"`
	// FailedCriteria is a JSON-encoded list of criterion descriptions; empty
	// unless the result requires it.
	FailedCriteria string    `gorm:"column:failed_criteria;type:text"`
	Notes          string    `gorm:"column:notes;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Inspection) TableName() string { return "inspections" }

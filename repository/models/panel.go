package models

import "time"

// Panel lifecycle statuses.
const (
	PanelStatusPending    = "pending"
	PanelStatusInProgress = "in_progress"
	PanelStatusCompleted  = "completed"
	PanelStatusFailed     = "failed"
	PanelStatusRework     = "rework"
)

// Panel represents a single manufactured unit moving through the stations.
// The serial number doubles as the primary key; panels are never deleted, so
// terminal states stay queryable for traceability.
type Panel struct {
	SerialNumber   string `gorm:"column:serial_number;primaryKey;type:varchar(16)"`
	PanelType      int    `gorm:"column:panel_type;not null"`
	Line           string `gorm:"column:line;type:varchar(1);not null"`
	Status         string `gorm:"column:status;type:varchar(20);not null;default:'pending'"`
	CurrentStation *int   `gorm:"column:current_station"`

	Station1CompletedAt *time.Time `gorm:"column:station1_completed_at"`
	Station2CompletedAt *time.Time `gorm:"column:station2_completed_at"`
	Station3CompletedAt *time.Time `gorm:"column:station3_completed_at"`
	Station4CompletedAt *time.Time `gorm:"column:station4_completed_at"`

	// Electrical readings stay null until the performance station records
	// them.
	Wattage *float64 `gorm:"column:wattage;type:decimal(8,2)"`
	Vmp     *float64 `gorm:"column:vmp;type:decimal(8,2)"`
	Imp     *float64 `gorm:"column:imp;type:decimal(8,2)"`

	QualityNotes string `gorm:"column:quality_notes;type:text"`
	ReworkReason string `gorm:"column:rework_reason;type:text"`
	// ReworkCycle counts re-admissions; inspection attempts are scoped to it.
	ReworkCycle int `gorm:"column:rework_cycle;not null;default:0"`

	OrderID string              `gorm:"column:order_id;type:varchar(50);index;not null"`
	Order   *ManufacturingOrder `gorm:"foreignKey:OrderID"`

	PalletID *string `gorm:"column:pallet_id;type:varchar(50);index"`
	Pallet   *Pallet `gorm:"foreignKey:PalletID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	// Relationships
	Inspections []Inspection `gorm:"foreignKey:PanelSerial"`
}

func (Panel) TableName() string { return "panels" }

// StationCompletedAt returns the completion timestamp for a station number.
func (p *Panel) StationCompletedAt(stationID int) *time.Time {
	switch stationID {
	case 1:
		return p.Station1CompletedAt
	case 2:
		return p.Station2CompletedAt
	case 3:
		return p.Station3CompletedAt
	case 4:
		return p.Station4CompletedAt
	}
	return nil
}

// SetStationCompletedAt records the completion timestamp for a station
// number.
func (p *Panel) SetStationCompletedAt(stationID int, t time.Time) {
	switch stationID {
	case 1:
		p.Station1CompletedAt = &t
	case 2:
		p.Station2CompletedAt = &t
	case 3:
		p.Station3CompletedAt = &t
	case 4:
		p.Station4CompletedAt = &t
	}
}

// HasAllStationTimestamps reports whether every station completion timestamp
// is set.
func (p *Panel) HasAllStationTimestamps() bool {
	return p.Station1CompletedAt != nil && p.Station2CompletedAt != nil &&
		p.Station3CompletedAt != nil && p.Station4CompletedAt != nil
}

// HasElectricalReadings reports whether all three readings are present.
func (p *Panel) HasElectricalReadings() bool {
	return p.Wattage != nil && p.Vmp != nil && p.Imp != nil
}

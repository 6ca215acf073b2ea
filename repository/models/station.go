package models

// Station mirrors the static registry into the database so inspections can
// reference their station by foreign key. Rows are written once by Seed and
// never mutated at runtime; the in-process registry in the station package
// stays the source of truth.
type Station struct {
	ID        int    `gorm:"column:station_id;primaryKey"`
	StageType string `gorm:"column:stage_type;type:varchar(30);not null"`

	// Relationships
	Criteria    []StationCriterion `gorm:"foreignKey:StationID"`
	Inspections []Inspection       `gorm:"foreignKey:StationID"`
}

func (Station) TableName() string { return "stations" }

// StationCriterion is one seeded check belonging to a station. Line is empty
// when the criterion applies on both production lines.
type StationCriterion struct {
	ID          uint   `gorm:"column:criterion_id;primaryKey;autoIncrement"`
	StationID   int    `gorm:"column:station_id;index;not null"`
	Position    int    `gorm:"column:position;not null"`
	Description string `gorm:"column:description;type:varchar(100);not null"`
	Kind        string `gorm:"column:kind;type:varchar(20);not null"`
	Line        string `gorm:"column:line;type:varchar(1)"`
}

func (StationCriterion) TableName() string { return "station_criteria" }

package models

// Inspector represents the station operators who record inspection results.
type Inspector struct {
	ID    string `gorm:"column:inspector_id;primaryKey;type:varchar(50)"`
	Name  string `gorm:"column:name;type:varchar(100);not null"`
	Shift string `gorm:"column:shift;type:varchar(20)"`

	// Relationships
	Inspections []Inspection `gorm:"foreignKey:InspectorID"`
}

func (Inspector) TableName() string { return "inspectors" }

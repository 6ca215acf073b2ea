package models

import "time"

// Pallet statuses.
const (
	PalletStatusInProgress = "in_progress"
	PalletStatusCompleted  = "completed"
)

// GridSize bounds pallet grid positions: 0 <= x,y < GridSize, row-major.
const GridSize = 20

// Standard pallet capacities per line; operators may open custom-capacity
// pallets for partial runs.
const (
	DefaultCapacityLineA = 25
	DefaultCapacityLineB = 26
)

// Pallet groups completed panels of one manufacturing order for shipping.
type Pallet struct {
	ID            string              `gorm:"column:pallet_id;primaryKey;type:varchar(50)"`
	OrderID       string              `gorm:"column:order_id;type:varchar(50);index;not null"`
	Order         *ManufacturingOrder `gorm:"foreignKey:OrderID"`
	Capacity      int                 `gorm:"column:capacity;not null"`
	AssignedCount int                 `gorm:"column:assigned_count;not null;default:0"`
	Status        string              `gorm:"column:status;type:varchar(20);not null;default:'in_progress'"`
	// ClosedManually marks a below-capacity close by explicit operator
	// intent. Closed pallets never reopen.
	ClosedManually bool `gorm:"column:closed_manually;not null;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	// Relationships
	Assignments []PalletAssignment `gorm:"foreignKey:PalletID"`
}

func (Pallet) TableName() string { return "pallets" }

// Full reports whether the pallet has reached capacity.
func (p *Pallet) Full() bool { return p.AssignedCount >= p.Capacity }

// PalletAssignment places one completed panel at a unique grid position on a
// pallet. A panel is assigned at most once.
type PalletAssignment struct {
	ID          uint    `gorm:"column:assignment_id;primaryKey;autoIncrement"`
	PalletID    string  `gorm:"column:pallet_id;type:varchar(50);uniqueIndex:idx_pallet_position;not null"`
	Pallet      *Pallet `gorm:"foreignKey:PalletID"`
	PanelSerial string  `gorm:"column:panel_serial;type:varchar(16);uniqueIndex;not null"`
	Panel       *Panel  `gorm:"foreignKey:PanelSerial"`
	PosX        int     `gorm:"column:pos_x;uniqueIndex:idx_pallet_position;not null"`
	PosY        int     `gorm:"column:pos_y;uniqueIndex:idx_pallet_position;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (PalletAssignment) TableName() string { return "pallet_assignments" }

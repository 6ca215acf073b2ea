// Package repository persists the workflow record sets in PostgreSQL via
// gorm. Every Store method is one database transaction: the whole write
// commits or none of it does, and storage failures surface as typed workflow
// errors the callers can switch on.
package repository

import (
	"context"
	"errors"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/quality-dot/solar-panel-production-tracking-sub010/repository/models"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/station"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/workflow"
)

// PostgreSQL error codes as constants
const (
	// Class 23 — Integrity Constraint Violation
	PgErrForeignKeyViolation = "23503" // foreign_key_violation
	PgErrUniqueViolation     = "23505" // unique_violation
	PgErrCheckViolation      = "23514" // check_violation
	PgErrNotNullViolation    = "23502" // not_null_violation

	// Class 40 — Transaction Rollback
	PgErrSerializationFailure = "40001" // serialization_failure
	PgErrTransactionRollback  = "40000" // transaction_rollback

	// Class 08 — Connection Exception
	PgErrConnectionException = "08000" // connection_exception
	PgErrConnectionFailure   = "08006" // connection_failure

	// Class 53 — Insufficient Resources
	PgErrInsufficientResources = "53000" // insufficient_resources
	PgErrDiskFull              = "53100" // disk_full
	PgErrOutOfMemory           = "53200" // out_of_memory

	// Class 57 — Operator Intervention
	PgErrAdminShutdown = "57P01" // admin_shutdown
	PgErrCrashShutdown = "57P02" // crash_shutdown
)

// Compile-time contract assertion.
var _ workflow.Store = (*Repository)(nil)

// Repository is the PostgreSQL-backed workflow store.
type Repository struct {
	db      *gorm.DB
	logger  cmtlog.Logger
	timeout time.Duration
}

// NewRepository creates a repository with the default per-call timeout.
func NewRepository(logger cmtlog.Logger) *Repository {
	return &Repository{
		logger:  logger,
		timeout: 10 * time.Second,
	}
}

// ConnectDB dials PostgreSQL, retrying for slow container start-ups.
func (r *Repository) ConnectDB(dsn string) error {
	var lastErr error
	for i := 0; i < 10; i++ {
		r.logger.Info("connecting to postgres", "attempt", i+1)
		db, err := gorm.Open(postgres.Open(dsn))
		if err == nil {
			r.db = db
			r.logger.Info("connected to postgres")
			return nil
		}
		lastErr = err
		r.logger.Error("connection attempt failed", "attempt", i+1, "err", err)
		time.Sleep(2 * time.Second)
	}
	return lastErr
}

// Migrate creates or updates every workflow table.
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.Inspector{},
		&models.Station{},
		&models.StationCriterion{},
		&models.ManufacturingOrder{},
		&models.Panel{},
		&models.Inspection{},
		&models.Pallet{},
		&models.PalletAssignment{},
	)
}

// Seed writes the static reference data: the station registry with its
// criteria, and a starter set of inspectors. Idempotent.
func (r *Repository) Seed() {
	var stationCount int64
	r.db.Model(&models.Station{}).Count(&stationCount)
	if stationCount > 0 {
		r.logger.Info("seed data already exists, skipping")
		return
	}

	r.logger.Info("seeding reference data")

	for _, def := range station.All() {
		row := models.Station{ID: def.ID, StageType: string(def.Stage)}
		if err := r.db.Create(&row).Error; err != nil {
			r.logger.Error("seeding station failed", "station", def.ID, "err", err)
			continue
		}
		for pos, crit := range def.Criteria {
			criterion := models.StationCriterion{
				StationID:   def.ID,
				Position:    pos + 1,
				Description: crit.Description,
				Kind:        string(crit.Kind),
				Line:        crit.Line,
			}
			if err := r.db.Create(&criterion).Error; err != nil {
				r.logger.Error("seeding criterion failed", "station", def.ID, "criterion", crit.Description, "err", err)
			}
		}
	}

	inspectors := []models.Inspector{
		{ID: "INSP-001", Name: "Ana Reyes", Shift: "day"},
		{ID: "INSP-002", Name: "Marcus Webb", Shift: "day"},
		{ID: "INSP-003", Name: "Priya Nair", Shift: "night"},
		{ID: "INSP-004", Name: "Tom Okafor", Shift: "night"},
	}
	for _, inspector := range inspectors {
		if err := r.db.Create(&inspector).Error; err != nil {
			r.logger.Error("seeding inspector failed", "inspector", inspector.ID, "err", err)
		}
	}

	r.logger.Info("seeding completed", "stations", len(station.All()), "inspectors", len(inspectors))
}

// wrapErr maps storage errors onto the workflow taxonomy. Duplicate-key
// mapping is context-dependent, so callers pass the kind a unique violation
// means for their write.
func (r *Repository) wrapErr(err error, what, id string, dupKind workflow.Kind) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return workflow.NewError(workflow.KindNotFound, "", "%s %s does not exist", what, id)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return workflow.WrapError(workflow.KindTransient, err, "storage timed out accessing %s %s", what, id)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case PgErrUniqueViolation:
			return workflow.WrapError(dupKind, err, "%s %s conflicts with an existing record", what, id)
		case PgErrSerializationFailure, PgErrTransactionRollback,
			PgErrConnectionException, PgErrConnectionFailure,
			PgErrInsufficientResources, PgErrDiskFull, PgErrOutOfMemory,
			PgErrAdminShutdown, PgErrCrashShutdown:
			return workflow.WrapError(workflow.KindTransient, err, "storage unavailable for %s %s", what, id)
		}
	}
	return workflow.WrapError(workflow.KindTransient, err, "storage error on %s %s", what, id)
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// Panels

func (r *Repository) CreatePanel(ctx context.Context, panel *models.Panel) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := r.db.WithContext(ctx).Create(panel).Error
	return r.wrapErr(err, "panel", panel.SerialNumber, workflow.KindDuplicateIdentifier)
}

func (r *Repository) GetPanel(ctx context.Context, serial string) (*models.Panel, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var panel models.Panel
	err := r.db.WithContext(ctx).Where("serial_number = ?", serial).First(&panel).Error
	if err != nil {
		return nil, r.wrapErr(err, "panel", serial, workflow.KindDuplicateIdentifier)
	}
	return &panel, nil
}

func (r *Repository) ListInspections(ctx context.Context, serial string) ([]models.Inspection, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var inspections []models.Inspection
	err := r.db.WithContext(ctx).
		Where("panel_serial = ?", serial).
		Order("created_at ASC").
		Find(&inspections).Error
	if err != nil {
		return nil, r.wrapErr(err, "panel", serial, workflow.KindDuplicateInspection)
	}
	return inspections, nil
}

func (r *Repository) ApplyTransition(ctx context.Context, panel *models.Panel, insp *models.Inspection, order *models.ManufacturingOrder) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	dbTx := r.db.WithContext(ctx).Begin()
	if dbTx.Error != nil {
		return r.wrapErr(dbTx.Error, "panel", panel.SerialNumber, workflow.KindDuplicateInspection)
	}

	if insp != nil {
		if err := dbTx.Create(insp).Error; err != nil {
			dbTx.Rollback()
			return r.wrapErr(err, "inspection", insp.ID, workflow.KindDuplicateInspection)
		}
	}
	if err := dbTx.Save(panel).Error; err != nil {
		dbTx.Rollback()
		return r.wrapErr(err, "panel", panel.SerialNumber, workflow.KindDuplicateInspection)
	}
	if order != nil {
		if err := dbTx.Save(order).Error; err != nil {
			dbTx.Rollback()
			return r.wrapErr(err, "order", order.ID, workflow.KindDuplicateInspection)
		}
	}
	if err := dbTx.Commit().Error; err != nil {
		return r.wrapErr(err, "panel", panel.SerialNumber, workflow.KindDuplicateInspection)
	}
	return nil
}

// Orders

func (r *Repository) CreateOrder(ctx context.Context, order *models.ManufacturingOrder) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := r.db.WithContext(ctx).Create(order).Error
	return r.wrapErr(err, "order", order.ID, workflow.KindDuplicateIdentifier)
}

func (r *Repository) GetOrder(ctx context.Context, id string) (*models.ManufacturingOrder, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var order models.ManufacturingOrder
	err := r.db.WithContext(ctx).Where("order_id = ?", id).First(&order).Error
	if err != nil {
		return nil, r.wrapErr(err, "order", id, workflow.KindDuplicateIdentifier)
	}
	return &order, nil
}

func (r *Repository) UpdateOrder(ctx context.Context, order *models.ManufacturingOrder) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := r.db.WithContext(ctx).Save(order).Error
	return r.wrapErr(err, "order", order.ID, workflow.KindDuplicateIdentifier)
}

func (r *Repository) ListPanelsByOrder(ctx context.Context, orderID string) ([]models.Panel, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var panels []models.Panel
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("serial_number ASC").
		Find(&panels).Error
	if err != nil {
		return nil, r.wrapErr(err, "order", orderID, workflow.KindDuplicateIdentifier)
	}
	return panels, nil
}

// Pallets

func (r *Repository) CreatePallet(ctx context.Context, pallet *models.Pallet) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := r.db.WithContext(ctx).Create(pallet).Error
	return r.wrapErr(err, "pallet", pallet.ID, workflow.KindDuplicateIdentifier)
}

func (r *Repository) GetPallet(ctx context.Context, id string) (*models.Pallet, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var pallet models.Pallet
	err := r.db.WithContext(ctx).Where("pallet_id = ?", id).First(&pallet).Error
	if err != nil {
		return nil, r.wrapErr(err, "pallet", id, workflow.KindDuplicateIdentifier)
	}
	return &pallet, nil
}

func (r *Repository) FindOpenPallet(ctx context.Context, orderID string) (*models.Pallet, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var pallet models.Pallet
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, models.PalletStatusInProgress).
		Order("created_at ASC").
		First(&pallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, r.wrapErr(err, "order", orderID, workflow.KindDuplicateIdentifier)
	}
	return &pallet, nil
}

func (r *Repository) UpdatePallet(ctx context.Context, pallet *models.Pallet) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := r.db.WithContext(ctx).Save(pallet).Error
	return r.wrapErr(err, "pallet", pallet.ID, workflow.KindDuplicateIdentifier)
}

func (r *Repository) ApplyAssignment(ctx context.Context, pallet *models.Pallet, asg *models.PalletAssignment, panel *models.Panel) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	dbTx := r.db.WithContext(ctx).Begin()
	if dbTx.Error != nil {
		return r.wrapErr(dbTx.Error, "pallet", pallet.ID, workflow.KindPrecondViolation)
	}

	if err := dbTx.Create(asg).Error; err != nil {
		dbTx.Rollback()
		return r.wrapErr(err, "assignment", asg.PanelSerial, workflow.KindPrecondViolation)
	}
	if err := dbTx.Save(pallet).Error; err != nil {
		dbTx.Rollback()
		return r.wrapErr(err, "pallet", pallet.ID, workflow.KindPrecondViolation)
	}
	if err := dbTx.Save(panel).Error; err != nil {
		dbTx.Rollback()
		return r.wrapErr(err, "panel", panel.SerialNumber, workflow.KindPrecondViolation)
	}
	if err := dbTx.Commit().Error; err != nil {
		return r.wrapErr(err, "pallet", pallet.ID, workflow.KindPrecondViolation)
	}
	return nil
}

func (r *Repository) ListAssignments(ctx context.Context, palletID string) ([]models.PalletAssignment, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var assignments []models.PalletAssignment
	err := r.db.WithContext(ctx).
		Where("pallet_id = ?", palletID).
		Order("assignment_id ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, r.wrapErr(err, "pallet", palletID, workflow.KindDuplicateIdentifier)
	}
	return assignments, nil
}

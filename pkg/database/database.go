package database

import (
	"fmt"
	"time"

	"github.com/pharmaops/doseflow/internal/config"
	"github.com/pharmaops/doseflow/internal/domain"
	"github.com/pharmaops/doseflow/internal/domain/control"
	"github.com/pharmaops/doseflow/internal/domain/dispensation"
	"github.com/pharmaops/doseflow/internal/domain/medication"
	"github.com/pharmaops/doseflow/internal/domain/patient"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		PrepareStmt:                              true,
		DisableForeignKeyConstraintWhenMigrating: false,
		DisableAutomaticPing:                     false,
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: false,
	}), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB, policy config.PolicyConfig, log *zap.Logger) error {
	log.Info("running database migrations")
	start := time.Now()

	schemas := []string{"pharmacy", "auth", "audit"} // logical namespace
	for _, schema := range schemas {
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)).Error; err != nil {
			return fmt.Errorf("creating schema %s: %w", schema, err)
		}
	}

	models := []any{
		&domain.User{},
		&domain.AuditLog{},
		&patient.Patient{},
		&medication.Medication{},
		&medication.DispensingConfig{},
		&dispensation.Dispensation{},
		&dispensation.Item{},
		&dispensation.InventoryMovement{},
		&control.DispensationControl{},
		&control.EarlyReleaseLog{},
		&control.MedicationInterval{},
		&control.IntervalPolicy{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}

	if err := seedIntervalPolicies(db, policy); err != nil {
		return fmt.Errorf("seeding interval policies: %w", err)
	}

	log.Info("migrations completed", zap.Duration("duration", time.Since(start)))
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []struct {
		name  string
		query string
	}{
		{
			name:  "idx_controls_active_pair",
			query: `CREATE UNIQUE INDEX IF NOT EXISTS idx_control_active_pair ON pharmacy.dispensation_controls (patient_id, medication_id) WHERE is_active AND deleted_at IS NULL`,
		},
		{
			name:  "idx_controls_upcoming",
			query: `CREATE INDEX IF NOT EXISTS idx_controls_upcoming ON pharmacy.dispensation_controls (next_allowed_date) WHERE is_active AND deleted_at IS NULL`,
		},
		// Medication search: GIN index for full-text search on the commercial name
		{
			name:  "idx_medications_name_search",
			query: `CREATE INDEX IF NOT EXISTS idx_medications_name_trgm ON pharmacy.medications USING gin (commercial_name gin_trgm_ops) WHERE deleted_at IS NULL`,
		},
		{
			name:  "idx_configs_active",
			query: `CREATE UNIQUE INDEX IF NOT EXISTS idx_configs_active ON pharmacy.dispensing_configs (medication_id) WHERE is_active`,
		},
		{
			name:  "idx_dispensations_patient_date",
			query: `CREATE INDEX IF NOT EXISTS idx_dispensations_patient_date ON pharmacy.dispensations (patient_id, dispensed_at DESC) WHERE deleted_at IS NULL`,
		},
	}

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS pg_trgm").Error; err != nil {
		return fmt.Errorf("creating pg_trgm extension: %w", err)
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.query).Error; err != nil {
			return fmt.Errorf("creating index %s: %w", idx.name, err)
		}
	}

	return nil
}

// seedIntervalPolicies writes the type-based default intervals so first
// dispensations of unconfigured medications resolve against a table, not
// code. Existing rows win: operators may tune them at runtime.
func seedIntervalPolicies(db *gorm.DB, policy config.PolicyConfig) error {
	defaults := []control.IntervalPolicy{
		{MedicationType: string(medication.TypeBasic), IntervalDays: policy.DefaultIntervalDays},
		{MedicationType: string(medication.TypeControlled), IntervalDays: policy.ControlledIntervalDays},
		{MedicationType: string(medication.TypePsychotropic), IntervalDays: policy.ControlledIntervalDays},
		{MedicationType: string(medication.TypeHighCost), IntervalDays: policy.HighCostIntervalDays},
	}

	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "medication_type"}},
		DoNothing: true,
	}).Create(&defaults).Error
}

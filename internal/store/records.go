package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

// serviceRow maps the technical_services table.
type serviceRow struct {
	ServiceID          uint       `gorm:"column:service_id;primaryKey;autoIncrement"`
	Folio              string     `gorm:"column:folio;size:50;uniqueIndex;not null"`
	Status             string     `gorm:"column:status;size:20;not null"`
	ReceptionDate      time.Time  `gorm:"column:reception_date;not null"`
	ServiceReason      string     `gorm:"column:service_reason;size:500;not null"`
	ServiceSummary     *string    `gorm:"column:service_summary;size:1000"`
	OnHoldReason       *string    `gorm:"column:on_hold_reason;size:255"`
	CancellationReason *string    `gorm:"column:cancellation_reason;size:255"`
	CompletionDate     *time.Time `gorm:"column:completion_date"`
	DeliveredAt        *time.Time `gorm:"column:delivered_at"`
	IsDelivered        bool       `gorm:"column:is_delivered;not null;default:false"`
}

func (serviceRow) TableName() string { return "technical_services" }

func rowFromRecord(rec models.ServiceRecord) serviceRow {
	return serviceRow{
		Folio:              rec.Folio,
		Status:             string(rec.Status),
		ReceptionDate:      rec.ReceptionDate,
		ServiceReason:      rec.ServiceReason,
		ServiceSummary:     rec.ServiceSummary,
		OnHoldReason:       rec.OnHoldReason,
		CancellationReason: rec.CancellationReason,
		CompletionDate:     rec.CompletionDate,
		DeliveredAt:        rec.DeliveredAt,
		IsDelivered:        rec.IsDelivered,
	}
}

func (r serviceRow) record() models.ServiceRecord {
	return models.ServiceRecord{
		Folio:              r.Folio,
		Status:             models.ServiceStatus(r.Status),
		ReceptionDate:      r.ReceptionDate,
		ServiceReason:      r.ServiceReason,
		ServiceSummary:     r.ServiceSummary,
		OnHoldReason:       r.OnHoldReason,
		CancellationReason: r.CancellationReason,
		CompletionDate:     r.CompletionDate,
		DeliveredAt:        r.DeliveredAt,
		IsDelivered:        r.IsDelivered,
	}
}

// GormServiceRepository reads technical services through GORM.
type GormServiceRepository struct {
	db *gorm.DB
}

// OpenServiceRepository opens the records database named by dsn. The driver
// is chosen with DetectDSNType; SQLite paths get their directory created.
func OpenServiceRepository(dsn string) (*GormServiceRepository, error) {
	if dsn == "" {
		return nil, fmt.Errorf("records DSN not set")
	}

	var dialector gorm.Dialector
	kind := DetectDSNType(dsn)
	switch kind {
	case DSNTypePostgres:
		dialector = postgres.Open(dsn)
	case DSNTypeMySQL:
		dialector = mysql.Open(strings.TrimPrefix(dsn, "mysql://"))
	case DSNTypeSQLite:
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), DefaultDirPermissions); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported records DSN type %q", kind)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		slog.Error("Failed to open records database", "error", err, "type", kind)
		return nil, fmt.Errorf("store: open records database (%s): %w", kind, err)
	}
	slog.Debug("Records database opened", "type", kind)
	return NewGormServiceRepository(db), nil
}

// NewGormServiceRepository wraps an open GORM connection.
func NewGormServiceRepository(db *gorm.DB) *GormServiceRepository {
	return &GormServiceRepository{db: db}
}

// AutoMigrate creates or updates the technical_services table.
func (r *GormServiceRepository) AutoMigrate() error {
	if err := r.db.AutoMigrate(&serviceRow{}); err != nil {
		return fmt.Errorf("store: migrate technical_services: %w", err)
	}
	return nil
}

// FindByFolio returns the record for folio, or nil if none exists.
func (r *GormServiceRepository) FindByFolio(ctx context.Context, folio string) (*models.ServiceRecord, error) {
	var rows []serviceRow
	err := r.db.WithContext(ctx).Where("folio = ?", folio).Limit(1).Find(&rows).Error
	if err != nil {
		slog.Error("GormServiceRepository FindByFolio failed", "error", err, "folio", folio)
		return nil, fmt.Errorf("failed to query service %s: %w", folio, err)
	}
	if len(rows) == 0 {
		slog.Debug("GormServiceRepository FindByFolio not found", "folio", folio)
		return nil, nil
	}
	rec := rows[0].record()
	slog.Debug("GormServiceRepository FindByFolio found", "folio", folio, "status", rec.Status)
	return &rec, nil
}

// Upsert inserts rec or replaces the row with the same folio.
func (r *GormServiceRepository) Upsert(ctx context.Context, rec models.ServiceRecord) error {
	row := rowFromRecord(rec)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "folio"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "reception_date", "service_reason", "service_summary", "on_hold_reason",
			"cancellation_reason", "completion_date", "delivered_at", "is_delivered",
		}),
	}).Create(&row).Error
	if err != nil {
		slog.Error("GormServiceRepository Upsert failed", "error", err, "folio", rec.Folio)
		return fmt.Errorf("failed to upsert service %s: %w", rec.Folio, err)
	}
	slog.Debug("GormServiceRepository Upsert succeeded", "folio", rec.Folio)
	return nil
}

// Count returns the number of stored services.
func (r *GormServiceRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&serviceRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count services: %w", err)
	}
	return n, nil
}

// Close closes the underlying connection pool.
func (r *GormServiceRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

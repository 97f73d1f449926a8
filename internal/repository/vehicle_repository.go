package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/plate-scan/internal/logging"
	"github.com/example/plate-scan/internal/metrics"
	"github.com/example/plate-scan/internal/registry"
)

// VehicleRecord represents a persisted vehicle registration.
type VehicleRecord struct {
	ID               int64  `gorm:"primaryKey"`
	Plate            string `gorm:"column:plate;uniqueIndex;size:16;not null"`
	OwnerName        string `gorm:"column:owner_name;not null"`
	OwnerPhone       string `gorm:"column:owner_phone;not null"`
	CarModel         string `gorm:"column:car_model;not null"`
	CarYear          string `gorm:"column:car_year;size:8;index;not null"`
	OwnerPhoto       string `gorm:"column:owner_photo;type:text;not null"`
	CarPhoto         string `gorm:"column:car_photo;type:text;not null"`
	RegistrationDate string `gorm:"column:registration_date;size:19;not null"`
}

// TableName overrides the default table name.
func (VehicleRecord) TableName() string {
	return "vehicles"
}

// Vehicle converts the row to the API type.
func (r VehicleRecord) Vehicle() registry.Vehicle {
	return registry.Vehicle{
		ID:               r.ID,
		Plate:            r.Plate,
		OwnerName:        r.OwnerName,
		OwnerPhone:       r.OwnerPhone,
		CarModel:         r.CarModel,
		CarYear:          r.CarYear,
		OwnerPhoto:       r.OwnerPhoto,
		CarPhoto:         r.CarPhoto,
		RegistrationDate: r.RegistrationDate,
	}
}

// statsLimit bounds the car-year histogram.
const statsLimit = 5

// normalizedPlate is the SQL form of plate.Normalize applied to the column.
const normalizedPlate = "REPLACE(REPLACE(UPPER(plate), '-', ''), ' ', '')"

// VehicleRepository provides persistence APIs for vehicle registrations.
type VehicleRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	metrics        *metrics.Registry
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewVehicleRepository creates a new repository instance.
func NewVehicleRepository(db *gorm.DB, logger *zap.Logger, m *metrics.Registry) *VehicleRepository {
	return &VehicleRepository{
		db:             db,
		logger:         logger.Named("vehicle_repository"),
		metrics:        m,
		retryAttempts:  3,
		initialBackoff: 100 * time.Millisecond,
		maxBackoff:     2 * time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *VehicleRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&VehicleRecord{})
	})
}

// List returns every vehicle, newest first.
func (r *VehicleRepository) List(ctx context.Context) ([]VehicleRecord, error) {
	defer r.metrics.ObserveQuery("list", time.Now())

	var records []VehicleRecord
	err := r.executeWithRetry(ctx, "repository.list", "", func() error {
		records = records[:0]
		return r.db.WithContext(ctx).Order("id DESC").Find(&records).Error
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Create inserts record and fills its ID. A plate that is already registered
// yields registry.ErrDuplicatePlate.
func (r *VehicleRepository) Create(ctx context.Context, record *VehicleRecord) error {
	defer r.metrics.ObserveQuery("create", time.Now())

	err := r.executeWithRetry(ctx, "repository.create", record.Plate, func() error {
		return translateError(r.db.WithContext(ctx).Create(record).Error)
	})
	if err != nil {
		return err
	}
	r.metrics.IncCreated()
	return nil
}

// FindByPlate retrieves the vehicle whose plate, with dashes and spaces
// removed and uppercased, equals normalized.
func (r *VehicleRepository) FindByPlate(ctx context.Context, normalized string) (*VehicleRecord, error) {
	defer r.metrics.ObserveQuery("find_by_plate", time.Now())

	var record VehicleRecord
	err := r.executeWithRetry(ctx, "repository.find_by_plate", normalized, func() error {
		return translateError(plateQuery(r.db.WithContext(ctx), normalized).First(&record).Error)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Delete removes the vehicle with id, or returns registry.ErrNotFound.
func (r *VehicleRepository) Delete(ctx context.Context, id int64) error {
	defer r.metrics.ObserveQuery("delete", time.Now())

	err := r.executeWithRetry(ctx, "repository.delete", "", func() error {
		res := r.db.WithContext(ctx).Delete(&VehicleRecord{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return registry.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.metrics.IncDeleted()
	return nil
}

// Stats counts vehicles and returns the five most common car years.
func (r *VehicleRepository) Stats(ctx context.Context) (*registry.Stats, error) {
	defer r.metrics.ObserveQuery("stats", time.Now())

	stats := &registry.Stats{}
	err := r.executeWithRetry(ctx, "repository.stats", "", func() error {
		db := r.db.WithContext(ctx)
		if err := db.Model(&VehicleRecord{}).Count(&stats.TotalVehicles).Error; err != nil {
			return err
		}
		stats.YearStats = stats.YearStats[:0]
		return yearStatsQuery(db).Scan(&stats.YearStats).Error
	})
	if err != nil {
		return nil, err
	}
	if stats.YearStats == nil {
		stats.YearStats = []registry.YearCount{}
	}
	return stats, nil
}

func plateQuery(db *gorm.DB, normalized string) *gorm.DB {
	return db.Where(normalizedPlate+" = ?", normalized)
}

func yearStatsQuery(db *gorm.DB) *gorm.DB {
	return db.Model(&VehicleRecord{}).
		Select("car_year AS year, COUNT(*) AS count").
		Group("car_year").
		Order("count DESC").
		Limit(statsLimit)
}

func (r *VehicleRepository) executeWithRetry(ctx context.Context, operation, plate string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, "")
	if plate != "" {
		opLogger = opLogger.With(zap.String("plate", plate))
	}

	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, "", ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if isAnswer(err) {
			return err
		}
		if !isTransientError(err) || attempt == attempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, "", err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, "", err)
}

// isAnswer reports errors that describe the data rather than a failure.
func isAnswer(err error) bool {
	return errors.Is(err, registry.ErrNotFound) || errors.Is(err, registry.ErrDuplicatePlate)
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return registry.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return registry.ErrDuplicatePlate
	default:
		return err
	}
}

// isUniqueViolation catches drivers that do not translate errors: Postgres
// SQLSTATE 23505 and the SQLite constraint message.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") || strings.Contains(msg, "UNIQUE constraint failed")
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}

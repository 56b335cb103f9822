package infrastructure

import (
	"context"
	"errors"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mateusmacedo/go-boarding/internal/boarding/domain"
	"github.com/mateusmacedo/go-boarding/pkg/application"
)

type GormPassengerRepository struct {
	db     *gorm.DB
	logger application.AppLogger
}

// NewGormPassengerRepository opens postgres at dsn and migrates the
// passenger_queue table.
func NewGormPassengerRepository(dsn string, logger application.AppLogger) (*GormPassengerRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return NewGormPassengerRepositoryFromDB(db, logger)
}

func NewGormPassengerRepositoryFromDB(db *gorm.DB, logger application.AppLogger) (*GormPassengerRepository, error) {
	if err := db.AutoMigrate(&domain.Passenger{}); err != nil {
		return nil, err
	}

	return &GormPassengerRepository{
		db:     db,
		logger: logger,
	}, nil
}

func (r *GormPassengerRepository) FetchAll(ctx context.Context, vehicleID string) ([]domain.Passenger, error) {
	var passengers []domain.Passenger

	if err := r.db.WithContext(ctx).Where("vehicle_id = ?", vehicleID).Order("arrival_time asc").Order("id asc").Find(&passengers).Error; err != nil {
		application.LogError(ctx, r.logger, "failed to fetch passengers", err, map[string]interface{}{
			"vehicle_id": vehicleID,
		})
		return nil, err
	}

	application.LogDebug(ctx, r.logger, "passengers fetched", map[string]interface{}{
		"vehicle_id": vehicleID,
		"count":      len(passengers),
	})
	return passengers, nil
}

func (r *GormPassengerRepository) Insert(ctx context.Context, p domain.Passenger) (domain.Passenger, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		application.LogError(ctx, r.logger, "failed to insert passenger", err, map[string]interface{}{
			"passenger_id": p.ID,
			"vehicle_id":   p.VehicleID,
		})
		return domain.Passenger{}, err
	}

	application.LogDebug(ctx, r.logger, "passenger inserted", map[string]interface{}{
		"passenger_id": p.ID,
		"vehicle_id":   p.VehicleID,
	})
	return p, nil
}

func (r *GormPassengerRepository) Update(ctx context.Context, id string, fields domain.PassengerUpdate) (domain.Passenger, error) {
	db := r.db.WithContext(ctx)

	if columns := fields.Columns(); len(columns) > 0 {
		result := db.Model(&domain.Passenger{}).Where("id = ?", id).Updates(columns)
		if result.Error != nil {
			application.LogError(ctx, r.logger, "failed to update passenger", result.Error, map[string]interface{}{
				"passenger_id": id,
			})
			return domain.Passenger{}, result.Error
		}
	}

	var stored domain.Passenger
	if err := db.Where("id = ?", id).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Passenger{}, &domain.NotFoundError{ID: id}
		}
		application.LogError(ctx, r.logger, "failed to reload passenger", err, map[string]interface{}{
			"passenger_id": id,
		})
		return domain.Passenger{}, err
	}
	return stored, nil
}

func (r *GormPassengerRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Passenger{}).Error; err != nil {
		application.LogError(ctx, r.logger, "failed to delete passenger", err, map[string]interface{}{
			"passenger_id": id,
		})
		return err
	}
	return nil
}

package usecase

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/plate-scan/internal/auth"
	"github.com/example/plate-scan/internal/logging"
	"github.com/example/plate-scan/internal/plate"
	"github.com/example/plate-scan/internal/registry"
	"github.com/example/plate-scan/internal/repository"
)

// RegistrationDateLayout is the format of server-stamped registration dates.
const RegistrationDateLayout = "2006-01-02 15:04:05"

// VehicleRepository defines the persistence operations needed by the use case.
type VehicleRepository interface {
	List(ctx context.Context) ([]repository.VehicleRecord, error)
	Create(ctx context.Context, record *repository.VehicleRecord) error
	FindByPlate(ctx context.Context, normalized string) (*repository.VehicleRecord, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*registry.Stats, error)
}

// VehicleUseCase encapsulates the registry business rules.
type VehicleUseCase struct {
	repo   VehicleRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewVehicleUseCase constructs a new use case instance.
func NewVehicleUseCase(repo VehicleRepository, logger *zap.Logger) *VehicleUseCase {
	return &VehicleUseCase{
		repo:   repo,
		logger: logger.Named("vehicle_usecase"),
		now:    time.Now,
	}
}

// List returns every registered vehicle, newest first.
func (uc *VehicleUseCase) List(ctx context.Context) ([]registry.Vehicle, error) {
	records, err := uc.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	vehicles := make([]registry.Vehicle, 0, len(records))
	for _, r := range records {
		vehicles = append(vehicles, r.Vehicle())
	}
	return vehicles, nil
}

// Register validates req, uppercases the plate, stamps the registration date
// and stores the vehicle.
func (uc *VehicleUseCase) Register(ctx context.Context, req registry.CreateVehicleRequest) (*registry.CreateVehicleResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	record := &repository.VehicleRecord{
		Plate:            strings.ToUpper(strings.TrimSpace(req.Plate)),
		OwnerName:        req.OwnerName,
		OwnerPhone:       req.OwnerPhone,
		CarModel:         req.CarModel,
		CarYear:          req.CarYear,
		OwnerPhoto:       req.OwnerPhoto,
		CarPhoto:         req.CarPhoto,
		RegistrationDate: uc.now().Format(RegistrationDateLayout),
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.register_vehicle", "").With(
		zap.String("plate", record.Plate),
		operatorField(ctx))

	if err := uc.repo.Create(ctx, record); err != nil {
		opLogger.Warn("failed to register vehicle", zap.Error(err))
		return nil, err
	}

	opLogger.Info("vehicle registered", zap.Int64("id", record.ID))
	return &registry.CreateVehicleResponse{
		Message:          "vehicle registered",
		ID:               record.ID,
		RegistrationDate: record.RegistrationDate,
	}, nil
}

// FindByPlate returns the vehicle whose plate matches p ignoring case, dashes
// and spaces.
func (uc *VehicleUseCase) FindByPlate(ctx context.Context, p string) (*registry.Vehicle, error) {
	normalized := plate.Normalize(p)
	if normalized == "" {
		return nil, registry.ErrNotFound
	}
	record, err := uc.repo.FindByPlate(ctx, normalized)
	if err != nil {
		return nil, err
	}
	v := record.Vehicle()
	return &v, nil
}

// Delete removes a registration by id.
func (uc *VehicleUseCase) Delete(ctx context.Context, id int64) error {
	opLogger := logging.WithOperation(uc.logger, "usecase.delete_vehicle", "").With(
		zap.Int64("id", id),
		operatorField(ctx))
	if err := uc.repo.Delete(ctx, id); err != nil {
		opLogger.Warn("failed to delete vehicle", zap.Error(err))
		return err
	}
	opLogger.Info("vehicle deleted")
	return nil
}

func operatorField(ctx context.Context) zap.Field {
	operator, ok := auth.GetOperator(ctx)
	if !ok {
		return zap.Skip()
	}
	return zap.String("operator", operator)
}

// Stats returns the vehicle count and the most common car years.
func (uc *VehicleUseCase) Stats(ctx context.Context) (*registry.Stats, error) {
	return uc.repo.Stats(ctx)
}

func validate(req registry.CreateVehicleRequest) error {
	fields := []struct {
		name  string
		value string
	}{
		{"plate", req.Plate},
		{"ownerName", req.OwnerName},
		{"ownerPhone", req.OwnerPhone},
		{"carModel", req.CarModel},
		{"carYear", req.CarYear},
		{"ownerPhoto", req.OwnerPhoto},
		{"carPhoto", req.CarPhoto},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &registry.ValidationError{Field: f.name, Message: "missing field " + f.name}
		}
	}
	return nil
}

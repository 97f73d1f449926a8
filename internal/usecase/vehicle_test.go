package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/plate-scan/internal/auth"
	"github.com/example/plate-scan/internal/registry"
	"github.com/example/plate-scan/internal/repository"
)

type stubRepository struct {
	records   []repository.VehicleRecord
	created   []*repository.VehicleRecord
	createErr error
	findPlate string
	findErr   error
	deleted   []int64
	deleteErr error
	stats     *registry.Stats
}

func (s *stubRepository) List(ctx context.Context) ([]repository.VehicleRecord, error) {
	return s.records, nil
}

func (s *stubRepository) Create(ctx context.Context, record *repository.VehicleRecord) error {
	if s.createErr != nil {
		return s.createErr
	}
	record.ID = int64(len(s.created) + 1)
	s.created = append(s.created, record)
	return nil
}

func (s *stubRepository) FindByPlate(ctx context.Context, normalized string) (*repository.VehicleRecord, error) {
	s.findPlate = normalized
	if s.findErr != nil {
		return nil, s.findErr
	}
	for i := range s.records {
		if s.records[i].Plate == normalized {
			return &s.records[i], nil
		}
	}
	return nil, registry.ErrNotFound
}

func (s *stubRepository) Delete(ctx context.Context, id int64) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubRepository) Stats(ctx context.Context) (*registry.Stats, error) {
	return s.stats, nil
}

func validRequest() registry.CreateVehicleRequest {
	return registry.CreateVehicleRequest{
		Plate:      " abc-123 ",
		OwnerName:  "Maria",
		OwnerPhone: "555-0100",
		CarModel:   "Corolla",
		CarYear:    "2018",
		OwnerPhoto: "data:image/png;base64,AAAA",
		CarPhoto:   "data:image/png;base64,BBBB",
	}
}

func TestRegisterStampsDateAndUppercasesPlate(t *testing.T) {
	repo := &stubRepository{}
	uc := NewVehicleUseCase(repo, zap.NewNop())
	uc.now = func() time.Time { return time.Date(2024, 3, 9, 8, 5, 1, 0, time.UTC) }

	resp, err := uc.Register(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ID != 1 || resp.RegistrationDate != "2024-03-09 08:05:01" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got := repo.created[0].Plate; got != "ABC-123" {
		t.Fatalf("expected uppercased plate, got %q", got)
	}
}

func TestRegisterReportsFirstMissingField(t *testing.T) {
	uc := NewVehicleUseCase(&stubRepository{}, zap.NewNop())

	req := validRequest()
	req.CarYear = ""
	req.CarPhoto = ""

	_, err := uc.Register(context.Background(), req)
	var verr *registry.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "carYear" {
		t.Fatalf("expected carYear to be reported first, got %s", verr.Field)
	}
}

func TestRegisterPassesDuplicateThrough(t *testing.T) {
	uc := NewVehicleUseCase(&stubRepository{createErr: registry.ErrDuplicatePlate}, zap.NewNop())

	if _, err := uc.Register(context.Background(), validRequest()); !errors.Is(err, registry.ErrDuplicatePlate) {
		t.Fatalf("expected ErrDuplicatePlate, got %v", err)
	}
}

func TestFindByPlateNormalizes(t *testing.T) {
	repo := &stubRepository{records: []repository.VehicleRecord{{ID: 3, Plate: "XYZ123"}}}
	uc := NewVehicleUseCase(repo, zap.NewNop())

	v, err := uc.FindByPlate(context.Background(), "xyz 1-23")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.findPlate != "XYZ123" || v.ID != 3 {
		t.Fatalf("unexpected lookup %q -> %+v", repo.findPlate, v)
	}

	if _, err := uc.FindByPlate(context.Background(), " - "); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty plate, got %v", err)
	}
}

func TestListConvertsRecords(t *testing.T) {
	repo := &stubRepository{records: []repository.VehicleRecord{{ID: 2, Plate: "BBB222"}, {ID: 1, Plate: "AAA111"}}}
	uc := NewVehicleUseCase(repo, zap.NewNop())

	vehicles, err := uc.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vehicles) != 2 || vehicles[0].ID != 2 || vehicles[1].Plate != "AAA111" {
		t.Fatalf("unexpected vehicles: %+v", vehicles)
	}
}

func TestDeletePassesNotFoundThrough(t *testing.T) {
	uc := NewVehicleUseCase(&stubRepository{deleteErr: registry.ErrNotFound}, zap.NewNop())

	if err := uc.Delete(context.Background(), 9); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWritesLogOperator(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	uc := NewVehicleUseCase(&stubRepository{}, zap.New(core))
	ctx := auth.WithOperator(context.Background(), "gate-7")

	if _, err := uc.Register(ctx, validRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := uc.Delete(ctx, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, msg := range []string{"vehicle registered", "vehicle deleted"} {
		entries := logs.FilterMessage(msg).All()
		if len(entries) != 1 {
			t.Fatalf("expected one %q entry, got %d", msg, len(entries))
		}
		if got := entries[0].ContextMap()["operator"]; got != "gate-7" {
			t.Fatalf("expected operator gate-7 on %q, got %v", msg, got)
		}
	}
}

func TestWritesWithoutOperatorOmitField(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	uc := NewVehicleUseCase(&stubRepository{}, zap.New(core))

	if err := uc.Delete(context.Background(), 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := logs.FilterMessage("vehicle deleted").All()[0].ContextMap()["operator"]; ok {
		t.Fatal("expected no operator field without an authenticated caller")
	}
}

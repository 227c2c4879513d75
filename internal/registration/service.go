package registration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"qr-parking-backend/internal/model"
	"qr-parking-backend/internal/store"
)

var (
	// ErrInvalid means a required field is missing.
	ErrInvalid = errors.New("invalid registration")
	// ErrAlreadyRegistered means the plate already has a registration.
	ErrAlreadyRegistered = errors.New("plate already registered")
)

// Input is the registration form.
type Input struct {
	FullName    string `json:"full_name"`
	IDNumber    string `json:"id_number"`
	VehicleType string `json:"vehicle_type"`
	MobileNo    string `json:"mobile_no"`
	PlateNumber string `json:"plate_number"`
}

// CodeGenerator renders and removes registration codes.
type CodeGenerator interface {
	Generate(plate string, issued time.Time) (string, error)
	Remove(plate string) error
	Payload(plate string, issued time.Time) string
	Path(plate string) string
}

// Service registers vehicles and issues their codes.
type Service struct {
	store store.Store
	codes CodeGenerator
	now   func() time.Time
}

func NewService(st store.Store, codes CodeGenerator) *Service {
	return &Service{store: st, codes: codes, now: time.Now}
}

// Registration is a stored vehicle together with its code.
type Registration struct {
	Vehicle *model.Vehicle `json:"vehicle"`
	Payload string         `json:"qr_payload"`
	QRPath  string         `json:"-"`
}

// Register stores the vehicle and writes its code. If the code cannot be
// written the registration is rolled back.
func (s *Service) Register(ctx context.Context, in Input) (*Registration, error) {
	v := &model.Vehicle{
		PlateNumber: strings.TrimSpace(in.PlateNumber),
		FullName:    strings.TrimSpace(in.FullName),
		IDNumber:    strings.TrimSpace(in.IDNumber),
		VehicleType: strings.TrimSpace(in.VehicleType),
		MobileNo:    strings.TrimSpace(in.MobileNo),
		CreatedAt:   s.now(),
	}
	if err := validate(v); err != nil {
		return nil, err
	}

	var path string
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateVehicle(ctx, v); err != nil {
			return err
		}
		p, err := s.codes.Generate(v.PlateNumber, v.CreatedAt)
		if err != nil {
			return err
		}
		path = p
		return nil
	})
	if err != nil {
		if path != "" {
			// Commit failed after the file was written.
			s.removeCode(v.PlateNumber)
		}
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, v.PlateNumber)
		}
		return nil, fmt.Errorf("failed to register %s: %w", v.PlateNumber, err)
	}

	log.Printf("Registered vehicle %s", v.PlateNumber)
	return &Registration{
		Vehicle: v,
		Payload: s.codes.Payload(v.PlateNumber, v.CreatedAt),
		QRPath:  path,
	}, nil
}

// Delete removes the registration and its code. Session history is kept.
// Deleting an unknown plate succeeds.
func (s *Service) Delete(ctx context.Context, plate string) error {
	plate = strings.TrimSpace(plate)
	if plate == "" {
		return fmt.Errorf("%w: plate_number is required", ErrInvalid)
	}
	existed, err := s.store.DeleteVehicle(ctx, plate)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", plate, err)
	}
	if !existed {
		log.Printf("Delete requested for unregistered plate %s", plate)
	}
	s.removeCode(plate)
	return nil
}

// CodePath returns the code file of a registered plate.
func (s *Service) CodePath(ctx context.Context, plate string) (string, error) {
	if _, err := s.store.FindVehicle(ctx, plate); err != nil {
		return "", err
	}
	return s.codes.Path(plate), nil
}

func (s *Service) removeCode(plate string) {
	if err := s.codes.Remove(plate); err != nil {
		log.Printf("Failed to remove code for %s: %v", plate, err)
	}
}

func validate(v *model.Vehicle) error {
	var missing []string
	for name, val := range map[string]string{
		"plate_number": v.PlateNumber,
		"full_name":    v.FullName,
		"id_number":    v.IDNumber,
		"vehicle_type": v.VehicleType,
		"mobile_no":    v.MobileNo,
	} {
		if val == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	if strings.ContainsAny(v.PlateNumber, "\r\n") {
		return fmt.Errorf("%w: plate_number must be a single line", ErrInvalid)
	}
	return nil
}

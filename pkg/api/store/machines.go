package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateMachine inserts a machine. A machine with the same name already
// present yields ErrConflict and nothing is written.
func (s *store) CreateMachine(ctx context.Context, machine *Machine) error {
	var existing int64
	if err := s.db.WithContext(ctx).
		Model(&Machine{}).
		Where("name = ?", machine.Name).
		Count(&existing).Error; err != nil {
		return fmt.Errorf("checking machine name: %w", err)
	}

	if existing > 0 {
		return fmt.Errorf("machine %q: %w", machine.Name, ErrConflict)
	}

	if err := s.db.WithContext(ctx).Create(machine).Error; err != nil {
		return fmt.Errorf("creating machine: %w", classify(err))
	}

	return nil
}

func (s *store) ListMachines(ctx context.Context) ([]Machine, error) {
	var machines []Machine
	if err := s.db.WithContext(ctx).
		Order("name ASC").
		Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("listing machines: %w", err)
	}

	return machines, nil
}

func (s *store) GetMachine(ctx context.Context, id uuid.UUID) (*Machine, error) {
	var machine Machine
	if err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&machine).Error; err != nil {
		return nil, fmt.Errorf("getting machine by id: %w", classify(err))
	}

	return &machine, nil
}

func (s *store) GetMachineByName(ctx context.Context, name string) (*Machine, error) {
	var machine Machine
	if err := s.db.WithContext(ctx).
		Where("name = ?", name).
		First(&machine).Error; err != nil {
		return nil, fmt.Errorf("getting machine by name: %w", classify(err))
	}

	return &machine, nil
}

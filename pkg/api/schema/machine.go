package schema

import (
	"time"

	"github.com/earthframe/earthframe/pkg/api/store"
	"github.com/google/uuid"
)

// MachineCreate is the body of POST /machines.
type MachineCreate struct {
	Name         string  `mapstructure:"name" validate:"required,max=200"`
	Site         string  `mapstructure:"site" validate:"required,max=200"`
	Architecture string  `mapstructure:"architecture" validate:"required,max=100"`
	Scheduler    string  `mapstructure:"scheduler" validate:"required,max=100"`
	GPU          bool    `mapstructure:"gpu"`
	Notes        *string `mapstructure:"notes"`
}

// Model converts the request into a store record.
func (m *MachineCreate) Model() *store.Machine {
	return &store.Machine{
		Name:         m.Name,
		Site:         m.Site,
		Architecture: m.Architecture,
		Scheduler:    m.Scheduler,
		GPU:          m.GPU,
		Notes:        m.Notes,
	}
}

// Machine is the response shape of a machine.
type Machine struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Site         string    `json:"site"`
	Architecture string    `json:"architecture"`
	Scheduler    string    `json:"scheduler"`
	GPU          bool      `json:"gpu"`
	Notes        *string   `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewMachine builds the response for a stored machine.
func NewMachine(m *store.Machine) Machine {
	return Machine{
		ID:           m.ID,
		Name:         m.Name,
		Site:         m.Site,
		Architecture: m.Architecture,
		Scheduler:    m.Scheduler,
		GPU:          m.GPU,
		Notes:        m.Notes,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// NewMachines builds the response for a list of machines.
func NewMachines(machines []store.Machine) []Machine {
	out := make([]Machine, 0, len(machines))
	for i := range machines {
		out = append(out, NewMachine(&machines[i]))
	}

	return out
}

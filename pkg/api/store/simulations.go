package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// withChildren eager-loads the owned collections of a simulation query.
func withChildren(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Artifacts", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Links", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Variables", func(db *gorm.DB) *gorm.DB {
			return db.Order("name ASC")
		})
}

// CreateSimulation persists a simulation together with its artifacts, links
// and variables in a single transaction, then returns the committed
// aggregate reloaded from the database.
func (s *store) CreateSimulation(
	ctx context.Context, sim *Simulation,
) (*Simulation, error) {
	artifacts := sim.Artifacts
	links := sim.Links
	variables := dedupeVariables(sim.Variables)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkReferences(tx, sim); err != nil {
			return err
		}

		if err := tx.Omit(clause.Associations).Create(sim).Error; err != nil {
			err = classify(err)
			if errors.Is(err, ErrConflict) {
				return fmt.Errorf(
					"simulation %q with version tag %q already exists: %w",
					sim.Name, deref(sim.VersionTag), err,
				)
			}

			return fmt.Errorf("inserting simulation: %w", err)
		}

		for i := range artifacts {
			artifacts[i].SimulationID = sim.ID
		}

		if len(artifacts) > 0 {
			if err := tx.Create(&artifacts).Error; err != nil {
				return fmt.Errorf("inserting artifacts: %w", classify(err))
			}
		}

		for i := range links {
			links[i].SimulationID = sim.ID
		}

		if len(links) > 0 {
			if err := tx.Create(&links).Error; err != nil {
				return fmt.Errorf("inserting links: %w", classify(err))
			}
		}

		if len(variables) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&variables).Error; err != nil {
				return fmt.Errorf("upserting variables: %w", classify(err))
			}

			joins := make([]SimulationVariable, 0, len(variables))
			for _, v := range variables {
				joins = append(joins, SimulationVariable{
					SimulationID: sim.ID,
					VariableName: v.Name,
				})
			}

			if err := tx.Create(&joins).Error; err != nil {
				return fmt.Errorf("linking variables: %w", classify(err))
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating simulation: %w", err)
	}

	return s.GetSimulation(ctx, sim.ID)
}

// checkReferences verifies inside the transaction that the machine, status
// and optional parent a simulation points at exist.
func checkReferences(tx *gorm.DB, sim *Simulation) error {
	exists := func(model any, column string, value any) (bool, error) {
		var n int64
		if err := tx.Model(model).Where(column+" = ?", value).Count(&n).Error; err != nil {
			return false, err
		}

		return n > 0, nil
	}

	ok, err := exists(&Machine{}, "id", sim.MachineID)
	if err != nil {
		return fmt.Errorf("checking machine: %w", err)
	}

	if !ok {
		return &ReferenceError{Field: "machine_id", Value: sim.MachineID.String()}
	}

	ok, err = exists(&Status{}, "code", sim.Status)
	if err != nil {
		return fmt.Errorf("checking status: %w", err)
	}

	if !ok {
		return &ReferenceError{Field: "status", Value: sim.Status}
	}

	if sim.ParentSimulationID != nil {
		ok, err = exists(&Simulation{}, "id", *sim.ParentSimulationID)
		if err != nil {
			return fmt.Errorf("checking parent simulation: %w", err)
		}

		if !ok {
			return &ReferenceError{
				Field: "parent_simulation_id",
				Value: sim.ParentSimulationID.String(),
			}
		}
	}

	return nil
}

func dedupeVariables(in []Variable) []Variable {
	seen := make(map[string]struct{}, len(in))
	out := make([]Variable, 0, len(in))

	for _, v := range in {
		if _, ok := seen[v.Name]; ok {
			continue
		}

		seen[v.Name] = struct{}{}
		out = append(out, v)
	}

	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

// ListSimulations returns simulations newest first, each with its children.
func (s *store) ListSimulations(
	ctx context.Context, filter SimulationFilter,
) ([]Simulation, error) {
	q := withChildren(s.db.WithContext(ctx))

	for column, value := range map[string]string{
		"status":             filter.Status,
		"campaign_id":        filter.CampaignID,
		"experiment_type_id": filter.ExperimentTypeID,
		"version_tag":        filter.VersionTag,
		"compset":            filter.Compset,
		"grid_resolution":    filter.GridResolution,
		"simulation_type":    filter.SimulationType,
		"group_name":         filter.GroupName,
	} {
		if value != "" {
			q = q.Where(column+" = ?", value)
		}
	}

	if filter.MachineID != nil {
		q = q.Where("machine_id = ?", *filter.MachineID)
	}

	var sims []Simulation
	if err := q.Order("created_at DESC").Find(&sims).Error; err != nil {
		return nil, fmt.Errorf("listing simulations: %w", err)
	}

	return sims, nil
}

func (s *store) GetSimulation(ctx context.Context, id uuid.UUID) (*Simulation, error) {
	var sim Simulation
	if err := withChildren(s.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&sim).Error; err != nil {
		return nil, fmt.Errorf("getting simulation by id: %w", classify(err))
	}

	return &sim, nil
}

// DeleteSimulation removes a simulation. Its artifacts, links and variable
// associations are removed by the database through ON DELETE CASCADE, and
// children keep existing with their parent reference cleared.
func (s *store) DeleteSimulation(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Simulation{})
	if res.Error != nil {
		return fmt.Errorf("deleting simulation: %w", classify(res.Error))
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf("deleting simulation %s: %w", id, ErrNotFound)
	}

	return nil
}

// ListChildSimulations returns the direct children of a simulation, newest
// first. A missing parent yields ErrNotFound.
func (s *store) ListChildSimulations(
	ctx context.Context, parentID uuid.UUID,
) ([]Simulation, error) {
	var n int64
	if err := s.db.WithContext(ctx).
		Model(&Simulation{}).
		Where("id = ?", parentID).
		Count(&n).Error; err != nil {
		return nil, fmt.Errorf("checking parent simulation: %w", err)
	}

	if n == 0 {
		return nil, fmt.Errorf("simulation %s: %w", parentID, ErrNotFound)
	}

	var sims []Simulation
	if err := withChildren(s.db.WithContext(ctx)).
		Where("parent_simulation_id = ?", parentID).
		Order("created_at DESC").
		Find(&sims).Error; err != nil {
		return nil, fmt.Errorf("listing child simulations: %w", err)
	}

	return sims, nil
}

func (s *store) GetArtifact(
	ctx context.Context, simulationID, artifactID uuid.UUID,
) (*Artifact, error) {
	var artifact Artifact
	if err := s.db.WithContext(ctx).
		Where("id = ? AND simulation_id = ?", artifactID, simulationID).
		First(&artifact).Error; err != nil {
		return nil, fmt.Errorf("getting artifact: %w", classify(err))
	}

	return &artifact, nil
}

func (s *store) ListStatuses(ctx context.Context) ([]Status, error) {
	var statuses []Status
	if err := s.db.WithContext(ctx).
		Order("code ASC").
		Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("listing statuses: %w", err)
	}

	return statuses, nil
}

func (s *store) ListVariables(ctx context.Context) ([]Variable, error) {
	var variables []Variable
	if err := s.db.WithContext(ctx).
		Order("name ASC").
		Find(&variables).Error; err != nil {
		return nil, fmt.Errorf("listing variables: %w", err)
	}

	return variables, nil
}

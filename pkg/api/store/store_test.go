package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/earthframe/earthframe/pkg/config"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTestStore(t *testing.T) *store {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := NewStore(log, &config.DatabaseConfig{
		Driver:       "sqlite",
		SQLite:       config.SQLiteDatabaseConfig{Path: ":memory:"},
		AutoMigrate:  true,
		MaxOpenConns: 1,
	})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	return s.(*store)
}

func ptr[T any](v T) *T { return &v }

func newMachine(t *testing.T, s *store, name string) *Machine {
	t.Helper()

	m := &Machine{
		Name:         name,
		Site:         "NERSC",
		Architecture: "AMD EPYC + NVIDIA A100",
		Scheduler:    "slurm",
		GPU:          true,
	}
	require.NoError(t, s.CreateMachine(context.Background(), m))

	return m
}

func newSimulation(machineID uuid.UUID, name string) *Simulation {
	return &Simulation{
		Name:               name,
		Compset:            "WCYCL1850",
		CompsetAlias:       "WCYCL1850",
		GridName:           "ne30pg2_r05_IcoswISC30E3r5",
		GridResolution:     "ne30",
		InitializationType: "hybrid",
		SimulationType:     "production",
		Status:             "running",
		MachineID:          machineID,
		ModelStartDate:     time.Date(1850, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestStart_SeedsLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	statuses, err := s.ListStatuses(ctx)
	require.NoError(t, err)

	codes := make([]string, 0, len(statuses))
	for _, st := range statuses {
		codes = append(codes, st.Code)
	}

	assert.Equal(t, []string{"completed", "created", "failed", "queued", "running"}, codes)

	m, err := s.GetMachineByName(ctx, "perlmutter")
	require.NoError(t, err)
	assert.Equal(t, "NERSC", m.Site)
	assert.True(t, m.GPU)
}

func TestCreateMachine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := newMachine(t, s, "lassen")
	assert.NotEqual(t, uuid.Nil, m.ID)
	assert.False(t, m.CreatedAt.IsZero())
	assert.False(t, m.UpdatedAt.IsZero())

	got, err := s.GetMachine(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "lassen", got.Name)
	assert.Nil(t, got.Notes)
}

func TestCreateMachine_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	before, err := s.ListMachines(ctx)
	require.NoError(t, err)

	err = s.CreateMachine(ctx, &Machine{
		Name: "perlmutter", Site: "elsewhere", Architecture: "x", Scheduler: "pbs",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	after, err := s.ListMachines(ctx)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestListMachines_OrderedByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "mu"} {
		newMachine(t, s, name)
	}

	machines, err := s.ListMachines(ctx)
	require.NoError(t, err)
	require.Len(t, machines, 11)

	for i := 1; i < len(machines); i++ {
		assert.LessOrEqual(t, machines[i-1].Name, machines[i].Name)
	}

	assert.Equal(t, "alpha", machines[0].Name)
	assert.Equal(t, "zeta", machines[len(machines)-1].Name)
}

func TestGetMachine_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetMachine(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateSimulation_WithChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := newMachine(t, s, "lassen")

	sim := newSimulation(m.ID, "v3.LR.piControl")
	sim.VersionTag = ptr("v3.0.0")
	sim.Extra = datatypes.JSONMap{"customKey": "value"}
	sim.Artifacts = []Artifact{
		{Kind: ArtifactKindOutputPath, URI: "/out.nc"},
		{Kind: ArtifactKindArchivePath, URI: "s3://e3sm/archive.tar", SizeBytes: ptr(int64(42))},
	}
	sim.Links = []ExternalLink{
		{LinkType: LinkTypeDiagnostic, URL: "http://x"},
	}
	sim.Variables = []Variable{{Name: "TS"}, {Name: "PRECT"}, {Name: "TS"}}

	created, err := s.CreateSimulation(ctx, sim)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, created.ID)
	require.Len(t, created.Artifacts, 2)
	require.Len(t, created.Links, 1)
	require.Len(t, created.Variables, 2)

	for _, a := range created.Artifacts {
		assert.Equal(t, created.ID, a.SimulationID)
		assert.NotEqual(t, uuid.Nil, a.ID)
		assert.False(t, a.CreatedAt.IsZero())
	}

	assert.Equal(t, created.ID, created.Links[0].SimulationID)
	assert.Equal(t, "http://x", created.Links[0].URL)
	assert.Equal(t, "PRECT", created.Variables[0].Name)
	assert.Equal(t, "value", created.Extra["customKey"])

	uris := []string{created.Artifacts[0].URI, created.Artifacts[1].URI}
	assert.ElementsMatch(t, []string{"/out.nc", "s3://e3sm/archive.tar"}, uris)

	variables, err := s.ListVariables(ctx)
	require.NoError(t, err)
	assert.Len(t, variables, 2)
}

func TestCreateSimulation_EmptyExtraStoredAsObject(t *testing.T) {
	s := newTestStore(t)
	m := newMachine(t, s, "lassen")

	created, err := s.CreateSimulation(context.Background(), newSimulation(m.ID, "bare"))
	require.NoError(t, err)

	assert.NotNil(t, created.Extra)
	assert.Empty(t, created.Extra)
	assert.Empty(t, created.Artifacts)
	assert.Empty(t, created.Links)
}

func TestCreateSimulation_DuplicateNameVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := newMachine(t, s, "lassen")

	first := newSimulation(m.ID, "dup")
	first.VersionTag = ptr("v1")
	_, err := s.CreateSimulation(ctx, first)
	require.NoError(t, err)

	second := newSimulation(m.ID, "dup")
	second.VersionTag = ptr("v1")
	second.Artifacts = []Artifact{{Kind: ArtifactKindOutputPath, URI: "/x"}}
	_, err = s.CreateSimulation(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	sims, err := s.ListSimulations(ctx, SimulationFilter{})
	require.NoError(t, err)
	assert.Len(t, sims, 1)

	// A different version tag of the same name is a distinct simulation.
	third := newSimulation(m.ID, "dup")
	third.VersionTag = ptr("v2")
	_, err = s.CreateSimulation(ctx, third)
	require.NoError(t, err)
}

func TestCreateSimulation_InvalidReferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := newMachine(t, s, "lassen")

	tests := []struct {
		name   string
		mutate func(sim *Simulation)
		field  string
	}{
		{
			name:   "unknown machine",
			mutate: func(sim *Simulation) { sim.MachineID = uuid.New() },
			field:  "machine_id",
		},
		{
			name:   "unknown status",
			mutate: func(sim *Simulation) { sim.Status = "exploded" },
			field:  "status",
		},
		{
			name: "unknown parent",
			mutate: func(sim *Simulation) {
				sim.ParentSimulationID = ptr(uuid.New())
			},
			field: "parent_simulation_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newSimulation(m.ID, tt.name)
			tt.mutate(sim)

			_, err := s.CreateSimulation(ctx, sim)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidReference)

			var refErr *ReferenceError
			require.True(t, errors.As(err, &refErr))
			assert.Equal(t, tt.field, refErr.Field)
		})
	}

	sims, err := s.ListSimulations(ctx, SimulationFilter{})
	require.NoError(t, err)
	assert.Empty(t, sims)
}

func TestCreateSimulation_ChildFailureRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := newMachine(t, s, "lassen")

	sim := newSimulation(m.ID, "atomic")
	sim.Artifacts = []Artifact{
		{Kind: ArtifactKindOutputPath, URI: "/ok.nc"},
		{Kind: "notAKind", URI: "/bad.nc"},
	}

	_, err := s.CreateSimulation(ctx, sim)
	require.Error(t, err)

	sims, err := s.ListSimulations(ctx, SimulationFilter{})
	require.NoError(t, err)
	assert.Empty(t, sims)

	var artifacts int64
	require.NoError(t, s.db.Model(&Artifact{}).Count(&artifacts).Error)
	assert.Zero(t, artifacts)
}

func TestListSimulations_NewestFirstAndFiltered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := newMachine(t, s, "lassen")
	other := newMachine(t, s, "quartz")

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, name := range []string{"first", "second", "third"} {
		sim := newSimulation(m.ID, name)
		sim.CreatedAt = base.Add(time.Duration(i) * time.Hour)

		if name == "second" {
			sim.MachineID = other.ID
			sim.Status = "completed"
			sim.CampaignID = ptr("v3.LR")
		}

		_, err := s.CreateSimulation(ctx, sim)
		require.NoError(t, err)
	}

	sims, err := s.ListSimulations(ctx, SimulationFilter{})
	require.NoError(t, err)
	require.Len(t, sims, 3)
	assert.Equal(t, "third", sims[0].Name)
	assert.Equal(t, "second", sims[1].Name)
	assert.Equal(t, "first", sims[2].Name)

	sims, err = s.ListSimulations(ctx, SimulationFilter{Status: "completed"})
	require.NoError(t, err)
	require.Len(t, sims, 1)
	assert.Equal(t, "second", sims[0].Name)

	sims, err = s.ListSimulations(ctx, SimulationFilter{MachineID: &m.ID})
	require.NoError(t, err)
	assert.Len(t, sims, 2)

	sims, err = s.ListSimulations(ctx, SimulationFilter{CampaignID: "v3.LR", Status: "running"})
	require.NoError(t, err)
	assert.Empty(t, sims)
}

func TestGetSimulation_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSimulation(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSimulation_Cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := newMachine(t, s, "lassen")

	parent := newSimulation(m.ID, "parent")
	parent.Artifacts = []Artifact{{Kind: ArtifactKindOutputPath, URI: "/out.nc"}}
	parent.Links = []ExternalLink{{LinkType: LinkTypeDocs, URL: "https://docs"}}
	parent.Variables = []Variable{{Name: "TS"}}

	created, err := s.CreateSimulation(ctx, parent)
	require.NoError(t, err)

	child := newSimulation(m.ID, "child")
	child.ParentSimulationID = &created.ID
	childCreated, err := s.CreateSimulation(ctx, child)
	require.NoError(t, err)

	require.NoError(t, s.DeleteSimulation(ctx, created.ID))

	var artifacts, links, joins int64
	require.NoError(t, s.db.Model(&Artifact{}).Count(&artifacts).Error)
	require.NoError(t, s.db.Model(&ExternalLink{}).Count(&links).Error)
	require.NoError(t, s.db.Model(&SimulationVariable{}).Count(&joins).Error)
	assert.Zero(t, artifacts)
	assert.Zero(t, links)
	assert.Zero(t, joins)

	// Shared variables outlive the simulation.
	variables, err := s.ListVariables(ctx)
	require.NoError(t, err)
	assert.Len(t, variables, 1)

	orphan, err := s.GetSimulation(ctx, childCreated.ID)
	require.NoError(t, err)
	assert.Nil(t, orphan.ParentSimulationID)

	assert.ErrorIs(t, s.DeleteSimulation(ctx, created.ID), ErrNotFound)
}

func TestDeleteMachine_RestrictedWhileReferenced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := newMachine(t, s, "lassen")

	_, err := s.CreateSimulation(ctx, newSimulation(m.ID, "pinned"))
	require.NoError(t, err)

	err = classify(s.db.Delete(&Machine{}, "id = ?", m.ID).Error)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = s.GetMachine(ctx, m.ID)
	require.NoError(t, err)
}

func TestListChildSimulations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := newMachine(t, s, "lassen")

	parent, err := s.CreateSimulation(ctx, newSimulation(m.ID, "parent"))
	require.NoError(t, err)

	for _, name := range []string{"child-a", "child-b"} {
		sim := newSimulation(m.ID, name)
		sim.ParentSimulationID = &parent.ID
		_, err := s.CreateSimulation(ctx, sim)
		require.NoError(t, err)
	}

	_, err = s.CreateSimulation(ctx, newSimulation(m.ID, "unrelated"))
	require.NoError(t, err)

	children, err := s.ListChildSimulations(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)

	for _, c := range children {
		require.NotNil(t, c.ParentSimulationID)
		assert.Equal(t, parent.ID, *c.ParentSimulationID)
	}

	_, err = s.ListChildSimulations(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetArtifact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := newMachine(t, s, "lassen")

	sim := newSimulation(m.ID, "with-artifact")
	sim.Artifacts = []Artifact{{Kind: ArtifactKindOutputPath, URI: "s3://bucket/key.nc"}}

	created, err := s.CreateSimulation(ctx, sim)
	require.NoError(t, err)

	got, err := s.GetArtifact(ctx, created.ID, created.Artifacts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/key.nc", got.URI)

	_, err = s.GetArtifact(ctx, uuid.New(), created.Artifacts[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{
			in:   "postgresql+psycopg://u:p@db:5432/ef",
			want: "postgres://u:p@db:5432/ef",
		},
		{
			in:   "postgres://u:p@db:5432/ef?sslmode=disable",
			want: "postgres://u:p@db:5432/ef?sslmode=disable",
		},
		{
			in:   "host=db user=u dbname=ef",
			want: "host=db user=u dbname=ef",
		},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PostgresDSN(tt.in))
	}
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t,
		"ef.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		SQLiteDSN("ef.db"),
	)
	assert.Equal(t,
		"file:ef.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		SQLiteDSN("file:ef.db?mode=rwc"),
	)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(errors.New("UNIQUE constraint failed: machines.name")), ErrConflict)
	assert.ErrorIs(t, classify(errors.New("FOREIGN KEY constraint failed")), ErrInvalidReference)

	plain := errors.New("disk on fire")
	assert.Equal(t, plain, classify(plain))
	assert.NoError(t, classify(nil))
}

package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Artifact kinds.
const (
	ArtifactKindOutputPath               = "outputPath"
	ArtifactKindArchivePath              = "archivePath"
	ArtifactKindRunScriptPath            = "runScriptPath"
	ArtifactKindPostprocessingScriptPath = "postprocessingScriptPath"
)

// External link types.
const (
	LinkTypeDiagnostic = "diagnosticLinks"
	LinkTypePace       = "paceLinks"
	LinkTypeDocs       = "docs"
	LinkTypeOther      = "other"
)

// Machine is an HPC system simulations run on.
type Machine struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"size:200;not null;uniqueIndex"`
	Site         string    `gorm:"size:200;not null"`
	Architecture string    `gorm:"size:100;not null"`
	Scheduler    string    `gorm:"size:100;not null"`
	GPU          bool      `gorm:"column:gpu;not null;default:false"`
	Notes        *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BeforeCreate assigns a random id when none was set.
func (m *Machine) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	return nil
}

// Status is a row of the simulation status lookup table.
type Status struct {
	Code  string `gorm:"size:50;primaryKey"`
	Label string `gorm:"size:100;not null"`
}

// TableName overrides the default table name.
func (Status) TableName() string { return "status_lookup" }

// Simulation is a single climate-model run and the aggregate root of its
// artifacts, external links and variables.
type Simulation struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Name               string     `gorm:"size:200;not null"`
	CaseName           *string    `gorm:"size:200"`
	VersionTag         *string    `gorm:"size:100"`
	GitHash            *string    `gorm:"size:64"`
	ParentSimulationID *uuid.UUID `gorm:"type:uuid"`
	Compset            string     `gorm:"size:120;not null"`
	CompsetAlias       string     `gorm:"size:120;not null"`
	GridName           string     `gorm:"size:200;not null"`
	GridResolution     string     `gorm:"size:50;not null"`
	InitializationType string     `gorm:"size:50;not null"`
	SimulationType     string     `gorm:"size:50;not null"`
	Status             string     `gorm:"size:50;not null"`
	CampaignID         *string    `gorm:"size:100"`
	ExperimentTypeID   *string    `gorm:"size:100"`
	GroupName          *string    `gorm:"size:120"`
	MachineID          uuid.UUID  `gorm:"type:uuid;not null"`
	ModelStartDate     time.Time  `gorm:"not null"`
	SimulationEndDate  *time.Time
	TotalYears         *float64
	RunStartDate       *time.Time
	RunEndDate         *time.Time
	Compiler           *string `gorm:"size:100"`
	Branch             *string `gorm:"size:200"`
	ExternalRepoURL    *string `gorm:"column:external_repo_url;size:1000"`
	NotesMarkdown      *string
	KnownIssues        *string
	UploadedBy         *string `gorm:"size:100"`
	UploadDate         *time.Time
	LastModified       *time.Time
	LastEditedBy       *string `gorm:"size:100"`
	LastEditedAt       *time.Time
	Extra              datatypes.JSONMap `gorm:"not null"`
	CreatedAt          time.Time
	UpdatedAt          time.Time

	Artifacts []Artifact     `gorm:"foreignKey:SimulationID;constraint:OnDelete:CASCADE"`
	Links     []ExternalLink `gorm:"foreignKey:SimulationID;constraint:OnDelete:CASCADE"`
	Variables []Variable     `gorm:"many2many:simulation_variables;joinForeignKey:SimulationID;joinReferences:VariableName"`
}

// BeforeCreate assigns a random id when none was set and makes sure the
// extension map is stored as an empty object rather than NULL.
func (s *Simulation) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	if s.Extra == nil {
		s.Extra = datatypes.JSONMap{}
	}

	return nil
}

// Artifact is a file or directory produced by, or used to produce, a
// simulation.
type Artifact struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	SimulationID uuid.UUID `gorm:"type:uuid;not null;index"`
	Kind         string    `gorm:"size:50;not null"`
	URI          string    `gorm:"column:uri;size:1000;not null"`
	Label        *string   `gorm:"size:200"`
	Checksum     *string   `gorm:"size:128"`
	SizeBytes    *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BeforeCreate assigns a random id when none was set.
func (a *Artifact) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	return nil
}

// ExternalLink points at documentation or diagnostics hosted elsewhere.
type ExternalLink struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	SimulationID uuid.UUID `gorm:"type:uuid;not null;index"`
	LinkType     string    `gorm:"size:50;not null"`
	URL          string    `gorm:"column:url;size:1000;not null"`
	Label        *string   `gorm:"size:200"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BeforeCreate assigns a random id when none was set.
func (l *ExternalLink) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	return nil
}

// Variable is a model output variable shared across simulations.
type Variable struct {
	Name        string  `gorm:"size:100;primaryKey"`
	Description *string `gorm:"size:300"`
}

// SimulationVariable is a row of the simulation/variable join table.
type SimulationVariable struct {
	SimulationID uuid.UUID `gorm:"type:uuid;primaryKey"`
	VariableName string    `gorm:"size:100;primaryKey"`
}

// SimulationFilter restricts ListSimulations. Empty fields are ignored.
type SimulationFilter struct {
	Status           string
	MachineID        *uuid.UUID
	CampaignID       string
	ExperimentTypeID string
	VersionTag       string
	Compset          string
	GridResolution   string
	SimulationType   string
	GroupName        string
}

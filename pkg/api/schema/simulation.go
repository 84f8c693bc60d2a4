package schema

import (
	"time"

	"github.com/earthframe/earthframe/pkg/api/store"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ArtifactCreate is a nested artifact in a simulation create request.
type ArtifactCreate struct {
	Kind      string  `mapstructure:"kind" validate:"required,oneof=outputPath archivePath runScriptPath postprocessingScriptPath"`
	URI       string  `mapstructure:"uri" validate:"required,max=1000"`
	Label     *string `mapstructure:"label" validate:"omitempty,max=200"`
	Checksum  *string `mapstructure:"checksum" validate:"omitempty,max=128"`
	SizeBytes *int64  `mapstructure:"size_bytes" validate:"omitempty,gte=0"`
}

// ExternalLinkCreate is a nested link in a simulation create request.
type ExternalLinkCreate struct {
	LinkType string  `mapstructure:"link_type" validate:"required,oneof=diagnosticLinks paceLinks docs other"`
	URL      string  `mapstructure:"url" validate:"required,max=1000"`
	Label    *string `mapstructure:"label" validate:"omitempty,max=200"`
}

// SimulationCreate is the body of POST /simulations.
type SimulationCreate struct {
	Name               string    `mapstructure:"name" validate:"required,max=200"`
	Compset            string    `mapstructure:"compset" validate:"required,max=120"`
	CompsetAlias       string    `mapstructure:"compset_alias" validate:"required,max=120"`
	GridName           string    `mapstructure:"grid_name" validate:"required,max=200"`
	GridResolution     string    `mapstructure:"grid_resolution" validate:"required,max=50"`
	InitializationType string    `mapstructure:"initialization_type" validate:"required,max=50"`
	SimulationType     string    `mapstructure:"simulation_type" validate:"required,max=50"`
	Status             string    `mapstructure:"status" validate:"required,max=50"`
	MachineID          uuid.UUID `mapstructure:"machine_id" validate:"required"`
	ModelStartDate     time.Time `mapstructure:"model_start_date" validate:"required"`

	CaseName           *string    `mapstructure:"case_name" validate:"omitempty,max=200"`
	VersionTag         *string    `mapstructure:"version_tag" validate:"omitempty,max=100"`
	GitHash            *string    `mapstructure:"git_hash" validate:"omitempty,max=64"`
	ParentSimulationID *uuid.UUID `mapstructure:"parent_simulation_id"`
	CampaignID         *string    `mapstructure:"campaign_id" validate:"omitempty,max=100"`
	ExperimentTypeID   *string    `mapstructure:"experiment_type_id" validate:"omitempty,max=100"`
	GroupName          *string    `mapstructure:"group_name" validate:"omitempty,max=120"`
	SimulationEndDate  *time.Time `mapstructure:"simulation_end_date"`
	TotalYears         *float64   `mapstructure:"total_years" validate:"omitempty,gte=0"`
	RunStartDate       *time.Time `mapstructure:"run_start_date"`
	RunEndDate         *time.Time `mapstructure:"run_end_date"`
	Compiler           *string    `mapstructure:"compiler" validate:"omitempty,max=100"`
	Branch             *string    `mapstructure:"branch" validate:"omitempty,max=200"`
	ExternalRepoURL    *string    `mapstructure:"external_repo_url" validate:"omitempty,max=1000"`
	NotesMarkdown      *string    `mapstructure:"notes_markdown"`
	KnownIssues        *string    `mapstructure:"known_issues"`
	UploadedBy         *string    `mapstructure:"uploaded_by" validate:"omitempty,max=100"`
	UploadDate         *time.Time `mapstructure:"upload_date"`
	LastModified       *time.Time `mapstructure:"last_modified"`
	LastEditedBy       *string    `mapstructure:"last_edited_by" validate:"omitempty,max=100"`
	LastEditedAt       *time.Time `mapstructure:"last_edited_at"`

	Extra map[string]any `mapstructure:"extra"`

	Artifacts []ArtifactCreate     `mapstructure:"artifacts" validate:"omitempty,dive"`
	Links     []ExternalLinkCreate `mapstructure:"links" validate:"omitempty,dive"`
	Variables []string             `mapstructure:"variables" validate:"omitempty,dive,required,max=100"`
}

// Model converts the request into a store aggregate ready for insertion.
func (s *SimulationCreate) Model() *store.Simulation {
	sim := &store.Simulation{
		Name:               s.Name,
		CaseName:           s.CaseName,
		VersionTag:         s.VersionTag,
		GitHash:            s.GitHash,
		ParentSimulationID: s.ParentSimulationID,
		Compset:            s.Compset,
		CompsetAlias:       s.CompsetAlias,
		GridName:           s.GridName,
		GridResolution:     s.GridResolution,
		InitializationType: s.InitializationType,
		SimulationType:     s.SimulationType,
		Status:             s.Status,
		CampaignID:         s.CampaignID,
		ExperimentTypeID:   s.ExperimentTypeID,
		GroupName:          s.GroupName,
		MachineID:          s.MachineID,
		ModelStartDate:     s.ModelStartDate,
		SimulationEndDate:  s.SimulationEndDate,
		TotalYears:         s.TotalYears,
		RunStartDate:       s.RunStartDate,
		RunEndDate:         s.RunEndDate,
		Compiler:           s.Compiler,
		Branch:             s.Branch,
		ExternalRepoURL:    s.ExternalRepoURL,
		NotesMarkdown:      s.NotesMarkdown,
		KnownIssues:        s.KnownIssues,
		UploadedBy:         s.UploadedBy,
		UploadDate:         s.UploadDate,
		LastModified:       s.LastModified,
		LastEditedBy:       s.LastEditedBy,
		LastEditedAt:       s.LastEditedAt,
		Extra:              datatypes.JSONMap(s.Extra),
	}

	for _, a := range s.Artifacts {
		sim.Artifacts = append(sim.Artifacts, store.Artifact{
			Kind:      a.Kind,
			URI:       a.URI,
			Label:     a.Label,
			Checksum:  a.Checksum,
			SizeBytes: a.SizeBytes,
		})
	}

	for _, l := range s.Links {
		sim.Links = append(sim.Links, store.ExternalLink{
			LinkType: l.LinkType,
			URL:      l.URL,
			Label:    l.Label,
		})
	}

	for _, name := range s.Variables {
		sim.Variables = append(sim.Variables, store.Variable{Name: name})
	}

	return sim
}

// Artifact is the response shape of an artifact. The owning simulation id
// is implied by the enclosing simulation and not repeated.
type Artifact struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	URI       string    `json:"uri"`
	Label     *string   `json:"label"`
	Checksum  *string   `json:"checksum"`
	SizeBytes *int64    `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExternalLink is the response shape of an external link.
type ExternalLink struct {
	ID        uuid.UUID `json:"id"`
	LinkType  string    `json:"link_type"`
	URL       string    `json:"url"`
	Label     *string   `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Simulation is the response shape of a simulation with its children.
type Simulation struct {
	ID                 uuid.UUID      `json:"id"`
	Name               string         `json:"name"`
	CaseName           *string        `json:"case_name"`
	VersionTag         *string        `json:"version_tag"`
	GitHash            *string        `json:"git_hash"`
	ParentSimulationID *uuid.UUID     `json:"parent_simulation_id"`
	Compset            string         `json:"compset"`
	CompsetAlias       string         `json:"compset_alias"`
	GridName           string         `json:"grid_name"`
	GridResolution     string         `json:"grid_resolution"`
	InitializationType string         `json:"initialization_type"`
	SimulationType     string         `json:"simulation_type"`
	Status             string         `json:"status"`
	CampaignID         *string        `json:"campaign_id"`
	ExperimentTypeID   *string        `json:"experiment_type_id"`
	GroupName          *string        `json:"group_name"`
	MachineID          uuid.UUID      `json:"machine_id"`
	ModelStartDate     time.Time      `json:"model_start_date"`
	SimulationEndDate  *time.Time     `json:"simulation_end_date"`
	TotalYears         *float64       `json:"total_years"`
	RunStartDate       *time.Time     `json:"run_start_date"`
	RunEndDate         *time.Time     `json:"run_end_date"`
	Compiler           *string        `json:"compiler"`
	Branch             *string        `json:"branch"`
	ExternalRepoURL    *string        `json:"external_repo_url"`
	NotesMarkdown      *string        `json:"notes_markdown"`
	KnownIssues        *string        `json:"known_issues"`
	UploadedBy         *string        `json:"uploaded_by"`
	UploadDate         *time.Time     `json:"upload_date"`
	LastModified       *time.Time     `json:"last_modified"`
	LastEditedBy       *string        `json:"last_edited_by"`
	LastEditedAt       *time.Time     `json:"last_edited_at"`
	Extra              map[string]any `json:"extra"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	Artifacts          []Artifact     `json:"artifacts"`
	Links              []ExternalLink `json:"links"`
	Variables          []string       `json:"variables"`
}

// NewSimulation builds the response for a stored simulation aggregate.
func NewSimulation(s *store.Simulation) Simulation {
	out := Simulation{
		ID:                 s.ID,
		Name:               s.Name,
		CaseName:           s.CaseName,
		VersionTag:         s.VersionTag,
		GitHash:            s.GitHash,
		ParentSimulationID: s.ParentSimulationID,
		Compset:            s.Compset,
		CompsetAlias:       s.CompsetAlias,
		GridName:           s.GridName,
		GridResolution:     s.GridResolution,
		InitializationType: s.InitializationType,
		SimulationType:     s.SimulationType,
		Status:             s.Status,
		CampaignID:         s.CampaignID,
		ExperimentTypeID:   s.ExperimentTypeID,
		GroupName:          s.GroupName,
		MachineID:          s.MachineID,
		ModelStartDate:     s.ModelStartDate,
		SimulationEndDate:  s.SimulationEndDate,
		TotalYears:         s.TotalYears,
		RunStartDate:       s.RunStartDate,
		RunEndDate:         s.RunEndDate,
		Compiler:           s.Compiler,
		Branch:             s.Branch,
		ExternalRepoURL:    s.ExternalRepoURL,
		NotesMarkdown:      s.NotesMarkdown,
		KnownIssues:        s.KnownIssues,
		UploadedBy:         s.UploadedBy,
		UploadDate:         s.UploadDate,
		LastModified:       s.LastModified,
		LastEditedBy:       s.LastEditedBy,
		LastEditedAt:       s.LastEditedAt,
		Extra:              map[string]any(s.Extra),
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
		Artifacts:          make([]Artifact, 0, len(s.Artifacts)),
		Links:              make([]ExternalLink, 0, len(s.Links)),
		Variables:          make([]string, 0, len(s.Variables)),
	}

	if out.Extra == nil {
		out.Extra = map[string]any{}
	}

	for _, a := range s.Artifacts {
		out.Artifacts = append(out.Artifacts, Artifact{
			ID:        a.ID,
			Kind:      a.Kind,
			URI:       a.URI,
			Label:     a.Label,
			Checksum:  a.Checksum,
			SizeBytes: a.SizeBytes,
			CreatedAt: a.CreatedAt,
			UpdatedAt: a.UpdatedAt,
		})
	}

	for _, l := range s.Links {
		out.Links = append(out.Links, ExternalLink{
			ID:        l.ID,
			LinkType:  l.LinkType,
			URL:       l.URL,
			Label:     l.Label,
			CreatedAt: l.CreatedAt,
			UpdatedAt: l.UpdatedAt,
		})
	}

	for _, v := range s.Variables {
		out.Variables = append(out.Variables, v.Name)
	}

	return out
}

// NewSimulations builds the response for a list of simulations.
func NewSimulations(sims []store.Simulation) []Simulation {
	out := make([]Simulation, 0, len(sims))
	for i := range sims {
		out = append(out, NewSimulation(&sims[i]))
	}

	return out
}

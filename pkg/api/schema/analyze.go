package schema

import (
	"io"

	"github.com/earthframe/earthframe/pkg/api/store"
	"github.com/earthframe/earthframe/pkg/summarize"
	"github.com/google/uuid"
)

// MaxAnalyzeRecords bounds the number of simulations in one analyze call.
const MaxAnalyzeRecords = 200

// AnalyzeRecord is the subset of simulation metadata the summarizer reads.
type AnalyzeRecord struct {
	ID             string  `mapstructure:"id"`
	Name           string  `mapstructure:"name" validate:"required"`
	VersionTag     *string `mapstructure:"version_tag"`
	CampaignID     *string `mapstructure:"campaign_id"`
	Compset        *string `mapstructure:"compset"`
	GridResolution *string `mapstructure:"grid_resolution"`
	MachineID      *string `mapstructure:"machine_id"`
	Machine        *string `mapstructure:"machine"`
	NotesMarkdown  *string `mapstructure:"notes_markdown"`
}

// Record converts the request record for the summarizer. A machine name,
// when given, is preferred over the machine id.
func (r *AnalyzeRecord) Record() summarize.Record {
	machine := deref(r.MachineID)
	if r.Machine != nil && *r.Machine != "" {
		machine = *r.Machine
	}

	return summarize.Record{
		ID:             r.ID,
		Name:           r.Name,
		VersionTag:     deref(r.VersionTag),
		CampaignID:     deref(r.CampaignID),
		Compset:        deref(r.Compset),
		GridResolution: deref(r.GridResolution),
		Machine:        machine,
		Notes:          deref(r.NotesMarkdown),
	}
}

// AnalyzeRequest is the body of POST /analyze-simulations. Clients send
// either a bare array of simulation records or an object carrying records
// and/or ids of stored simulations.
type AnalyzeRequest struct {
	Simulations   []AnalyzeRecord `mapstructure:"simulations" validate:"omitempty,max=200,dive"`
	SimulationIDs []uuid.UUID     `mapstructure:"simulation_ids" validate:"omitempty,max=200"`
}

// AnalyzeResponse is the result of POST /analyze-simulations.
type AnalyzeResponse struct {
	Summary string `json:"summary"`
}

// DecodeAnalyzeRequest reads an analyze request in either accepted form.
func DecodeAnalyzeRequest(r io.Reader) (*AnalyzeRequest, error) {
	raw, err := ReadJSON(r)
	if err != nil {
		return nil, err
	}

	if list, ok := raw.([]any); ok {
		raw = map[string]any{"simulations": list}
	}

	var req AnalyzeRequest
	if err := DecodeValue(raw, &req); err != nil {
		return nil, err
	}

	total := len(req.Simulations) + len(req.SimulationIDs)
	if total == 0 {
		return nil, invalid("simulations", "at least one simulation is required")
	}

	if total > MaxAnalyzeRecords {
		return nil, invalid("simulations", "at most %d simulations can be analyzed at once", MaxAnalyzeRecords)
	}

	return &req, nil
}

// RecordFromSimulation describes a stored simulation for the summarizer.
func RecordFromSimulation(s *store.Simulation) summarize.Record {
	return summarize.Record{
		ID:             s.ID.String(),
		Name:           s.Name,
		VersionTag:     deref(s.VersionTag),
		CampaignID:     deref(s.CampaignID),
		Compset:        s.Compset,
		GridResolution: s.GridResolution,
		Machine:        s.MachineID.String(),
		Notes:          deref(s.NotesMarkdown),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

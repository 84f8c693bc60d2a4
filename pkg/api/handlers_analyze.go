package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/earthframe/earthframe/pkg/api/schema"
	"github.com/earthframe/earthframe/pkg/api/store"
	"github.com/earthframe/earthframe/pkg/summarize"
)

// handleAnalyzeSimulations summarizes the posted simulation records, plus
// any stored simulations referenced by id.
func (s *server) handleAnalyzeSimulations(w http.ResponseWriter, r *http.Request) {
	if s.summarizer == nil {
		writeError(w, http.StatusNotImplemented, categoryNotConfigured,
			"summarization is not configured")

		return
	}

	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	req, err := schema.DecodeAnalyzeRequest(bytes.NewReader(body))
	if err != nil {
		s.writeRequestError(w, err)

		return
	}

	records := make([]summarize.Record, 0, len(req.Simulations)+len(req.SimulationIDs))
	for i := range req.Simulations {
		records = append(records, req.Simulations[i].Record())
	}

	stored, err := s.storedRecords(r, req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnprocessableEntity, categoryInvalidReference, err.Error())

			return
		}

		s.writeInternalError(w, err)

		return
	}

	records = append(records, stored...)

	summary, err := s.summarizer.Summarize(r.Context(), records)
	if err != nil {
		s.log.WithError(err).
			WithField("records", len(records)).
			Error("Summarization failed")

		writeError(w, http.StatusInternalServerError, categorySummarization,
			"Summarization failed: "+err.Error())

		return
	}

	writeJSON(w, http.StatusOK, schema.AnalyzeResponse{Summary: summary})
}

// storedRecords loads the simulations referenced by id and describes
// their machine by name.
func (s *server) storedRecords(r *http.Request, req *schema.AnalyzeRequest) ([]summarize.Record, error) {
	if len(req.SimulationIDs) == 0 {
		return nil, nil
	}

	machines, err := s.store.ListMachines(r.Context())
	if err != nil {
		return nil, fmt.Errorf("listing machines: %w", err)
	}

	names := make(map[string]string, len(machines))
	for _, m := range machines {
		names[m.ID.String()] = m.Name
	}

	records := make([]summarize.Record, 0, len(req.SimulationIDs))

	for _, id := range req.SimulationIDs {
		sim, err := s.store.GetSimulation(r.Context(), id)
		if err != nil {
			return nil, fmt.Errorf("simulation %s: %w", id, err)
		}

		record := schema.RecordFromSimulation(sim)
		if name, ok := names[record.Machine]; ok {
			record.Machine = name
		}

		records = append(records, record)
	}

	return records, nil
}

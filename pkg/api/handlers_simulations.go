package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/earthframe/earthframe/pkg/api/schema"
	"github.com/earthframe/earthframe/pkg/api/store"
	"github.com/earthframe/earthframe/pkg/naming"
	"github.com/earthframe/earthframe/pkg/storage"
	"github.com/google/uuid"
)

// handleCreateSimulation stores a simulation together with its artifacts,
// links and variables.
func (s *server) handleCreateSimulation(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var req schema.SimulationCreate
	if err := schema.Decode(bytes.NewReader(body), &req); err != nil {
		s.writeRequestError(w, err)

		return
	}

	sim := req.Model()

	if user := userFromContext(r.Context()); user != "" && sim.UploadedBy == nil {
		sim.UploadedBy = &user
	}

	created, err := s.store.CreateSimulation(r.Context(), sim)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, categoryConflict, conflictDetail(sim))
		case errors.Is(err, store.ErrInvalidReference):
			writeReferenceError(w, err)
		default:
			s.writeInternalError(w, err)
		}

		return
	}

	s.log.WithField("simulation", created.Name).
		WithField("id", created.ID).
		WithField("artifacts", len(created.Artifacts)).
		WithField("links", len(created.Links)).
		Info("Simulation created")

	writeJSON(w, http.StatusCreated, schema.NewSimulation(created))
}

// conflictDetail names the simulation that already exists.
func conflictDetail(sim *store.Simulation) string {
	if sim.VersionTag == nil || *sim.VersionTag == "" {
		return fmt.Sprintf("Simulation %q already exists", sim.Name)
	}

	return fmt.Sprintf("Simulation %q with version tag %q already exists",
		sim.Name, *sim.VersionTag)
}

// handleListSimulations returns simulations, newest first, optionally
// filtered by query parameters.
func (s *server) handleListSimulations(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSimulationFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, categoryBadRequest, err.Error())

		return
	}

	sims, err := s.store.ListSimulations(r.Context(), filter)
	if err != nil {
		s.writeInternalError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, schema.NewSimulations(sims))
}

// simulationFilterKeys lists the accepted query parameters in snake_case.
var simulationFilterKeys = []string{
	"campaign_id", "compset", "experiment_type_id", "grid_resolution",
	"group_name", "machine_id", "simulation_type", "status", "version_tag",
}

// parseSimulationFilter reads list filters given in camelCase or
// snake_case. Unknown parameters are rejected.
func parseSimulationFilter(q url.Values) (store.SimulationFilter, error) {
	var f store.SimulationFilter

	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, key := range keys {
		value := q.Get(key)
		if value == "" {
			continue
		}

		switch naming.ToSnake(key) {
		case "status":
			f.Status = value
		case "machine_id":
			id, err := uuid.Parse(value)
			if err != nil {
				return f, fmt.Errorf("invalid %s %q: must be a UUID", key, value)
			}

			f.MachineID = &id
		case "campaign_id":
			f.CampaignID = value
		case "experiment_type_id":
			f.ExperimentTypeID = value
		case "version_tag":
			f.VersionTag = value
		case "compset":
			f.Compset = value
		case "grid_resolution":
			f.GridResolution = value
		case "simulation_type":
			f.SimulationType = value
		case "group_name":
			f.GroupName = value
		default:
			accepted := make([]string, 0, len(simulationFilterKeys))
			for _, k := range simulationFilterKeys {
				accepted = append(accepted, naming.ToCamel(k))
			}

			return f, fmt.Errorf("unknown filter %q (accepted: %v)", key, accepted)
		}
	}

	return f, nil
}

// handleGetSimulation returns a simulation with its children.
func (s *server) handleGetSimulation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	sim, err := s.store.GetSimulation(r.Context(), id)
	if err != nil {
		s.writeSimulationLookupError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, schema.NewSimulation(sim))
}

// handleDeleteSimulation removes a simulation; its artifacts, links and
// variable associations go with it.
func (s *server) handleDeleteSimulation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := s.store.DeleteSimulation(r.Context(), id); err != nil {
		s.writeSimulationLookupError(w, err)

		return
	}

	s.log.WithField("id", id).Info("Simulation deleted")

	w.WriteHeader(http.StatusNoContent)
}

// handleListChildSimulations returns the simulations branched from a parent.
func (s *server) handleListChildSimulations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	children, err := s.store.ListChildSimulations(r.Context(), id)
	if err != nil {
		s.writeSimulationLookupError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, schema.NewSimulations(children))
}

// handleArtifactURL returns a presigned download URL for an artifact
// stored in the object store. With ?redirect=true it redirects instead.
func (s *server) handleArtifactURL(w http.ResponseWriter, r *http.Request) {
	simID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	artifactID, ok := pathID(w, r, "artifactID")
	if !ok {
		return
	}

	artifact, err := s.store.GetArtifact(r.Context(), simID, artifactID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, categoryNotFound, "Artifact not found")

			return
		}

		s.writeInternalError(w, err)

		return
	}

	if s.presigner == nil {
		writeError(w, http.StatusNotImplemented, categoryNotConfigured,
			"artifact storage is not configured")

		return
	}

	signed, err := s.presigner.PresignURI(r.Context(), artifact.URI)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotObjectStore):
			writeError(w, http.StatusUnprocessableEntity, categoryBadRequest, err.Error())
		case errors.Is(err, storage.ErrBucketNotAllowed):
			writeError(w, http.StatusForbidden, categoryForbidden, err.Error())
		default:
			s.log.WithError(err).
				WithField("uri", artifact.URI).
				Warn("Failed to generate presigned URL")

			writeError(w, http.StatusBadGateway, categoryInternal, "presigning artifact failed")
		}

		return
	}

	if r.URL.Query().Get("redirect") == "true" {
		http.Redirect(w, r, signed, http.StatusFound)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": signed})
}

func (s *server) writeSimulationLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, categoryNotFound, "Simulation not found")

		return
	}

	s.writeInternalError(w, err)
}

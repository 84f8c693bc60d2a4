package api

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/earthframe/earthframe/pkg/api/schema"
	"github.com/earthframe/earthframe/pkg/api/store"
)

// handleCreateMachine registers a machine. Names are unique.
func (s *server) handleCreateMachine(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var req schema.MachineCreate
	if err := schema.Decode(bytes.NewReader(body), &req); err != nil {
		s.writeRequestError(w, err)

		return
	}

	machine := req.Model()

	if err := s.store.CreateMachine(r.Context(), machine); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusBadRequest, categoryDuplicate,
				"Machine with this name already exists")

			return
		}

		s.writeInternalError(w, err)

		return
	}

	s.log.WithField("machine", machine.Name).
		WithField("id", machine.ID).
		Info("Machine created")

	writeJSON(w, http.StatusCreated, schema.NewMachine(machine))
}

// handleListMachines returns all machines ordered by name.
func (s *server) handleListMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := s.store.ListMachines(r.Context())
	if err != nil {
		s.writeInternalError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, schema.NewMachines(machines))
}

// handleGetMachine returns a single machine.
func (s *server) handleGetMachine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	machine, err := s.store.GetMachine(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, categoryNotFound, "Machine not found")

			return
		}

		s.writeInternalError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, schema.NewMachine(machine))
}

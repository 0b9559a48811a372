package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/erauner12/todosync/internal/service/todoservice"
	"github.com/erauner12/todosync/internal/syncx"
	"github.com/rs/zerolog/log"
)

// maxMutationBytes caps the POST /sync body
const maxMutationBytes = 1 << 20

// ListTodos handles GET /items (and the /todos alias)
func (s *Server) ListTodos(w http.ResponseWriter, r *http.Request) {
	todos, err := s.Todos.List(r.Context())
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to list todos")
		writeError(w, r, http.StatusInternalServerError, "failed to list todos")
		return
	}
	writeJSON(w, http.StatusOK, todos)
}

// ApplyMutation handles POST /sync
func (s *Server) ApplyMutation(w http.ResponseWriter, r *http.Request) {
	var m syncx.Mutation
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMutationBytes)).Decode(&m); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	if err := s.Todos.Apply(r.Context(), m); err != nil {
		var me *todoservice.MutationError
		if errors.As(err, &me) {
			writeError(w, r, http.StatusBadRequest, me.Message)
			return
		}
		log.Ctx(r.Context()).Error().Err(err).Str("op", string(m.Operation)).Msg("failed to apply mutation")
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, syncx.SyncAck{Success: true})
}

package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/model"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) HandleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	var wf model.WorkflowDefinition
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()
	workflowId, err := s.definitions.Create(wf)
	if err != nil {
		logger.Error("error creating workflow definition", zap.String("name", wf.Name), zap.Error(err))
		respondWithError(w, statusCodeFor(err), err.Error())
		return
	}
	respondOK(w, map[string]any{"workflowId": workflowId, "version": 1})
}

func (s *Server) HandleUpdateDefinition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	workflowId := vars["id"]
	var wf model.WorkflowDefinition
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()
	version, err := s.definitions.Update(workflowId, wf)
	if err != nil {
		logger.Error("error updating workflow definition", zap.String("workflow", workflowId), zap.Error(err))
		respondWithError(w, statusCodeFor(err), err.Error())
		return
	}
	respondOK(w, map[string]any{"workflowId": workflowId, "version": version})
}

func (s *Server) HandleGetLatestDefinition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	workflowId := vars["id"]
	wf, err := s.definitions.Latest(workflowId)
	if err != nil {
		respondWithError(w, statusCodeFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, wf)
}

func (s *Server) HandleGetDefinition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	workflowId := vars["id"]
	version, err := strconv.Atoi(vars["version"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "version must be an integer")
		return
	}
	wf, err := s.definitions.Get(workflowId, version)
	if err != nil {
		respondWithError(w, statusCodeFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, wf)
}

package rest

import (
	"encoding/json"
	"net/http"

	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/model"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) HandleStartExecution(w http.ResponseWriter, r *http.Request) {
	var runReq model.WorkflowRunRequest
	if err := json.NewDecoder(r.Body).Decode(&runReq); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()
	executionId, err := s.executionService.StartExecution(runReq.WorkflowId, runReq.Input)
	if err != nil {
		logger.Error("error starting execution", zap.String("workflow", runReq.WorkflowId), zap.Error(err))
		respondWithError(w, statusCodeFor(err), err.Error())
		return
	}
	respondOK(w, map[string]any{"executionId": executionId})
}

func (s *Server) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	ownerId := r.URL.Query().Get("ownerId")
	executions, err := s.executionService.ListExecutions(ownerId)
	if err != nil {
		respondWithError(w, statusCodeFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, executions)
}

func (s *Server) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	executionId := vars["id"]
	execution, err := s.executionService.GetExecution(executionId)
	if err != nil {
		respondWithError(w, statusCodeFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, execution)
}

func (s *Server) HandleCancelExecution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	executionId := vars["id"]
	if err := s.executionService.CancelExecution(executionId); err != nil {
		logger.Error("error cancelling execution", zap.String("execution", executionId), zap.Error(err))
		respondWithError(w, statusCodeFor(err), err.Error())
		return
	}
	respondOKWithoutBody(w)
}

func (s *Server) HandleGetExecutionLog(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	executionId := vars["id"]
	entries, err := s.executionService.GetExecutionLog(executionId)
	if err != nil {
		respondWithError(w, statusCodeFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}

package rest

import (
	"encoding/json"
	"net/http"

	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/model"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) HandlePostSignal(w http.ResponseWriter, r *http.Request) {
	var signalReq model.SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&signalReq); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()
	signalId, err := s.executionService.PostSignal(signalReq.ExecutionId, signalReq.Type, signalReq.Payload)
	if err != nil {
		logger.Error("error posting signal", zap.String("execution", signalReq.ExecutionId), zap.String("type", signalReq.Type), zap.Error(err))
		respondWithError(w, statusCodeFor(err), err.Error())
		return
	}
	respondOK(w, map[string]any{"signalId": signalId})
}

func (s *Server) HandleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var scheduleReq model.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&scheduleReq); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()
	scheduleId, err := s.executionService.CreateSchedule(scheduleReq.WorkflowId, scheduleReq.Cron)
	if err != nil {
		logger.Error("error creating schedule", zap.String("workflow", scheduleReq.WorkflowId), zap.Error(err))
		respondWithError(w, statusCodeFor(err), err.Error())
		return
	}
	respondOK(w, map[string]any{"scheduleId": scheduleId})
}

func (s *Server) HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	scheduleId := vars["id"]
	schedule, err := s.executionService.GetSchedule(scheduleId)
	if err != nil {
		respondWithError(w, statusCodeFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, schedule)
}

func (s *Server) HandleActivateSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	scheduleId := vars["id"]
	if err := s.executionService.ActivateSchedule(scheduleId); err != nil {
		respondWithError(w, statusCodeFor(err), err.Error())
		return
	}
	respondOKWithoutBody(w)
}

func (s *Server) HandleDeactivateSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	scheduleId := vars["id"]
	if err := s.executionService.DeactivateSchedule(scheduleId); err != nil {
		respondWithError(w, statusCodeFor(err), err.Error())
		return
	}
	respondOKWithoutBody(w)
}

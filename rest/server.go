package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flowmill/flowmill/definition"
	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/persistence"
	"github.com/flowmill/flowmill/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port             int
	definitions      *definition.Service
	executionService *service.WorkflowExecutionService
}

func NewServer(httpPort int, definitions *definition.Service, executionService *service.WorkflowExecutionService) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		Port:             httpPort,
		definitions:      definitions,
		executionService: executionService,
	}

	router := mux.NewRouter()
	router.HandleFunc("/definition", s.HandleCreateDefinition).Methods(http.MethodPost)
	router.HandleFunc("/definition/{id}", s.HandleUpdateDefinition).Methods(http.MethodPut)
	router.HandleFunc("/definition/{id}", s.HandleGetLatestDefinition).Methods(http.MethodGet)
	router.HandleFunc("/definition/{id}/{version}", s.HandleGetDefinition).Methods(http.MethodGet)

	router.HandleFunc("/execution", s.HandleStartExecution).Methods(http.MethodPost)
	router.HandleFunc("/execution", s.HandleListExecutions).Methods(http.MethodGet).Queries("ownerId", "{ownerId}")
	router.HandleFunc("/execution/{id}", s.HandleGetExecution).Methods(http.MethodGet)
	router.HandleFunc("/execution/{id}/cancel", s.HandleCancelExecution).Methods(http.MethodPost)
	router.HandleFunc("/execution/{id}/log", s.HandleGetExecutionLog).Methods(http.MethodGet)

	router.HandleFunc("/signal", s.HandlePostSignal).Methods(http.MethodPost)

	router.HandleFunc("/schedule", s.HandleCreateSchedule).Methods(http.MethodPost)
	router.HandleFunc("/schedule/{id}", s.HandleGetSchedule).Methods(http.MethodGet)
	router.HandleFunc("/schedule/{id}/activate", s.HandleActivateSchedule).Methods(http.MethodPost)
	router.HandleFunc("/schedule/{id}/deactivate", s.HandleDeactivateSchedule).Methods(http.MethodPost)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server")
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message map[string]any) {
	respondWithJSON(w, http.StatusOK, message)
}

func respondOKWithoutBody(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func statusCodeFor(err error) int {
	var notFound persistence.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	var invalid definition.InvalidGraphError
	if errors.As(err, &invalid) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

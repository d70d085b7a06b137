// Package server exposes the admin/status HTTP API (A7): counterparty
// session status, sequence-number correction, audit log retrieval, and a
// live SSE tail of a counterparty's rendered audit lines.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/glennswest/fixgw/discovery"
	"github.com/glennswest/fixgw/logs"
	"github.com/glennswest/fixgw/session"
)

type Server struct {
	port       int
	version    string
	registry   *discovery.Registry
	manager    *session.Manager
	logWriter  *logs.Writer
	router     *mux.Router
	httpServer *http.Server
}

func New(port int, registry *discovery.Registry, manager *session.Manager, logWriter *logs.Writer, version string) *Server {
	s := &Server{
		port:      port,
		version:   version,
		registry:  registry,
		manager:   manager,
		logWriter: logWriter,
		router:    mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", s.handleVersion).Methods("GET")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{name}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{name}/seq", s.handleSetExpectedSeq).Methods("POST")
	api.HandleFunc("/sessions/{name}/stream", s.handleStream).Methods("GET")
	api.HandleFunc("/sessions/{name}/logs", s.handleListLogs).Methods("GET")
	api.HandleFunc("/sessions/{name}/logs/{filename}", s.handleGetLog).Methods("GET")
	api.HandleFunc("/sessions/{name}/logs/rotate", s.handleRotateLogs).Methods("POST")
	api.HandleFunc("/sessions/{name}/metrics", s.handleMetrics).Methods("GET")
	api.HandleFunc("/refresh", s.handleRefresh).Methods("POST")
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("admin api: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Run(ctx context.Context) error {
	s.router.Use(loggingMiddleware)
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		log.Info("admin api: shutting down")
		s.httpServer.Shutdown(context.Background())
	}()

	log.Infof("admin api listening on port %d", s.port)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	log.Errorf("admin api server error: %v", err)
	return err
}

// Package ctrlApi serves the read-only diagnostics API: managed switches,
// their learned addresses, the policy tables and prometheus metrics.
package ctrlApi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shaleman/polswitch/pkg/l2switch"
	"github.com/shaleman/polswitch/pkg/ofctrl"
	"github.com/shaleman/polswitch/pkg/topoPolicy"

	log "github.com/sirupsen/logrus"
)

type HttpApiFunc func(w http.ResponseWriter, r *http.Request, vars map[string]string) (interface{}, error)

// SwitchDb is what the API reads from, implemented by l2switch.Dispatcher
type SwitchDb interface {
	Switches() []l2switch.SwitchInfo
	Engine(dpid ofctrl.DPID) *l2switch.Engine
	Policy() *topoPolicy.Policy
}

// httpError carries a status code back to makeHttpHandler
type httpError struct {
	code int
	err  error
}

func (e *httpError) Error() string { return e.err.Error() }

// Server is the diagnostics HTTP server
type Server struct {
	switchDb SwitchDb
	router   *mux.Router
}

// NewServer creates a server and its routes
func NewServer(switchDb SwitchDb) *Server {
	s := &Server{switchDb: switchDb}
	s.router = s.createRouter()

	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on listenAddr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, listenAddr string) error {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return errors.Wrapf(err, "api listen on %s", listenAddr)
	}

	return s.Serve(ctx, listener)
}

// Serve serves on an existing listener until ctx is cancelled
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Infof("HTTP server listening on %s", listener.Addr())

	if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "api server")
	}
	return nil
}

// Create a router and initialize the routes
func (s *Server) createRouter() *mux.Router {
	router := mux.NewRouter()

	// List of routes
	routeMap := map[string]map[string]HttpApiFunc{
		"GET": {
			"/switches":             s.httpGetSwitchList,
			"/switches/{dpid}/macs": s.httpGetMacList,
			"/policy":               s.httpGetPolicy,
		},
	}

	// Register each method/path
	for method, routes := range routeMap {
		for route, funct := range routes {
			log.Debugf("Registering %s %s", method, route)

			f := makeHttpHandler(method, route, funct)
			router.Path(route).Methods(method).HandlerFunc(f)
		}
	}

	router.Path("/metrics").Methods("GET").Handler(promhttp.Handler())

	return router
}

// Simple Wrapper for http handlers
func makeHttpHandler(localMethod string, localRoute string, handlerFunc HttpApiFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("%s %s", r.Method, r.RequestURI)

		resp, err := handlerFunc(w, r, mux.Vars(r))
		if err != nil {
			code := http.StatusInternalServerError
			if herr, ok := err.(*httpError); ok {
				code = herr.code
			}

			log.Errorf("Handler for %s %s returned error: %s", localMethod, localRoute, err)
			http.Error(w, err.Error(), code)
			return
		}

		if err := writeJSON(w, http.StatusOK, resp); err != nil {
			log.Warnf("Error writing response for %s %s. Err: %v", localMethod, localRoute, err)
		}
	}
}

// writeJSON: writes the value v to the http response stream as json with standard
// json encoding.
func writeJSON(w http.ResponseWriter, code int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	return json.NewEncoder(w).Encode(v)
}

func (s *Server) httpGetSwitchList(w http.ResponseWriter, r *http.Request, vars map[string]string) (interface{}, error) {
	return s.switchDb.Switches(), nil
}

func (s *Server) httpGetMacList(w http.ResponseWriter, r *http.Request, vars map[string]string) (interface{}, error) {
	dpid, err := ofctrl.ParseDPID(vars["dpid"])
	if err != nil {
		return nil, &httpError{code: http.StatusBadRequest, err: err}
	}

	engine := s.switchDb.Engine(dpid)
	if engine == nil {
		return nil, &httpError{code: http.StatusNotFound, err: errors.Errorf("switch %v not connected", dpid)}
	}

	return engine.MacTable().Entries(), nil
}

func (s *Server) httpGetPolicy(w http.ResponseWriter, r *http.Request, vars map[string]string) (interface{}, error) {
	return s.switchDb.Policy(), nil
}

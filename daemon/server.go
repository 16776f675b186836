// Package daemon implements the REST layer of vnetd: it decodes HTTP
// requests into registry and allocator operations, maps the error taxonomy
// to status codes, and provides a typed client for local callers.
package daemon

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vnetd/vnetd/device"
	"github.com/vnetd/vnetd/neterr"
	"github.com/vnetd/vnetd/subnet"
)

// Server serves the device and subnet registries over HTTP. Each route
// performs exactly one registry or allocator operation.
type Server struct {
	svr     *http.Server
	router  chi.Router
	devices *device.Registry
	subnets *subnet.Allocator
}

func NewServer(devices *device.Registry, subnets *subnet.Allocator) *Server {
	s := &Server{
		router:  chi.NewMux(),
		devices: devices,
		subnets: subnets,
	}
	s.router.Use(logRequests)
	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.router.Get(statusEndpoint, s.statusHandler)
	s.router.Post(tunEndpoint, s.createTunHandler)
	s.router.Get(tunEndpoint, s.listTunsHandler)
	s.router.Post(subnetEndpoint, s.createSubnetHandler)
	s.router.Get(subnetEndpoint, s.listSubnetsHandler)
	s.router.Delete(subnetEndpoint+"/{cidr}", s.deleteSubnetHandler)
	return s
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background. No write
// timeout is set so an in-flight adapter call runs to completion even if
// the client has gone away.
func (s *Server) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("daemon: listen on %s: %w", addr, err)
	}
	svr := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.svr = svr
	go func() {
		slog.Info("vnetd API listening", "address", l.Addr().String())
		if err := svr.Serve(l); err != nil && err != http.ErrServerClosed {
			slog.Error("vnetd API server", "error", err)
		}
	}()
	return nil
}

// Close shuts down the HTTP server. Registry teardown is the caller's
// responsibility.
func (s *Server) Close() error {
	if s.svr == nil {
		return nil
	}
	slog.Info("closing vnetd API server")
	return s.svr.Close()
}

func (s *Server) createTunHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateTunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, neterr.New(neterr.OutOfRange, "invalid request body: %v", err))
		return
	}
	dev, err := s.devices.Allocate(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (s *Server) listTunsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.devices.List())
}

func (s *Server) createSubnetHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateSubnetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, neterr.New(neterr.OutOfRange, "invalid request body: %v", err))
		return
	}
	sub, err := s.subnets.Allocate(req.CIDR)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) listSubnetsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.subnets.List())
}

func (s *Server) deleteSubnetHandler(w http.ResponseWriter, r *http.Request) {
	// The CIDR path segment arrives percent-encoded ("/" as %2F).
	cidr, err := url.PathUnescape(chi.URLParam(r, "cidr"))
	if err != nil {
		writeError(w, neterr.New(neterr.OutOfRange, "invalid CIDR path segment: %v", err))
		return
	}
	if err := s.subnets.Delete(cidr); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type daemonStatus struct {
	State      string `json:"state"`
	Devices    int    `json:"devices"`
	Subnets    int    `json:"subnets"`
	Goroutines int    `json:"goroutines"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, daemonStatus{
		State:      "running",
		Devices:    s.devices.Len(),
		Subnets:    s.subnets.Len(),
		Goroutines: runtime.NumGoroutine(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := neterr.KindOf(err)
	if kind == neterr.InconsistentState {
		slog.Error("registry invariant may be violated", "error", err)
	}
	writeJSON(w, statusFor(kind), APIError{
		Error:   string(kind),
		Message: neterr.Message(err),
	})
}

func statusFor(kind neterr.Kind) int {
	switch kind {
	case neterr.NameConflict, neterr.Overlap:
		return http.StatusConflict
	case neterr.NotFound:
		return http.StatusNotFound
	case neterr.OutOfRange:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("API request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

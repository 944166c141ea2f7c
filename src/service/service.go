// Package service exposes a read-only HTTP API over a running node.
package service

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mosaicnetworks/bftnode/src/common"
	"github.com/mosaicnetworks/bftnode/src/messages"
	"github.com/mosaicnetworks/bftnode/src/peers"
	"github.com/sirupsen/logrus"
)

// Node is the part of a node the service reads from.
type Node interface {
	GetStats() map[string]string
	GetBlock(height uint64) (messages.Block, error)
	GetPeers() []*peers.Peer
}

// Service ...
type Service struct {
	bindAddress string
	node        Node
	mux         *http.ServeMux
	server      *http.Server
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	service.server = &http.Server{
		Addr:              bindAddress,
		Handler:           service.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/block/", s.makeHandler(s.GetBlock))
	s.mux.HandleFunc("/peers", s.makeHandler(s.GetPeers))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// ServeHTTP lets the service be mounted in another server or tested with
// httptest.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Serve calls ListenAndServe. This is a blocking call. It returns nil after
// Close.
func (s *Service) Serve() error {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	if err != nil {
		s.logger.WithError(err).Error("Serving API")
	}
	return err
}

// Close stops the HTTP server.
func (s *Service) Close() error {
	return s.server.Close()
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// GetBlock returns the summary of the block at the height given in the path.
func (s *Service) GetBlock(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/block/"):]

	height, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing height parameter %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	block, err := s.node.GetBlock(height)
	if err != nil {
		status := http.StatusInternalServerError
		if common.IsStore(err, common.KeyNotFound) {
			status = http.StatusNotFound
		} else {
			s.logger.WithError(err).Errorf("Retrieving block %d", height)
		}
		http.Error(w, err.Error(), status)
		return
	}

	summary, err := messages.Summarize(block.Raw())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out, err := summary.Marshal()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetPeers())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(v)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"shoplist/internal/docstore"
	"shoplist/internal/models"
	"shoplist/internal/storage"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	maxBodyBytes = 1 << 20
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Server is the self-hosted document store every client syncs through.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	store      *storage.Store
	hub        *hub
	upgrader   websocket.Upgrader
	port       int

	// writeMu orders a store write with its publish, so listeners see
	// snapshots in revision order.
	writeMu sync.Mutex
}

func New(store *storage.Store, port int) *Server {
	return &Server{
		store: store,
		hub:   newHub(),
		port:  port,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/documents/{collection}/{document}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/v1/documents/{collection}/{document}", s.handlePut).Methods(http.MethodPut)
	r.HandleFunc("/v1/documents/{collection}/{document}/listen", s.handleListen).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Endpoint not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})
	return r
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.port),
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			glog.Errorf("HTTP server error: %v", err)
		}
	}()

	glog.Infof("document server listening on %s (db %s)", listener.Addr(), s.store.Path())
	return nil
}

func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Port returns the bound port, which differs from the configured one when
// that was 0.
func (s *Server) Port() int {
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.port
}

func documentPath(r *http.Request) string {
	vars := mux.Vars(r)
	return vars["collection"] + "/" + vars["document"]
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.Get(documentPath(r))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Document not found")
		return
	}
	if err != nil {
		glog.Warningf("get %s: %v", documentPath(r), err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to read document")
		return
	}

	writeJSON(w, http.StatusOK, snapshotOf(record))
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	path := documentPath(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Failed to read body")
		return
	}
	if len(body) > maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "Document exceeds 1 MiB")
		return
	}

	doc, err := docstore.DecodeDocument(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_document", err.Error())
		return
	}
	normalized, err := json.Marshal(models.Document{ShoppingList: doc.Items()})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to encode document")
		return
	}

	snap, err := s.putAndPublish(path, normalized)
	if err != nil {
		glog.Warningf("put %s: %v", path, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to store document")
		return
	}
	glog.V(2).Infof("put %s rev=%s items=%d listeners=%d", path, snap.Revision, len(doc.ShoppingList), s.hub.count(path))

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	path := documentPath(r)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		return
	}
	defer ws.Close()

	updates, record, err := s.attach(path)
	defer s.hub.leave(path, updates)
	switch {
	case err == nil:
		if err := writeSnapshot(ws, snapshotOf(record)); err != nil {
			return
		}
	case !errors.Is(err, storage.ErrNotFound):
		glog.Warningf("listen %s: %v", path, err)
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := writeSnapshot(ws, snap); err != nil {
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (s *Server) putAndPublish(path string, data json.RawMessage) (docstore.Snapshot, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	record, err := s.store.Put(path, data)
	if err != nil {
		return docstore.Snapshot{}, err
	}
	snap := snapshotOf(record)
	s.hub.publish(snap)
	return snap, nil
}

// attach joins the hub and reads the current document with no write in
// between.
func (s *Server) attach(path string) (chan docstore.Snapshot, *storage.Record, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	updates := s.hub.join(path)
	record, err := s.store.Get(path)
	return updates, record, err
}

func writeSnapshot(ws *websocket.Conn, snap docstore.Snapshot) error {
	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteJSON(snap)
}

func snapshotOf(record *storage.Record) docstore.Snapshot {
	return docstore.Snapshot{
		Path:      record.Path,
		Revision:  record.Revision,
		UpdatedAt: record.UpdatedAt,
		Data:      record.Data,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, docstore.APIError{Code: code, Message: message})
}

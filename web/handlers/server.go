package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	ds "github.com/starfederation/datastar-go/datastar"

	"cuview/web"
)

const (
	TICKS_PER_SECOND = 4

	shutdownTimeout = 5 * time.Second
)

type Server struct {
	renderer    Renderer
	handler     *http.ServeMux
	connections atomic.Uint64
}

func NewServer(renderer Renderer) *Server {
	s := &Server{
		renderer: renderer,
	}

	handler := http.NewServeMux()
	handler.HandleFunc("/", s.IndexHandler)
	handler.HandleFunc("/tick", s.TickHandler)
	handler.Handle("/static/", http.FileServer(http.FS(web.Static)))

	for path, uiHandler := range renderer.Handlers() {
		handler.HandleFunc(path, uiHandler)
	}

	s.handler = handler

	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Start on an existing listener. Request contexts derive from ctx so open SSE streams end
// with it instead of holding up the shutdown.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:     s.handler,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s …", listener.Addr())
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// IndexHandler is the main entrypoint for the UI
func (s *Server) IndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	getClientID(w, r)
	err := s.renderer.Templates().ExecuteTemplate(w, "index", s.renderer.Data())
	if err != nil {
		log.Printf("couldn't execute template for index %s", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// TickHandler keeps an SSE stream open and lets the renderer patch the page on every tick.
func (s *Server) TickHandler(w http.ResponseWriter, r *http.Request) {
	// each open page tracks its own revisions, even when tabs share a cookie
	connectionID := fmt.Sprintf("%s#%d", getClientID(w, r), s.connections.Add(1))
	defer s.renderer.Forget(connectionID)

	sse := ds.NewSSE(w, r)

	ctx := r.Context()
	ticker := time.NewTicker(time.Second / TICKS_PER_SECOND)
	defer ticker.Stop()

	for {
		if err := s.renderer.OnTick(sse, connectionID); err != nil {
			log.Printf("error running renderer on tick: %s", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

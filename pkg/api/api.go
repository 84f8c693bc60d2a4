package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/earthframe/earthframe/pkg/api/store"
	"github.com/earthframe/earthframe/pkg/config"
	"github.com/earthframe/earthframe/pkg/storage"
	"github.com/earthframe/earthframe/pkg/summarize"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	store      store.Store
	presigner  *storage.Presigner
	summarizer *summarize.Summarizer
	users      *basicAuth
	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
	stopOnce   sync.Once
	stopErr    error
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
) Server {
	return &server{
		log:  log.WithField("component", "api"),
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start opens the store, prepares the optional collaborators and starts
// the HTTP server. A failed Start releases whatever it had opened.
func (s *server) Start(ctx context.Context) error {
	if err := s.prepare(ctx); err != nil {
		_ = s.Stop()

		return err
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen(),
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		_ = s.Stop()

		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.httpServer.Addr).
			WithField("env", s.cfg.Global.Env).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// prepare creates everything the router depends on.
func (s *server) prepare(ctx context.Context) error {
	s.store = store.NewStore(s.log, &s.cfg.Database)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	if s.cfg.Auth.Basic.Enabled {
		users, err := newBasicAuth(s.cfg.Auth.Basic.Users)
		if err != nil {
			return fmt.Errorf("preparing basic auth: %w", err)
		}

		s.users = users

		s.log.WithField("users", len(s.cfg.Auth.Basic.Users)).
			Info("Basic auth enabled for write endpoints")
	}

	if s.cfg.Storage.Enabled {
		presigner, err := storage.New(s.log, &s.cfg.Storage)
		if err != nil {
			return fmt.Errorf("initializing artifact storage: %w", err)
		}

		s.presigner = presigner

		s.log.WithField("provider", s.cfg.Storage.Provider).
			Info("Artifact presigned URL generation enabled")
	}

	if s.cfg.Summarizer.Enabled {
		backend := summarize.NewHTTPBackend(
			s.cfg.Summarizer.Endpoint,
			s.cfg.Summarizer.APIToken,
			s.cfg.Summarizer.Timeout,
		)

		s.summarizer = summarize.New(s.log, backend, summarize.Options{
			SinglePassLimit: s.cfg.Summarizer.SinglePassLimit,
			BatchSize:       s.cfg.Summarizer.BatchSize,
			Concurrency:     s.cfg.Summarizer.Concurrency,
		})
	}

	return nil
}

// Stop gracefully shuts down the HTTP server and closes the store. Only
// the first call has an effect; later calls return its result.
func (s *server) Stop() error {
	s.stopOnce.Do(func() { s.stopErr = s.shutdown() })

	return s.stopErr
}

func (s *server) shutdown() error {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}

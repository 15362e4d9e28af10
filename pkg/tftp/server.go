// Package tftp is the public, embeddable API for the engine: a Server type
// constructed with a root directory and port, configured through setters,
// and driven with Start/Stop. It wires internal/dispatcher,
// internal/storage, internal/validation, and internal/logging together the
// way cmd/tftpd's binary does, for callers that want the engine without the
// CLI wrapper.
package tftp

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wa4h1h/tftpd/internal/dispatcher"
	"github.com/wa4h1h/tftpd/internal/logging"
	"github.com/wa4h1h/tftpd/internal/storage"
	"github.com/wa4h1h/tftpd/internal/validation"
)

// ReadCallback replaces the storage read path entirely for read requests:
// given the canonical path it returns the full file contents, or an error
// that becomes a peer-visible TFTP error.
type ReadCallback func(canonicalPath string) ([]byte, error)

// WriteCallback replaces the storage write path entirely for write
// requests.
type WriteCallback func(canonicalPath string, data []byte) error

const (
	defaultTimeout    = 5 * time.Second
	defaultMaxSize    = 64 * 1024 * 1024
	defaultWorkers    = 0 // 0 selects runtime.NumCPU() in the dispatcher
	defaultHost       = ""
	secureModeDefault = true
)

// Server is the embeddable TFTP engine. All configuration fields are
// guarded by mu, following KarpelesLab-rofuse's Server.mu sync.RWMutex
// config-guard pattern: many sessions read a configuration snapshot
// concurrently, only Set* setters and Start/Stop write.
type Server struct {
	mu sync.RWMutex

	rootDir string
	port    uint16
	host    string

	secureMode      bool
	maxTransferSize int64
	timeout         time.Duration
	workers         int

	readCB  ReadCallback
	writeCB WriteCallback

	logger *zap.SugaredLogger
	store  storage.Storage

	disp    *dispatcher.Dispatcher
	running bool
}

// NewServer constructs a Server that will serve rootDir over UDP on port
// once Start is called. It does not touch the network or the filesystem.
func NewServer(rootDir string, port uint16) (*Server, error) {
	if err := validation.RootDir(rootDir); err != nil {
		return nil, err
	}

	if err := validation.Port(int(port)); err != nil {
		return nil, err
	}

	logger, err := logging.New("info")
	if err != nil {
		return nil, fmt.Errorf("tftp: server: %w", err)
	}

	if validation.IsPrivilegedPort(int(port)) {
		logger.Warnw("binding a privileged port", "port", port)
	}

	return &Server{
		rootDir:         rootDir,
		port:            port,
		host:            defaultHost,
		secureMode:      secureModeDefault,
		maxTransferSize: defaultMaxSize,
		timeout:         defaultTimeout,
		workers:         defaultWorkers,
		logger:          logger,
		store:           storage.NewFilesystem(),
	}, nil
}

// SetLogger overrides the default logger. Must be called before Start.
func (s *Server) SetLogger(logger *zap.SugaredLogger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger = logger
}

// SetStorage overrides the default filesystem-backed storage, e.g. with
// storage.NewMemory() for embedding without real files. Must be called
// before Start.
func (s *Server) SetStorage(store storage.Storage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store = store
}

// SetHost restricts the well-known endpoint to a specific local address
// instead of binding all interfaces.
func (s *Server) SetHost(host string) error {
	if err := validation.Host(host); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.host = host

	return nil
}

// SetSecureMode toggles the path-safety containment check. It is on by
// default; disabling it is a deliberate, logged choice.
func (s *Server) SetSecureMode(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.secureMode = enabled

	if !enabled {
		s.logger.Warnw("secure mode disabled: filenames are not checked for root-directory containment")
	}
}

// SetMaxTransferSize bounds both read (file size) and write (accumulated
// payload) transfers.
func (s *Server) SetMaxTransferSize(bytes int64) error {
	if err := validation.TransferSize(bytes); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.maxTransferSize = bytes

	return nil
}

// SetTimeout sets the per-block ACK/DATA wait before a retransmit.
func (s *Server) SetTimeout(seconds int) error {
	if err := validation.TimeoutSeconds(seconds); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.timeout = time.Duration(seconds) * time.Second

	return nil
}

// SetWorkers overrides the worker pool size. 0 selects runtime.NumCPU()
// (clamped to [1,64]) in the dispatcher.
func (s *Server) SetWorkers(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workers = n
}

// SetReadCallback installs cb as the read path for read requests, in place
// of the configured storage's Read. cb must not be nil.
func (s *Server) SetReadCallback(cb ReadCallback) error {
	if err := validation.CallbackNotNil(cb); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.readCB = cb

	return nil
}

// SetWriteCallback installs cb as the write path for write requests, in
// place of the configured storage's Write. cb must not be nil.
func (s *Server) SetWriteCallback(cb WriteCallback) error {
	if err := validation.CallbackNotNil(cb); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.writeCB = cb

	return nil
}

// Start binds the well-known UDP endpoint and begins serving in a new
// goroutine. It returns false on bind/socket failure rather than an error,
// since callers are expected to check IsRunning/logs.
func (s *Server) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return false
	}

	disp, err := dispatcher.New(s.logger, s.host, s.port, s.workers, s.snapshot)
	if err != nil {
		s.logger.Errorw("failed to start server", "error", err)

		return false
	}

	s.disp = disp
	s.running = true

	go disp.Serve()

	return true
}

// Stop gracefully shuts down the well-known endpoint and waits for
// in-flight sessions to finish. Safe to call when not running.
func (s *Server) Stop() {
	s.mu.Lock()
	disp := s.disp
	wasRunning := s.running
	s.running = false
	s.disp = nil
	s.mu.Unlock()

	if wasRunning && disp != nil {
		disp.Stop()
	}
}

// IsRunning reports whether the server is currently accepting requests:
// the running flag is set and the dispatcher (and its well-known endpoint)
// is live.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.running && s.disp != nil
}

// LocalAddr returns the well-known endpoint's bound local address, or nil
// when the server is not running. Useful when the caller needs the address
// the dispatcher actually bound, e.g. in tests.
func (s *Server) LocalAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.disp == nil {
		return nil
	}

	return s.disp.LocalAddr()
}

// snapshot captures the server's current policy for one accepted request.
// It is handed to the dispatcher as a dispatcher.SnapshotFunc.
func (s *Server) snapshot() dispatcher.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return dispatcher.Snapshot{
		RootDir:         s.rootDir,
		SecureMode:      s.secureMode,
		MaxTransferSize: s.maxTransferSize,
		PerBlockTimeout: s.timeout,
		Storage:         s.effectiveStorage(),
	}
}

// effectiveStorage wraps s.store with any installed Read/Write callbacks.
// Must be called with s.mu held for reading.
func (s *Server) effectiveStorage() storage.Storage {
	if s.readCB == nil && s.writeCB == nil {
		return s.store
	}

	return &callbackStorage{fallback: s.store, readCB: s.readCB, writeCB: s.writeCB}
}

// callbackStorage adapts an embedder's ReadCallback/WriteCallback onto the
// storage.Storage interface the session engine consumes, falling back to
// the server's underlying storage for whichever direction has no callback
// installed.
type callbackStorage struct {
	fallback storage.Storage
	readCB   ReadCallback
	writeCB  WriteCallback
}

func (c *callbackStorage) Read(logicalPath string) ([]byte, error) {
	if c.readCB != nil {
		return c.readCB(logicalPath)
	}

	return c.fallback.Read(logicalPath)
}

func (c *callbackStorage) Write(logicalPath string, data []byte) error {
	if c.writeCB != nil {
		return c.writeCB(logicalPath, data)
	}

	return c.fallback.Write(logicalPath, data)
}

// Package dispatcher owns the well-known TFTP endpoint, parses the first
// packet of every new transfer, validates the requested filename, and
// schedules a session worker with its own fresh ephemeral endpoint bound to
// the client's transfer ID. It never touches the well-known endpoint again
// after scheduling a session; all further traffic for that transfer flows
// through the session's own endpoint.
package dispatcher

import (
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wa4h1h/tftpd/internal/endpoint"
	"github.com/wa4h1h/tftpd/internal/pathsafety"
	"github.com/wa4h1h/tftpd/internal/protocol"
	"github.com/wa4h1h/tftpd/internal/session"
	"github.com/wa4h1h/tftpd/internal/storage"
)

const (
	shortPollInterval = 200 * time.Millisecond
	minWorkers        = 1
	maxWorkers        = 64
)

// Snapshot is the server-wide policy in effect at the moment a request is
// accepted. The dispatcher takes a fresh snapshot per request rather than
// holding a lock across a whole transfer: configuration is guarded by a
// reader-writer lock where many sessions read and only external setters
// write.
type Snapshot struct {
	RootDir         string
	SecureMode      bool
	MaxTransferSize int64
	PerBlockTimeout time.Duration
	Storage         storage.Storage
}

// SnapshotFunc returns the current configuration snapshot.
type SnapshotFunc func() Snapshot

// Dispatcher is the single-threaded listener on the well-known port.
type Dispatcher struct {
	logger    *zap.SugaredLogger
	wellKnown *endpoint.Endpoint
	pool      *workerPool
	snapshot  SnapshotFunc
	bindHost  string

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New binds the well-known endpoint at host:port and prepares (but does not
// yet start) the dispatcher loop. workers is clamped to [1,64]; 0 selects
// runtime.NumCPU().
func New(logger *zap.SugaredLogger, host string, port uint16, workers int, snapshot SnapshotFunc) (*Dispatcher, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	ep, err := endpoint.Bind(addr, true)
	if err != nil {
		return nil, fmt.Errorf("tftp: dispatcher: %w", err)
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if workers < minWorkers {
		workers = minWorkers
	}

	if workers > maxWorkers {
		workers = maxWorkers
	}

	bindHost := host
	if bindHost == "" {
		bindHost = "0.0.0.0"
	}

	return &Dispatcher{
		logger:    logger,
		wellKnown: ep,
		pool:      newWorkerPool(workers),
		snapshot:  snapshot,
		bindHost:  bindHost,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// LocalAddr returns the well-known endpoint's bound local address.
func (d *Dispatcher) LocalAddr() net.Addr {
	return d.wellKnown.LocalAddr()
}

// Serve runs the receive loop until Stop is called. It blocks.
func (d *Dispatcher) Serve() {
	defer close(d.done)

	for {
		select {
		case <-d.stop:
			return
		default:
		}

		buf := endpoint.GetBuffer()

		n, from, err := d.wellKnown.ReceiveFrom(buf, shortPollInterval)
		if err != nil {
			endpoint.PutBuffer(buf)

			if errors.Is(err, endpoint.ErrTimedOut) {
				continue
			}

			if errors.Is(err, endpoint.ErrClosed) {
				return
			}

			d.logger.Warnw("error while receiving on well-known endpoint", "error", err)

			continue
		}

		d.handleInitialPacket(buf[:n], from)
		endpoint.PutBuffer(buf)
	}
}

// Stop closes the well-known endpoint and shuts down the worker pool,
// waiting for in-flight sessions to finish naturally (bounded by their own
// timeouts and retry budgets). Idempotent: calling Stop more than once, or
// registering it with t.Cleanup after an explicit call, is safe.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stop)

		if err := d.wellKnown.Close(); err != nil {
			d.logger.Warnw("error while closing well-known endpoint", "error", err)
		}

		<-d.done

		d.pool.Close()
	})
}

func (d *Dispatcher) handleInitialPacket(raw []byte, from net.Addr) {
	pkt, err := protocol.Decode(raw)
	if err != nil {
		d.logger.Debugw("dropping undecodable initial packet", "from", from.String(), "error", err)

		return
	}

	req, ok := pkt.(*protocol.Request)
	if !ok {
		d.replyError(from, protocol.ErrIllegalOperation, "expected a read or write request")

		return
	}

	snap := d.snapshot()

	if snap.SecureMode && !pathsafety.IsSecure(req.Filename, snap.RootDir) {
		d.replyError(from, protocol.ErrAccessViolation, "Access denied")

		return
	}

	canonicalPath, err := pathsafety.Canonicalize(req.Filename, snap.RootDir)
	if err != nil {
		d.replyError(from, protocol.ErrAccessViolation, "Access denied")

		return
	}

	sessionEP, err := endpoint.Bind(d.bindHost+":0", false)
	if err != nil {
		d.logger.Warnw("error while binding ephemeral session endpoint", "error", err)
		d.replyError(from, protocol.ErrNotDefined, "server could not allocate a session endpoint")

		return
	}

	sessCfg := session.Config{
		MaxTransferSize: snap.MaxTransferSize,
		PerBlockTimeout: snap.PerBlockTimeout,
	}

	logger := d.logger
	task := func() {
		sess := session.New(logger, sessionEP, from, req, canonicalPath, snap.Storage, sessCfg)
		sess.Run()
	}

	if err := d.pool.Submit(task); err != nil {
		d.logger.Warnw("dropping session: worker pool is shutting down", "client", from.String())

		_ = sessionEP.Close()
	}
}

func (d *Dispatcher) replyError(to net.Addr, code protocol.ErrorKind, message string) {
	raw, err := (&protocol.Error{Code: code, Message: message}).Encode()
	if err != nil {
		return
	}

	if _, err := d.wellKnown.SendTo(raw, to); err != nil {
		d.logger.Debugw("error while replying to initial packet", "to", to.String(), "error", err)
	}
}

// Package socket relays live scan progress to browsers. It speaks Socket.IO
// v5 over Engine.IO v4 on the websocket transport.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/gobwas/ws"
	"github.com/sirupsen/logrus"
	"guardex/config"
	"guardex/scanner"
	"net"
	"net/http"
	"sync"
	"time"
)

// Runner executes a scan and reports to the emitter.
type Runner interface {
	Run(ctx context.Context, req scanner.Request, emit scanner.Emitter)
}

var _ scanner.Emitter = (*connection)(nil)

// Server accepts WebSocket clients and starts scans on their behalf.
type Server struct {
	cfg    config.SocketConfig
	runner Runner
	srv    *http.Server

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[*connection]struct{}
	wg    sync.WaitGroup
}

// New returns a Server for cfg.
func New(cfg config.SocketConfig, runner Runner) *Server {
	if cfg.Path == "" {
		cfg.Path = "/socket.io/"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		runner: runner,
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*connection]struct{}),
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes of the socket server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("🔌 Socket Server Running!"))
	})
	mux.HandleFunc(s.cfg.Path, s.upgrade)
	return mux
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	logrus.Infof("Socket server listening on %s%s", s.cfg.Addr(), s.cfg.Path)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown cancels running scans, closes every connection and waits for
// their goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	err := s.srv.Shutdown(ctx)

	s.mu.Lock()
	for c := range s.conns {
		c.close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	switch {
	case q.Get("EIO") != engineProtocol:
		rejectHandshake(w, errUnsupportedProtocol, msgUnsupportedProtocol)
		return
	case q.Get("transport") != "websocket":
		rejectHandshake(w, errTransportUnknown, msgTransportUnknown)
		return
	case q.Get("sid") != "":
		rejectHandshake(w, errUnknownSID, msgUnknownSID)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		logrus.Debugf("websocket upgrade failed: %v", err)
		return
	}
	s.accept(conn)
}

func rejectHandshake(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(engineError{Code: code, Message: message})
}

// accept starts the goroutines of an upgraded connection. A connection
// accepted after Shutdown began is closed at once.
func (s *Server) accept(conn net.Conn) bool {
	c := newConnection(conn, s.cfg)
	if !s.track(c) {
		c.close()
		return false
	}

	c.open()
	go func() {
		defer s.wg.Done()
		c.writeLoop()
	}()
	go func() {
		defer s.wg.Done()
		c.heartbeat()
	}()
	go func() {
		defer s.wg.Done()
		defer s.untrack(c)
		defer c.close()
		s.serve(c)
	}()
	return true
}

// serve reads Engine.IO packets until the client goes away.
func (s *Server) serve(c *connection) {
	c.log.Info("client connected")
	defer c.log.Info("client disconnected")

	for {
		msg, err := c.read()
		if err != nil {
			return
		}
		if len(msg) == 0 {
			c.log.Debug("empty engine.io packet")
			return
		}

		switch msg[0] {
		case enginePong:
			c.gotPong()
		case enginePing:
			c.send(append([]byte{enginePong}, msg[1:]...))
		case engineNoop:
		case engineClose:
			return
		case engineMessage:
			if err := s.handle(c, string(msg[1:])); err != nil {
				c.log.Debugf("closing connection: %v", err)
				return
			}
		default:
			c.log.Debugf("unexpected engine.io packet type %q", msg[0])
			return
		}
	}
}

// handle dispatches one Socket.IO packet. A returned error closes the
// connection.
func (s *Server) handle(c *connection, raw string) error {
	p, err := decodePacket(raw)
	if err != nil {
		return err
	}

	if p.Namespace != defaultNamespace {
		data, _ := json.Marshal(errorPayload{Message: msgInvalidNamespace})
		c.sendPacket(packet{Type: packetConnectError, Namespace: p.Namespace, AckID: noAck, Data: data})
		return nil
	}

	switch p.Type {
	case packetConnect:
		c.join()
	case packetDisconnect:
		c.leave()
	case packetEvent:
		if !c.joined.Load() {
			c.log.Debug("event before namespace connect ignored")
			return nil
		}
		if p.AckID >= 0 {
			c.sendPacket(packet{Type: packetAck, AckID: p.AckID, Data: json.RawMessage("[]")})
		}
		s.dispatch(c, p.Data)
	case packetBinaryEvent, packetBinaryAck:
		c.emitError(msgBinaryNotSupported)
	case packetAck:
	default:
		return errMalformedPacket
	}
	return nil
}

func (s *Server) dispatch(c *connection, data json.RawMessage) {
	name, args, err := eventArgs(data)
	if err != nil {
		c.emitError(err.Error())
		return
	}

	switch name {
	case EventStartScan:
		var payload json.RawMessage
		if len(args) > 0 {
			payload = args[0]
		}
		s.startScan(c, payload)
	default:
		c.emitError(fmt.Sprintf("unknown event: %q", name))
	}
}

func (s *Server) startScan(c *connection, data json.RawMessage) {
	var req scanner.Request
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &req); err != nil {
			c.emitError("invalid start_scan payload")
			return
		}
	}

	if !c.tryStartScan() {
		c.Update(scanUpdate(msgScanRunning))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer c.endScan()

		c.log.WithField("url", req.URL).Info("scan started")
		s.runner.Run(s.ctx, req, c)
	}()
}

// track registers c and reserves its goroutines in the wait group. It
// reports false once Shutdown began.
func (s *Server) track(c *connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(3)
	return true
}

func (s *Server) untrack(c *connection) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

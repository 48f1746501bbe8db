package socket

import (
	"encoding/json"
	"errors"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"guardex/config"
	"guardex/models"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var errPayloadTooLarge = errors.New("payload too large")

// connection is one Engine.IO session over a WebSocket. Packets are queued and
// written by a single writer goroutine so they reach the client in emit order.
type connection struct {
	conn         net.Conn
	sid          string
	out          chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	wmu          sync.Mutex
	writeTimeout time.Duration
	pingInterval time.Duration
	pingTimeout  time.Duration
	maxPayload   int64
	pong         chan struct{}
	log          *logrus.Entry

	// joined is set while the client is connected to the default namespace.
	joined atomic.Bool

	scanMu   sync.Mutex
	scanning bool
}

func newConnection(conn net.Conn, cfg config.SocketConfig) *connection {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 20 * time.Second
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = 1000000
	}

	sid := uuid.NewString()
	return &connection{
		conn:         conn,
		sid:          sid,
		out:          make(chan []byte, cfg.QueueSize),
		done:         make(chan struct{}),
		writeTimeout: cfg.WriteTimeout,
		pingInterval: cfg.PingInterval,
		pingTimeout:  cfg.PingTimeout,
		maxPayload:   cfg.MaxPayload,
		pong:         make(chan struct{}, 1),
		log: logrus.WithFields(logrus.Fields{
			"remote": conn.RemoteAddr().String(),
			"sid":    sid,
		}),
	}
}

// open queues the Engine.IO open packet.
func (c *connection) open() {
	raw, err := json.Marshal(handshake{
		SID:          c.sid,
		Upgrades:     []string{},
		PingInterval: c.pingInterval.Milliseconds(),
		PingTimeout:  c.pingTimeout.Milliseconds(),
		MaxPayload:   c.maxPayload,
	})
	if err != nil {
		c.log.Errorf("error encoding handshake: %v", err)
		return
	}
	c.send(append([]byte{engineOpen}, raw...))
}

// send queues a raw Engine.IO packet. Packets sent after the connection
// closed are dropped.
func (c *connection) send(frame []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.out <- frame:
	case <-c.done:
	}
}

func (c *connection) sendPacket(p packet) {
	c.send(p.encode())
}

// emit queues an event for the default namespace. Events are dropped while
// the client is not connected to it.
func (c *connection) emit(event string, data interface{}) {
	if !c.joined.Load() {
		return
	}
	frame, err := eventPacket(event, data)
	if err != nil {
		c.log.Error(err)
		return
	}
	c.send(frame)
}

// join connects the client to the default namespace.
func (c *connection) join() {
	raw, _ := json.Marshal(connectPayload{SID: uuid.NewString()})
	c.joined.Store(true)
	c.sendPacket(packet{Type: packetConnect, AckID: noAck, Data: raw})
}

func (c *connection) leave() {
	c.joined.Store(false)
}

// writeLoop drains the queue until the connection closes.
func (c *connection) writeLoop() {
	for {
		select {
		case frame := <-c.out:
			if err := c.write(frame); err != nil {
				c.log.Debugf("write failed: %v", err)
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// heartbeat pings the client every pingInterval and closes the connection
// when no pong arrives within pingTimeout.
func (c *connection) heartbeat() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-c.done:
			return
		}

		c.send([]byte{enginePing})

		timeout := time.NewTimer(c.pingTimeout)
		select {
		case <-c.pong:
			timeout.Stop()
		case <-timeout.C:
			c.log.Info("ping timeout")
			c.close()
			return
		case <-c.done:
			timeout.Stop()
			return
		}
	}
}

func (c *connection) gotPong() {
	select {
	case c.pong <- struct{}{}:
	default:
	}
}

func (c *connection) write(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return wsutil.WriteServerMessage(c.conn, ws.OpText, frame)
}

// read returns the next text message. Control frames are answered under the
// write lock so they never interleave with queued packets.
func (c *connection) read() ([]byte, error) {
	control := wsutil.ControlFrameHandler(c.conn, ws.StateServerSide)
	locked := func(h ws.Header, r io.Reader) error {
		c.wmu.Lock()
		defer c.wmu.Unlock()
		return control(h, r)
	}

	rd := wsutil.Reader{
		Source:         c.conn,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		OnIntermediate: locked,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := locked(hdr, &rd); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode != ws.OpText {
			if err := rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}

		msg, err := io.ReadAll(io.LimitReader(&rd, c.maxPayload+1))
		if err != nil {
			return nil, err
		}
		if int64(len(msg)) > c.maxPayload {
			return nil, errPayloadTooLarge
		}
		return msg, nil
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		c.joined.Store(false)
		close(c.done)
		_ = c.conn.Close()
	})
}

// tryStartScan marks the connection busy. It reports false when a scan is
// already running.
func (c *connection) tryStartScan() bool {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()
	if c.scanning {
		return false
	}
	c.scanning = true
	return true
}

func (c *connection) endScan() {
	c.scanMu.Lock()
	c.scanning = false
	c.scanMu.Unlock()
}

// Update implements scanner.Emitter.
func (c *connection) Update(u models.ScanUpdate) {
	c.emit(EventScanUpdate, u)
}

// Complete implements scanner.Emitter.
func (c *connection) Complete(vulns []models.Vulnerability) {
	c.emit(EventScanComplete, vulns)
}

func (c *connection) emitError(message string) {
	c.emit(EventError, errorPayload{Message: message})
}

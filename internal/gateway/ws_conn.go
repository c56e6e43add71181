package gateway

import (
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"
)

// wsConn exposes a gorilla websocket as the byte stream STOMP framing expects.
// Every Write becomes one text message; reads span message boundaries.
type wsConn struct {
	conn       *websocket.Conn
	reader     io.Reader
	readMu     sync.Mutex
	writeChan  chan []byte
	writeMu    sync.Mutex
	closeOnce  sync.Once
	closed     bool
	pingPeriod time.Duration
	pongWait   time.Duration
	writeWait  time.Duration
}

// newWsConn wraps conn and starts its write loop
func newWsConn(conn *websocket.Conn, maxMsgSize int64, writeBuf int, writeWait, pongWait, pingPeriod time.Duration) *wsConn {
	if writeBuf <= 0 {
		writeBuf = 256
	}
	c := &wsConn{
		conn:       conn,
		writeChan:  make(chan []byte, writeBuf),
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
		writeWait:  writeWait,
	}

	conn.SetReadLimit(maxMsgSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.writeLoop()

	return c
}

// writeLoop handles all writes to the connection (single writer pattern)
func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.writeChan:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("broker write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug("broker ping error: %v", err)
				return
			}
		}
	}
}

// Read reads frame bytes, moving to the next websocket message as needed
func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
			_, r, err := c.conn.NextReader()
			if err != nil {
				return 0, err
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write queues a copy of p as one websocket message
func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return 0, ErrConnClosed
	}

	data := make([]byte, len(p))
	copy(data, p)
	select {
	case c.writeChan <- data:
		return len(p), nil
	default:
		return 0, ErrWriteChannelFull
	}
}

// Close closes the connection
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		close(c.writeChan)
		c.writeMu.Unlock()
	})
	return nil
}

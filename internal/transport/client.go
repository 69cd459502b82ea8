// Package transport delivers encoded MJPEG frames to a remote viewer over
// a WebSocket and relays the client's playback reports back to the rate
// controller. Adapted from websocket/client.go's reconnect-loop client:
// same backoff/jitter dial loop and read/write pumps, narrowed to the one
// binary frame channel and one JSON report channel this stream needs.
package transport

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lanternops/mjpegrc/internal/logging"
)

var log = logging.L("transport")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFactor   = 0.3

	frameTypeByte = 0x02
	sessionIDLen  = 36
)

// Config holds the connection parameters for a Client.
type Config struct {
	ServerURL string
	SessionID string
	AuthToken string
}

// ReportHandler is invoked with each client stream report received over
// the control channel.
type ReportHandler func(report ClientReport)

// ClientReport mirrors the wire shape of a client stream report; it is
// translated to mjpeg.ClientStreamReport by the caller so this package
// stays free of a dependency on the control loop itself.
type ClientReport struct {
	Type          string `json:"type"`
	NumFrames     uint32 `json:"numFrames"`
	NumDrops      uint32 `json:"numDrops"`
	StartMMTime   uint32 `json:"startMmTime"`
	EndMMTime     uint32 `json:"endMmTime"`
	EndFrameDelay int32  `json:"endFrameDelayMs"`
	AudioDelay    uint32 `json:"audioDelayMs"`
}

// Client manages the WebSocket connection carrying one streaming session.
type Client struct {
	config   *Config
	handler  ReportHandler
	conn     *websocket.Conn
	connMu   sync.RWMutex
	done     chan struct{}
	sendChan chan []byte
	frameCh  chan []byte
	stopOnce sync.Once

	runningMu sync.RWMutex
	isRunning bool
}

// New creates a new transport client for one session.
func New(cfg *Config, handler ReportHandler) *Client {
	return &Client{
		config:   cfg,
		handler:  handler,
		done:     make(chan struct{}),
		sendChan: make(chan []byte, 64),
		frameCh:  make(chan []byte, 30),
	}
}

// Start begins the connect/reconnect loop. Blocks until Stop is called.
func (c *Client) Start() {
	c.runningMu.Lock()
	if c.isRunning {
		c.runningMu.Unlock()
		return
	}
	c.isRunning = true
	c.runningMu.Unlock()

	c.reconnectLoop()
}

// Stop gracefully closes the connection.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		c.runningMu.Lock()
		c.isRunning = false
		c.runningMu.Unlock()

		close(c.done)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		log.Info("transport client stopped", "session", c.config.SessionID)
	})
}

func (c *Client) connect() error {
	wsURL, err := c.buildWSURL()
	if err != nil {
		return fmt.Errorf("build websocket url: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	conn.SetReadLimit(maxMessageSize)
	log.Info("connected", "server", c.config.ServerURL, "session", c.config.SessionID)
	return nil
}

func (c *Client) buildWSURL() (string, error) {
	serverURL, err := url.Parse(c.config.ServerURL)
	if err != nil {
		return "", err
	}
	switch serverURL.Scheme {
	case "https":
		serverURL.Scheme = "wss"
	case "http":
		serverURL.Scheme = "ws"
	}
	serverURL.Path = fmt.Sprintf("/api/v1/stream/%s/ws", c.config.SessionID)
	q := serverURL.Query()
	q.Set("token", c.config.AuthToken)
	serverURL.RawQuery = q.Encode()
	return serverURL.String(), nil
}

func (c *Client) reconnectLoop() {
	backoff := initialBackoff

	for {
		select {
		case <-c.done:
			return
		default:
		}

		if err := c.connect(); err != nil {
			log.Warn("connection failed", "error", err)

			jitter := time.Duration(float64(backoff) * jitterFactor * (rand.Float64()*2 - 1))
			sleep := backoff + jitter
			if sleep < 0 {
				sleep = backoff
			}

			log.Info("retrying", "delay", sleep)
			select {
			case <-c.done:
				return
			case <-time.After(sleep):
			}

			backoff = time.Duration(float64(backoff) * backoffFactor)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = initialBackoff

		pumpDone := make(chan struct{})
		go c.writePump(pumpDone)
		c.readPump()
		close(pumpDone)

		c.runningMu.RLock()
		running := c.isRunning
		c.runningMu.RUnlock()
		if !running {
			return
		}
	}
}

func (c *Client) readPump() {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read error", "error", err)
			}
			return
		}

		var report ClientReport
		if err := json.Unmarshal(message, &report); err != nil {
			log.Warn("failed to parse client report", "error", err)
			continue
		}
		if report.Type != "client_stream_report" {
			continue
		}
		if c.handler != nil {
			c.handler(report)
		}
	}
}

func (c *Client) writePump(done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.done:
			return

		case message := <-c.sendChan:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("write error", "error", err)
				return
			}

		case frame := <-c.frameCh:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				log.Warn("binary write error", "error", err)
				return
			}

		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendFrame delivers one JPEG frame. Format: [0x02][36-byte session id][JPEG
// data]. Non-blocking: drops the frame if the outbound channel is full,
// since a stale frame is worse than a dropped one for a live stream.
func (c *Client) SendFrame(data []byte) error {
	msg := make([]byte, 1+sessionIDLen+len(data))
	msg[0] = frameTypeByte
	copy(msg[1:1+sessionIDLen], []byte(c.config.SessionID))
	copy(msg[1+sessionIDLen:], data)

	select {
	case c.frameCh <- msg:
		return nil
	case <-c.done:
		return fmt.Errorf("transport: client is stopped")
	default:
		return fmt.Errorf("transport: frame channel full, dropping frame")
	}
}

// SendJSON queues an arbitrary JSON control message as a text frame.
// Non-blocking: returns an error if the outbound channel is full.
func (c *Client) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("transport: marshal: %w", err)
	}
	select {
	case c.sendChan <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("transport: client is stopped")
	default:
		return fmt.Errorf("transport: send channel full")
	}
}

package rscp

import (
	"context"
	"crypto/aes"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Default timeouts for device communication.
const (
	// defaultPort is the RSCP listener port on the device.
	defaultPort = "5033"

	// defaultConnectTimeout is the maximum time to wait for dial and
	// authentication.
	defaultConnectTimeout = 10 * time.Second

	// defaultReadTimeout is the timeout for reading one response.
	defaultReadTimeout = 30 * time.Second

	// defaultWriteTimeout is the timeout for writing one request.
	defaultWriteTimeout = 5 * time.Second
)

// Config holds device connection configuration.
type Config struct {
	// Host is the device address as "host" or "host:port".
	// The port defaults to 5033 when omitted.
	Host string

	// Username and Password are the portal account credentials.
	Username string
	Password string

	// Key is the RSCP encryption key configured on the device.
	Key string

	// ConnectTimeout bounds dial plus authentication. Default: 10s.
	ConnectTimeout time.Duration

	// ReadTimeout bounds reading one response. Default: 30s.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing one request. Default: 5s.
	WriteTimeout time.Duration
}

// Stats holds operational statistics.
type Stats struct {
	RequestsTx   uint64
	ResponsesRx  uint64
	ErrorsTotal  uint64
	LastActivity time.Time
	Connected    bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Client is an authenticated RSCP connection.
//
// Thread safety: all methods are safe for concurrent use. Round trips
// are serialized because the cipher stream chains message IVs.
//
// The client never reconnects on its own. Once a round trip fails the
// connection is marked broken and every further Send returns
// ErrNotConnected; the caller decides whether to rebuild the client.
type Client struct {
	cfg    Config
	cipher *cipherState

	mu        sync.Mutex
	conn      net.Conn
	connected bool

	accessLevel uint8

	logger   Logger
	loggerMu sync.RWMutex

	requestsTx   atomic.Uint64
	responsesRx  atomic.Uint64
	errorsTotal  atomic.Uint64
	lastActivity atomic.Int64
}

// Connect dials the device and performs the authentication handshake.
//
// Parameters:
//   - ctx: Context for cancellation (bounds the whole handshake)
//   - cfg: Connection configuration
//
// Returns:
//   - *Client: Authenticated client ready for Send
//   - error: ErrConnectionFailed or ErrAuthFailed
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is empty", ErrConnectionFailed)
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("%w: encryption key is empty", ErrConnectionFailed)
	}

	address := cfg.Host
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(cfg.Host, defaultPort)
	}

	cs, err := newCipherState(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	connectCtx := ctx
	if connectCtx == nil {
		connectCtx = context.Background()
	}
	connectCtx, cancel := context.WithTimeout(connectCtx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(connectCtx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, address, err)
	}

	client := &Client{cfg: cfg, cipher: cs, conn: conn}
	client.lastActivity.Store(time.Now().Unix())

	if err := client.authenticate(connectCtx); err != nil {
		conn.Close()
		return nil, err
	}

	client.connected = true
	client.logInfo("device connected", "address", address, "access_level", client.accessLevel)
	return client, nil
}

// authenticate runs the credential handshake. The device answers with
// the granted access level; level zero means the credentials were
// rejected. Runs before Send is reachable, so it skips the mutex.
func (c *Client) authenticate(ctx context.Context) error {
	req := []Item{
		NewItem(TagRSCPReqAuthentication, Container(
			NewItem(TagRSCPAuthenticationUser, Text(c.cfg.Username)),
			NewItem(TagRSCPAuthenticationPassword, Text(c.cfg.Password)),
		)),
	}

	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	item, err := Find(resp.Items, TagRSCPAuthentication)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	// Rejected credentials come back as an Error value, which the
	// coercion refuses.
	level, err := item.Value.AsUint64()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	if level == 0 {
		return fmt.Errorf("%w: device granted access level 0", ErrAuthFailed)
	}

	c.accessLevel = uint8(level)
	return nil
}

// Send performs one request/response round trip. The returned frame
// is guaranteed to carry at least one item.
//
// Parameters:
//   - ctx: Context for cancellation
//   - items: Request items (usually EmptyItem requests)
//
// Returns:
//   - *Frame: Decoded device response
//   - error: ErrNotConnected, ErrQueryFailed, ErrInvalidFrame or
//     ErrEmptyResponse
func (c *Client) Send(ctx context.Context, items []Item) (*Frame, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: request has no items", ErrQueryFailed)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, ErrNotConnected
	}

	resp, err := c.roundTrip(ctx, items)
	if err != nil {
		// The cipher stream is positional, so any failed round trip
		// leaves both IVs out of step with the device. Mark the
		// connection broken instead of guessing.
		c.connected = false
		c.errorsTotal.Add(1)
		c.logError("round trip failed", err)
		return nil, err
	}

	if len(resp.Items) == 0 {
		c.errorsTotal.Add(1)
		return nil, ErrEmptyResponse
	}
	return resp, nil
}

// roundTrip encrypts and writes one frame, then reads and decodes the
// response. Callers hold the mutex (or are single-threaded during the
// handshake).
func (c *Client) roundTrip(ctx context.Context, items []Item) (*Frame, error) {
	frame := NewFrame(items...)
	plain, err := frame.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrQueryFailed, err)
	}
	msg := c.cipher.encrypt(plain)

	writeDeadline := time.Now().Add(c.cfg.WriteTimeout)
	if deadline, ok := ctx.Deadline(); ok && deadline.Before(writeDeadline) {
		writeDeadline = deadline
	}
	if err := c.conn.SetWriteDeadline(writeDeadline); err != nil {
		return nil, fmt.Errorf("%w: set write deadline: %w", ErrQueryFailed, err)
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, ctx.Err())
	default:
	}

	if _, err := c.conn.Write(msg); err != nil {
		return nil, fmt.Errorf("%w: write: %w", ErrQueryFailed, err)
	}
	c.requestsTx.Add(1)

	plainResp, err := c.readFrame(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := DecodeFrame(plainResp)
	if err != nil {
		return nil, err
	}

	c.responsesRx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	return &resp, nil
}

// readFrame reads and decrypts one response. The frame length is only
// known after decrypting the header, so it reads cipher blocks one at
// a time until the declared size is in.
func (c *Client) readFrame(ctx context.Context) ([]byte, error) {
	readDeadline := time.Now().Add(c.cfg.ReadTimeout)
	if deadline, ok := ctx.Deadline(); ok && deadline.Before(readDeadline) {
		readDeadline = deadline
	}
	if err := c.conn.SetReadDeadline(readDeadline); err != nil {
		return nil, fmt.Errorf("%w: set read deadline: %w", ErrQueryFailed, err)
	}

	plain := make([]byte, 0, 512)
	block := make([]byte, aes.BlockSize)
	size := -1

	for {
		if len(plain) >= frameHeaderLen {
			if size < 0 {
				// A garbage header here means the key is wrong or the
				// stream desynced; frameSize rejects it via the magic.
				n, err := frameSize(plain)
				if err != nil {
					return nil, err
				}
				size = n
			}
			if len(plain) >= size {
				return plain, nil
			}
		}

		if _, err := io.ReadFull(c.conn, block); err != nil {
			return nil, fmt.Errorf("%w: read: %w", ErrQueryFailed, err)
		}
		out, err := c.cipher.decrypt(block)
		if err != nil {
			return nil, err
		}
		plain = append(plain, out...)
	}
}

// Close closes the connection. Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.connected {
		c.connected = false
		c.logInfo("connection closed")
	}
	return nil
}

// IsConnected returns true while the connection is usable.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// AccessLevel returns the access level the device granted during the
// handshake.
func (c *Client) AccessLevel() uint8 { return c.accessLevel }

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		RequestsTx:   c.requestsTx.Load(),
		ResponsesRx:  c.responsesRx.Load(),
		ErrorsTotal:  c.errorsTotal.Load(),
		LastActivity: time.Unix(c.lastActivity.Load(), 0),
		Connected:    c.IsConnected(),
	}
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// logInfo logs an info message if a logger is set.
func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is set.
func (c *Client) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

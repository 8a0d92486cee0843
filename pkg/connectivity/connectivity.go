package connectivity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"mcwatch/pkg/models"
	"mcwatch/pkg/server"

	"github.com/Jigsaw-Code/outline-sdk/transport"
	"github.com/Jigsaw-Code/outline-sdk/x/configurl"
	mcnet "github.com/Tnze/go-mc/net"
	pk "github.com/Tnze/go-mc/net/packet"
)

const (
	packetHandshake = 0x00
	packetStatus    = 0x00
	packetPing      = 0x01

	nextStateStatus = 1

	// Upper bound on everything read from one connection. A status document is
	// a few KiB; this keeps a hostile server from making us allocate more.
	maxResponseBytes = 2 << 20
)

// StatusResponse is the JSON document a Java edition server returns to a
// status request. Description is kept raw because servers send either a plain
// string or a chat component object.
type StatusResponse struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int    `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int            `json:"max"`
		Online int            `json:"online"`
		Sample []PlayerSample `json:"sample,omitempty"`
	} `json:"players"`
	Description json.RawMessage `json:"description,omitempty"`
}

type PlayerSample struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// HasPlayer reports whether name is in the player sample. The match is exact
// and case-sensitive; a server that hides its sample never has the player.
func (s *StatusResponse) HasPlayer(name string) bool {
	for _, p := range s.Players.Sample {
		if p.Name == name {
			return true
		}
	}
	return false
}

// ProbeError records which step of the exchange failed.
type ProbeError struct {
	Op      string // dial, handshake, status, ping
	Address string
	Err     error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Address, findBaseError(e.Err))
}

func (e *ProbeError) Unwrap() error { return e.Err }

// findBaseError unwraps an error chain to find the most basic underlying error
func findBaseError(err error) error {
	for err != nil {
		if unwrapInterface, ok := err.(interface{ Unwrap() []error }); ok {
			errs := unwrapInterface.Unwrap()
			if len(errs) > 0 {
				err = errs[len(errs)-1]
				continue
			}
		}

		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
	return err
}

type Options struct {
	// Connect plus read/write deadline for one exchange (default: 5s)
	Timeout time.Duration
	// Optional outline-sdk transport config such as "socks5://host:1080".
	// Empty dials the server directly.
	Transport string
	// Protocol version sent in the handshake (default: 47)
	ProtocolVersion int
}

// Client queries Minecraft Java edition servers with the Server List Ping
// protocol. It is safe for concurrent use.
type Client struct {
	dialer          transport.StreamDialer
	timeout         time.Duration
	protocolVersion int32
}

func NewClient(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.ProtocolVersion == 0 {
		opts.ProtocolVersion = 47
	}

	configToDialer := configurl.NewDefaultConfigToDialer()
	configToDialer.BaseStreamDialer = &transport.TCPDialer{
		Dialer: net.Dialer{Timeout: opts.Timeout},
	}
	dialer, err := configToDialer.NewStreamDialer(opts.Transport)
	if err != nil {
		return nil, fmt.Errorf("could not create dialer: %w", err)
	}

	return &Client{
		dialer:          dialer,
		timeout:         opts.Timeout,
		protocolVersion: int32(opts.ProtocolVersion),
	}, nil
}

// Probe is total over reachability: any failure becomes StatusUnreachable.
func (c *Client) Probe(ctx context.Context, address, player string) models.PlayerStatus {
	if _, err := c.Ping(ctx, address); err != nil {
		slog.Debug("Ping failed", "serverAddress", address, "error", err)
		return models.StatusUnreachable
	}

	status, err := c.Status(ctx, address)
	if err != nil {
		slog.Debug("Status request failed", "serverAddress", address, "error", err)
		return models.StatusUnreachable
	}

	if status.HasPlayer(player) {
		return models.StatusOnline
	}
	return models.StatusOffline
}

// Reachable performs only the ping exchange.
func (c *Client) Reachable(ctx context.Context, address string) bool {
	_, err := c.Ping(ctx, address)
	if err != nil {
		slog.Debug("Server not reachable", "serverAddress", address, "error", err)
	}
	return err == nil
}

// Ping opens a connection, performs the status handshake and measures one
// ping/pong round trip.
func (c *Client) Ping(ctx context.Context, address string) (time.Duration, error) {
	var latency time.Duration
	err := c.exchange(ctx, address, func(conn *mcnet.Conn) error {
		token := pk.Long(time.Now().UnixNano())
		start := time.Now()
		if err := conn.WritePacket(pk.Marshal(packetPing, token)); err != nil {
			return &ProbeError{Op: "ping", Address: address, Err: err}
		}
		var p pk.Packet
		if err := conn.ReadPacket(&p); err != nil {
			return &ProbeError{Op: "ping", Address: address, Err: err}
		}
		if p.ID != packetPing {
			return &ProbeError{Op: "ping", Address: address, Err: fmt.Errorf("unexpected pong packet 0x%02x", p.ID)}
		}
		var echoed pk.Long
		if err := p.Scan(&echoed); err != nil {
			return &ProbeError{Op: "ping", Address: address, Err: err}
		}
		if echoed != token {
			return &ProbeError{Op: "ping", Address: address, Err: errors.New("pong payload mismatch")}
		}
		latency = time.Since(start)
		return nil
	})
	return latency, err
}

// Status opens a connection and fetches the server's status document.
func (c *Client) Status(ctx context.Context, address string) (*StatusResponse, error) {
	var status StatusResponse
	err := c.exchange(ctx, address, func(conn *mcnet.Conn) error {
		if err := conn.WritePacket(pk.Marshal(packetStatus)); err != nil {
			return &ProbeError{Op: "status", Address: address, Err: err}
		}
		var p pk.Packet
		if err := conn.ReadPacket(&p); err != nil {
			return &ProbeError{Op: "status", Address: address, Err: err}
		}
		if p.ID != packetStatus {
			return &ProbeError{Op: "status", Address: address, Err: fmt.Errorf("unexpected packet 0x%02x", p.ID)}
		}
		var raw pk.String
		if err := p.Scan(&raw); err != nil {
			return &ProbeError{Op: "status", Address: address, Err: err}
		}
		if err := json.Unmarshal([]byte(raw), &status); err != nil {
			return &ProbeError{Op: "status", Address: address, Err: fmt.Errorf("failed to parse status JSON: %w", err)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// exchange dials address through the configured outline dialer, sends the
// handshake and hands the connection to fn. The whole exchange is bounded by
// the client timeout.
func (c *Client) exchange(ctx context.Context, address string, fn func(*mcnet.Conn) error) error {
	addr, err := server.ParseAddress(address)
	if err != nil {
		return &ProbeError{Op: "dial", Address: address, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialStream(ctx, addr.String())
	if err != nil {
		return &ProbeError{Op: "dial", Address: address, Err: err}
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	conn.SetDeadline(deadline)

	// Unblock reads if the caller cancels before the deadline.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	mc := mcnet.WrapConn(conn)
	mc.Reader = io.LimitReader(conn, maxResponseBytes)

	handshake := pk.Marshal(packetHandshake,
		pk.VarInt(c.protocolVersion),
		pk.String(addr.Host),
		pk.UnsignedShort(addr.Port),
		pk.VarInt(nextStateStatus),
	)
	if err := mc.WritePacket(handshake); err != nil {
		return &ProbeError{Op: "handshake", Address: address, Err: err}
	}

	return fn(mc)
}

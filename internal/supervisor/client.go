package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"permgate/internal/pgerr"
)

const defaultTimeout = 60 * time.Second

// Client dials the supervisor's Unix domain socket for one request/response
// round trip per call; it holds no persistent connection.
type Client struct {
	SocketPath string
	Timeout    time.Duration
}

// NewClient builds a Client with the given timeout, defaulting to 60s.
func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{SocketPath: socketPath, Timeout: timeout}
}

// halfCloser is implemented by *net.UnixConn; asserted on rather than
// imported by name so the dependency on the concrete conn type stays local
// to this one call site.
type halfCloser interface {
	CloseWrite() error
}

// Ask performs one Tier 3 round trip: dial, write the request line, half-close
// the write side, read one response line, and close.
func (c *Client) Ask(ctx context.Context, req Request) (*Response, error) {
	if _, err := os.Stat(c.SocketPath); err != nil {
		return nil, pgerr.New(pgerr.SocketNotFound, "supervisor socket does not exist").
			WithContext("path", c.SocketPath)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.IPC, "dial supervisor socket", err).WithContext("path", c.SocketPath)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.Serialization, "marshal supervisor request", err)
	}
	line = append(line, '\n')
	if _, err := conn.Write(line); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, pgerr.New(pgerr.SupervisorTimeout, "timed out writing supervisor request")
		}
		return nil, pgerr.Wrap(pgerr.IPC, "write supervisor request", err)
	}
	if hc, ok := conn.(halfCloser); ok {
		if err := hc.CloseWrite(); err != nil {
			return nil, pgerr.Wrap(pgerr.IPC, "half-close supervisor connection", err)
		}
	}

	reader := bufio.NewReader(io.LimitReader(conn, MaxMessageBytes))
	respLine, err := reader.ReadString('\n')
	if err != nil && respLine == "" {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, pgerr.New(pgerr.SupervisorTimeout, "timed out waiting for supervisor response")
		}
		return nil, pgerr.Wrap(pgerr.IPC, "read supervisor response", err)
	}

	var resp Response
	if err := json.Unmarshal([]byte(respLine), &resp); err != nil {
		return nil, pgerr.Wrap(pgerr.Serialization, "parse supervisor response", err)
	}
	return &resp, nil
}

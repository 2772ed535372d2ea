// Package electrum talks to an Electrum protocol server such as Fulcrum using
// newline delimited JSON-RPC over TCP or TLS.
package electrum

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/certifi/gocertifi"
	"github.com/maxmcd/nodehome/internal/logger"
	"github.com/pkg/errors"
)

const (
	ClientName      = "node-homepage"
	ProtocolVersion = "1.5"
	DefaultTimeout  = 5 * time.Second
)

var ErrEmptyResponse = errors.New("empty response from electrum server")

type Options struct {
	Host    string
	Port    int
	UseTLS  bool
	Timeout time.Duration
	// Insecure skips certificate verification, Fulcrum ships with a self
	// signed certificate by default.
	Insecure bool
}

type Client struct {
	opt   Options
	roots *x509.CertPool
}

func New(opt Options) *Client {
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultTimeout
	}
	c := &Client{opt: opt}
	if opt.UseTLS && !opt.Insecure {
		pool, err := gocertifi.CACerts()
		if err != nil {
			logger.Warnw("falling back to system roots", "err", err)
		}
		c.roots = pool
	}
	return c
}

type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e RPCError) Error() string {
	return fmt.Sprintf("%s: electrum error %d: %s", e.Method, e.Code, e.Message)
}

// session is a single connection, requests on it must be sequential.
type session struct {
	conn   net.Conn
	reader *bufio.Reader
	nextID int
}

func (c *Client) dial(ctx context.Context) (*session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opt.Timeout)
	defer cancel()
	addr := net.JoinHostPort(c.opt.Host, strconv.Itoa(c.opt.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}
	if c.opt.UseTLS {
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         c.opt.Host,
			RootCAs:            c.roots,
			InsecureSkipVerify: c.opt.Insecure,
		})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, errors.Wrapf(err, "tls handshake with %s", addr)
		}
		conn = tlsConn
	}
	deadline := time.Now().Add(c.opt.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
	return &session{conn: conn, reader: bufio.NewReader(conn), nextID: 1}, nil
}

func (s *session) Close() error { return s.conn.Close() }

func (s *session) request(method string, params []interface{}, out interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	id := s.nextID
	s.nextID++
	req, err := btcjson.NewRequest(btcjson.RpcVersion2, id, method, params)
	if err != nil {
		return errors.Wrap(err, method)
	}
	b, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, method)
	}
	if _, err := s.conn.Write(append(b, '\n')); err != nil {
		return errors.Wrap(err, method)
	}
	for {
		line, err := s.reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err == nil {
				continue
			}
			return errors.Wrap(ErrEmptyResponse, method)
		}
		var resp btcjson.Response
		if jsonErr := json.Unmarshal(line, &resp); jsonErr != nil {
			return errors.Wrapf(jsonErr, "%s: decoding response", method)
		}
		// subscription notifications have no id, skip them
		if resp.ID == nil || !sameID(*resp.ID, id) {
			if err != nil {
				return errors.Wrap(ErrEmptyResponse, method)
			}
			continue
		}
		if resp.Error != nil {
			return RPCError{Method: method, Code: int(resp.Error.Code), Message: resp.Error.Message}
		}
		if out == nil {
			return nil
		}
		return errors.Wrapf(json.Unmarshal(resp.Result, out), "%s: decoding result", method)
	}
}

func sameID(got interface{}, want int) bool {
	f, ok := got.(float64)
	return ok && int(f) == want
}

// Request opens a connection, runs a single method and closes it.
func (c *Client) Request(ctx context.Context, method string, params []interface{}, out interface{}) error {
	s, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.request(method, params, out)
}

// Stats is what the server reports about itself.
type Stats struct {
	Version string `json:"version"`
	Height  int64  `json:"height"`
}

// Stats negotiates the protocol version and reads the current tip.
func (c *Client) Stats(ctx context.Context) (st Stats, err error) {
	s, err := c.dial(ctx)
	if err != nil {
		return st, err
	}
	defer s.Close()

	var version json.RawMessage
	if err = s.request("server.version", []interface{}{ClientName, ProtocolVersion}, &version); err != nil {
		return st, err
	}
	st.Version = serverSoftware(version)

	var tip struct {
		Height int64 `json:"height"`
	}
	if err = s.request("blockchain.headers.subscribe", nil, &tip); err != nil {
		return st, err
	}
	st.Height = tip.Height
	return st, nil
}

// serverSoftware reads server.version's result, which is
// ["Fulcrum 1.9.8", "1.5"] on current servers and a bare string on old ones.
func serverSoftware(raw json.RawMessage) string {
	var pair []string
	if err := json.Unmarshal(raw, &pair); err == nil {
		if len(pair) > 0 {
			return pair[0]
		}
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

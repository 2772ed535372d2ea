package bitcoind

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RequestID is sent with every call so node logs can be traced back here.
const RequestID = "node-homepage"

const DefaultTimeout = 5 * time.Second

type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

// Client calls a bitcoind JSON-RPC endpoint. It keeps no state besides the
// http client, so it is safe for concurrent use.
type Client struct {
	url      string
	user     string
	password string
	client   *http.Client
}

func New(opt Options) *Client {
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultTimeout
	}
	return &Client{
		url:      "http://" + net.JoinHostPort(opt.Host, strconv.Itoa(opt.Port)),
		user:     opt.User,
		password: opt.Password,
		client: &http.Client{
			Timeout:   opt.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// RPCError is an error returned by the node itself, as opposed to a
// transport failure.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e RPCError) Error() string {
	return fmt.Sprintf("%s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

// Call runs method and decodes the result into out.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	req, err := btcjson.NewRequest(btcjson.RpcVersion1, RequestID, method, params)
	if err != nil {
		return errors.Wrap(err, method)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, method)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, method)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.user, c.password)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, method)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return errors.Wrap(err, method)
	}

	// bitcoind answers rpc errors with a 500 and a json body, so look at
	// the body before the status code
	var r btcjson.Response
	if jsonErr := json.Unmarshal(respBody, &r); jsonErr != nil {
		if resp.StatusCode/100 != 2 {
			return errors.Errorf("%s: unexpected status %s", method, resp.Status)
		}
		return errors.Wrapf(jsonErr, "%s: decoding response", method)
	}
	if r.Error != nil {
		return RPCError{Method: method, Code: int(r.Error.Code), Message: r.Error.Message}
	}
	if resp.StatusCode/100 != 2 {
		return errors.Errorf("%s: unexpected status %s", method, resp.Status)
	}
	if out == nil {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(r.Result, out), "%s: decoding result", method)
}

type BlockchainInfo struct {
	Chain                string  `json:"chain"`
	Blocks               int64   `json:"blocks"`
	Headers              int64   `json:"headers"`
	VerificationProgress float64 `json:"verificationprogress"`
	SizeOnDisk           int64   `json:"size_on_disk"`
	InitialBlockDownload bool    `json:"initialblockdownload"`
}

type MempoolInfo struct {
	Size  int64 `json:"size"`
	Bytes int64 `json:"bytes"`
	Usage int64 `json:"usage"`
}

type NetworkInfo struct {
	Version        int64  `json:"version"`
	Subversion     string `json:"subversion"`
	Connections    int64  `json:"connections"`
	ConnectionsIn  int64  `json:"connections_in"`
	ConnectionsOut int64  `json:"connections_out"`
}

func (c *Client) BlockchainInfo(ctx context.Context) (info BlockchainInfo, err error) {
	err = c.Call(ctx, "getblockchaininfo", nil, &info)
	return info, err
}

func (c *Client) MempoolInfo(ctx context.Context) (info MempoolInfo, err error) {
	err = c.Call(ctx, "getmempoolinfo", nil, &info)
	return info, err
}

func (c *Client) NetworkInfo(ctx context.Context) (info NetworkInfo, err error) {
	err = c.Call(ctx, "getnetworkinfo", nil, &info)
	return info, err
}

// Uptime returns how long the node has been running.
func (c *Client) Uptime(ctx context.Context) (time.Duration, error) {
	var seconds int64
	if err := c.Call(ctx, "uptime", nil, &seconds); err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

// Ping reports whether the node answers a cheap call.
func (c *Client) Ping(ctx context.Context) error {
	return c.Call(ctx, "getblockchaininfo", nil, nil)
}

package electrum

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// fakeServer serves one connection at a time, handle returns the lines to
// write back for each request.
func fakeServer(t *testing.T, handle func(req request) []interface{}) *Client {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadBytes('\n')
					if err != nil {
						return
					}
					var req request
					if !assert.NoError(t, json.Unmarshal(line, &req)) {
						return
					}
					assert.Equal(t, "2.0", req.JSONRPC)
					for _, out := range handle(req) {
						b, _ := json.Marshal(out)
						if _, err := conn.Write(append(b, '\n')); err != nil {
							return
						}
					}
				}
			}()
		}
	}()
	host, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	p, _ := strconv.Atoi(port)
	return New(Options{Host: host, Port: p, Timeout: 2 * time.Second})
}

func result(id int, v interface{}) map[string]interface{} {
	return map[string]interface{}{"jsonrpc": "2.0", "id": id, "result": v}
}

func TestClient_Stats(t *testing.T) {
	c := fakeServer(t, func(req request) []interface{} {
		switch req.Method {
		case "server.version":
			assert.Equal(t, []interface{}{ClientName, ProtocolVersion}, req.Params)
			return []interface{}{result(req.ID, []string{"Fulcrum 1.9.8", "1.5"})}
		case "blockchain.headers.subscribe":
			return []interface{}{
				// a notification sneaking in before the response
				map[string]interface{}{"jsonrpc": "2.0", "method": "blockchain.headers.subscribe",
					"params": []interface{}{map[string]interface{}{"height": 1}}},
				result(req.ID, map[string]interface{}{"height": 840123, "hex": "00"}),
			}
		}
		return nil
	})
	st, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Version: "Fulcrum 1.9.8", Height: 840123}, st)
}

func TestClient_rpcError(t *testing.T) {
	c := fakeServer(t, func(req request) []interface{} {
		return []interface{}{map[string]interface{}{
			"jsonrpc": "2.0", "id": req.ID,
			"error": map[string]interface{}{"code": -32601, "message": "unknown method"},
		}}
	})
	err := c.Request(context.Background(), "server.nope", nil, nil)
	var rpcErr RPCError
	require.True(t, errors.As(err, &rpcErr), "%v", err)
	assert.Equal(t, -32601, rpcErr.Code)
	assert.Equal(t, "unknown method", rpcErr.Message)
}

func TestClient_emptyResponse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		_, _ = bufio.NewReader(conn).ReadBytes('\n')
		_ = conn.Close()
	}()
	host, port, _ := net.SplitHostPort(l.Addr().String())
	p, _ := strconv.Atoi(port)
	c := New(Options{Host: host, Port: p, Timeout: time.Second})
	err = c.Request(context.Background(), "server.ping", nil, nil)
	assert.True(t, errors.Is(err, ErrEmptyResponse), "%v", err)
}

func TestClient_unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, _ := net.SplitHostPort(l.Addr().String())
	require.NoError(t, l.Close())
	p, _ := strconv.Atoi(port)
	_, err = New(Options{Host: host, Port: p}).Stats(context.Background())
	assert.Error(t, err)
}

func Test_serverSoftware(t *testing.T) {
	assert.Equal(t, "Fulcrum 1.9.8", serverSoftware(json.RawMessage(`["Fulcrum 1.9.8","1.5"]`)))
	assert.Equal(t, "ElectrumX 1.0", serverSoftware(json.RawMessage(`"ElectrumX 1.0"`)))
	assert.Equal(t, "", serverSoftware(json.RawMessage(`[]`)))
	assert.Equal(t, "42", serverSoftware(json.RawMessage(`42`)))
}

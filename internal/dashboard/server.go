package dashboard

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/maxmcd/nodehome/internal/bitcoind"
	"github.com/maxmcd/nodehome/internal/config"
	"github.com/maxmcd/nodehome/internal/electrum"
	"github.com/maxmcd/nodehome/internal/fulcrum"
	"github.com/maxmcd/nodehome/internal/logger"
	"github.com/maxmcd/nodehome/internal/tracing"
	"github.com/maxmcd/nodehome/pkg/httpx"
	"github.com/maxmcd/nodehome/pkg/qr"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

//go:embed templates static
var assets embed.FS

var tracer = tracing.Tracer("dashboard")

// Node is the base node as the dashboard sees it.
type Node interface {
	Summary(ctx context.Context) (bitcoind.Summary, error)
	Ping(ctx context.Context) error
}

// Indexer answers electrum protocol queries.
type Indexer interface {
	Stats(ctx context.Context) (electrum.Stats, error)
}

type Server struct {
	cfg     config.Config
	node    Node
	indexer Indexer
	index   *template.Template
}

func New(cfg config.Config, node Node, indexer Indexer) (*Server, error) {
	index, err := template.ParseFS(assets, "templates/index.html")
	if err != nil {
		return nil, errors.Wrap(err, "parsing index template")
	}
	return &Server{cfg: cfg, node: node, indexer: indexer, index: index}, nil
}

// Clients builds the node and indexer clients cfg points at.
func Clients(cfg config.Config) (*bitcoind.Client, *electrum.Client) {
	node := bitcoind.New(bitcoind.Options{
		Host:     cfg.Bitcoin.RPCHost,
		Port:     cfg.Bitcoin.RPCPort,
		User:     cfg.Bitcoin.RPCUser,
		Password: cfg.Bitcoin.RPCPass,
	})
	indexer := electrum.New(electrum.Options{
		Host:     cfg.Fulcrum.BackendHost,
		Port:     cfg.Fulcrum.BackendPort(),
		UseTLS:   cfg.Fulcrum.UseSSL,
		Insecure: cfg.Fulcrum.TLSInsecure,
	})
	return node, indexer
}

// NewFromConfig wires up real clients for the node and indexer.
func NewFromConfig(cfg config.Config) (*Server, error) {
	node, indexer := Clients(cfg)
	return New(cfg, node, indexer)
}

func (s *Server) Handler() http.Handler {
	router := httpx.New()
	router.ErrHandler(httpx.JSONErrors)

	static, _ := fs.Sub(assets, "static")
	router.ServeFiles("/static/*filepath", http.FS(static))

	router.GET("/", s.handleIndex)
	router.GET("/healthz", func(c httpx.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	router.GET("/api/bitcoin", s.handleBitcoin)
	router.GET("/api/fulcrum", s.handleFulcrum)
	router.GET("/api/fulcrum/server", s.handleFulcrumServer)
	router.GET("/qr", s.handleQR)
	router.GET("/qr/dojo", s.handleDojoQR)
	return otelhttp.NewHandler(router, "nodehome")
}

type indexData struct {
	Cfg         config.Config
	FulcrumTCP  string
	FulcrumSSL  string
	PairingJSON string
}

func (s *Server) handleIndex(c httpx.Context) error {
	f := s.cfg.Fulcrum
	data := indexData{
		Cfg:         s.cfg,
		FulcrumTCP:  hostPort(f.LocalAddress, f.TCPPort),
		FulcrumSSL:  hostPort(f.LocalAddress, f.SSLPort),
		PairingJSON: s.cfg.Dojo.PairingPretty,
	}
	var buf bytes.Buffer
	if err := s.index.Execute(&buf, data); err != nil {
		return errors.Wrap(err, "rendering index")
	}
	return c.Blob("text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) handleBitcoin(c httpx.Context) error {
	ctx, span := tracer.Start(c.Request.Context(), "bitcoind summary")
	defer span.End()
	summary, err := s.node.Summary(ctx)
	if err != nil {
		logger.Warnw("bitcoind summary failed", "err", err)
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) handleFulcrum(c httpx.Context) error {
	ctx, span := tracer.Start(c.Request.Context(), "fulcrum status")
	defer span.End()

	bitcoinUp := true
	if err := s.node.Ping(ctx); err != nil {
		logger.Debugw("bitcoind ping failed", "err", err)
		bitcoinUp = false
	}
	snap := fulcrum.InferStatus(s.cfg.Fulcrum.Source(), bitcoinUp)
	span.SetAttributes(
		attribute.String("fulcrum.status", string(snap.Status)),
		attribute.Bool("bitcoin.up", bitcoinUp),
	)
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleFulcrumServer(c httpx.Context) error {
	ctx, span := tracer.Start(c.Request.Context(), "fulcrum server stats")
	defer span.End()
	stats, err := s.indexer.Stats(ctx)
	if err != nil {
		logger.Debugw("fulcrum stats failed", "err", err)
		return httpx.ErrBadGateway(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleQR(c httpx.Context) error {
	text := strings.TrimSpace(c.Request.URL.Query().Get("text"))
	if text == "" {
		return httpx.ErrBadRequest(qr.ErrEmpty)
	}
	png, err := qr.PNG(text, qr.DefaultOptions)
	if err != nil {
		return httpx.ErrBadRequest(err)
	}
	return c.Blob("image/png", png)
}

func (s *Server) handleDojoQR(c httpx.Context) error {
	if !s.cfg.Dojo.Configured() {
		return httpx.ErrBadRequest(errors.New("Dojo pairing JSON not configured"))
	}
	png, err := qr.PNG(s.cfg.Dojo.PairingCompact, qr.DefaultOptions)
	if err != nil {
		return err
	}
	return c.Blob("image/png", png)
}

func hostPort(host string, port int) string {
	if host == "" {
		return ""
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

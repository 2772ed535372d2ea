package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/maxmcd/nodehome/internal/bitcoind"
	"github.com/maxmcd/nodehome/internal/config"
	"github.com/maxmcd/nodehome/internal/dashboard"
	"github.com/maxmcd/nodehome/internal/electrum"
	"github.com/maxmcd/nodehome/internal/fulcrum"
	"golang.org/x/sync/errgroup"
)

type report struct {
	Bitcoin      *bitcoind.Summary `json:"bitcoin"`
	BitcoinError string            `json:"bitcoin_error,omitempty"`
	Fulcrum      fulcrum.Snapshot  `json:"fulcrum"`
	Server       *electrum.Stats   `json:"fulcrum_server"`
	ServerError  string            `json:"fulcrum_server_error,omitempty"`
}

// gather queries the node and the indexer concurrently. Failures end up in
// the report rather than being returned.
func gather(ctx context.Context, cfg config.Config, node dashboard.Node, indexer dashboard.Indexer) report {
	var r report
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		bitcoinUp := node.Ping(ctx) == nil
		r.Fulcrum = fulcrum.InferStatus(cfg.Fulcrum.Source(), bitcoinUp)
		if !bitcoinUp {
			r.BitcoinError = "bitcoind is not reachable"
			return nil
		}
		summary, err := node.Summary(ctx)
		if err != nil {
			r.BitcoinError = err.Error()
			return nil
		}
		r.Bitcoin = &summary
		return nil
	})
	group.Go(func() error {
		stats, err := indexer.Stats(ctx)
		if err != nil {
			r.ServerError = err.Error()
			return nil
		}
		r.Server = &stats
		return nil
	})
	_ = group.Wait()
	return r
}

func (r report) writeJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

const reportWidth = 60

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	dotStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	goodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func row(sb *strings.Builder, label, value string) {
	l := labelStyle.Render(label)
	padding := reportWidth - lipgloss.Width(l) - lipgloss.Width(value) - 2
	if padding < 1 {
		padding = 1
	}
	sb.WriteString(l + " " + dotStyle.Render(strings.Repeat(".", padding)) + " " + value + "\n")
}

func percentStyle(p float64) lipgloss.Style {
	switch {
	case p >= 99.9:
		return goodStyle
	case p >= 95:
		return warnStyle
	}
	return badStyle
}

func statusStyle(s fulcrum.Status) lipgloss.Style {
	switch s {
	case fulcrum.StatusSynced:
		return goodStyle
	case fulcrum.StatusIndexing:
		return warnStyle
	}
	return dotStyle
}

func (r report) render() string {
	var sb strings.Builder

	sb.WriteString(headingStyle.Render("Bitcoin Core") + "\n")
	if b := r.Bitcoin; b != nil {
		row(&sb, "version", b.Version)
		row(&sb, "blocks", fmt.Sprintf("%d / %d", b.Blocks, b.Headers))
		row(&sb, "sync", percentStyle(b.SyncPercent).Render(fmt.Sprintf("%.2f%%", b.SyncPercent)))
		row(&sb, "disk", fmt.Sprintf("%.2f GB", b.DiskSizeGB))
		row(&sb, "mempool", fmt.Sprintf("%.2f MB", b.MempoolMB))
		row(&sb, "peers", fmt.Sprintf("%d (%d in / %d out)",
			b.Connections.Total, b.Connections.Inbound, b.Connections.Outbound))
		row(&sb, "uptime", b.Uptime)
	} else {
		row(&sb, "error", badStyle.Render(r.BitcoinError))
	}

	sb.WriteString("\n" + headingStyle.Render("Fulcrum") + "\n")
	f := r.Fulcrum
	row(&sb, "status", statusStyle(f.Status).Render(string(f.Status)))
	if f.Version != nil {
		row(&sb, "version", *f.Version)
	}
	if f.Source != fulcrum.SourceDisabled {
		if f.Height != nil {
			row(&sb, "height", fmt.Sprint(*f.Height))
		}
		row(&sb, "sync", percentStyle(f.SyncPercent).Render(fmt.Sprintf("%.2f%%", f.SyncPercent)))
		if s := f.Speeds; s != nil {
			row(&sb, "speed", fmt.Sprintf("%.1f blk/s, %.1f tx/s, %.1f addr/s",
				s.BlocksPerSec, s.TxsPerSec, s.AddrsPerSec))
		}
	}
	if !f.BitcoinUp {
		row(&sb, "bitcoind", badStyle.Render("down"))
	}
	if r.Server != nil {
		row(&sb, "server", fmt.Sprintf("%s at %d", r.Server.Version, r.Server.Height))
	} else {
		row(&sb, "server", badStyle.Render(r.ServerError))
	}
	return sb.String()
}

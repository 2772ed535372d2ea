package bitcoind

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

type Connections struct {
	Total    int64 `json:"total"`
	Inbound  int64 `json:"inbound"`
	Outbound int64 `json:"outbound"`
}

// Summary is the node overview shown on the dashboard.
type Summary struct {
	Version     string      `json:"version"`
	Blocks      int64       `json:"blocks"`
	Headers     int64       `json:"headers"`
	SyncPercent float64     `json:"sync_percent"`
	DiskSizeGB  float64     `json:"disk_size_gb"`
	MempoolMB   float64     `json:"mempool_mb"`
	Connections Connections `json:"connections"`
	Uptime      string      `json:"uptime"`
}

// Summary collects a Summary, failing if any of the underlying calls fail.
func (c *Client) Summary(ctx context.Context) (s Summary, err error) {
	info, err := c.BlockchainInfo(ctx)
	if err != nil {
		return s, err
	}
	mempool, err := c.MempoolInfo(ctx)
	if err != nil {
		return s, err
	}
	net, err := c.NetworkInfo(ctx)
	if err != nil {
		return s, err
	}
	uptime, err := c.Uptime(ctx)
	if err != nil {
		return s, err
	}
	return buildSummary(info, mempool, net, uptime), nil
}

func buildSummary(info BlockchainInfo, mempool MempoolInfo, net NetworkInfo, uptime time.Duration) Summary {
	s := Summary{
		Version:    cleanSubversion(net.Subversion),
		Blocks:     info.Blocks,
		Headers:    info.Headers,
		DiskSizeGB: round2(float64(info.SizeOnDisk) / 1e9),
		MempoolMB:  round2(float64(mempool.Usage) / (1024 * 1024)),
		Connections: Connections{
			Total:    net.Connections,
			Inbound:  net.ConnectionsIn,
			Outbound: net.ConnectionsOut,
		},
		Uptime: FormatUptime(uptime),
	}
	if info.Headers > 0 {
		s.SyncPercent = round2(float64(info.Blocks) / float64(info.Headers) * 100)
	}
	return s
}

// cleanSubversion turns "/Satoshi:27.0.0/" into "27.0.0".
func cleanSubversion(v string) string {
	return strings.ReplaceAll(strings.Trim(v, "/"), "Satoshi:", "")
}

// FormatUptime renders d as "1d 2h 3m 4s".
func FormatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	return fmt.Sprintf("%dd %dh %dm %ds",
		seconds/86400,
		(seconds%86400)/3600,
		(seconds%3600)/60,
		seconds%60)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

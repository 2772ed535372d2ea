package config

import (
	"bytes"
	"encoding/json"
	"strings"
)

const DefaultDojoVersion = "1.27.0"

// Dojo holds the wallet pairing inputs. The Pairing* fields are derived in
// Load and aren't read from the config file.
type Dojo struct {
	RawJSON        string `toml:"raw_json"`
	APIKey         string `toml:"apikey"`
	URL            string `toml:"url"`
	Version        string `toml:"version"`
	ExplorerURL    string `toml:"explorer_url"`
	MaintenanceURL string `toml:"maintenance_url"`

	Pairing        Pairing `toml:"-"`
	PairingCompact string  `toml:"-"`
	PairingPretty  string  `toml:"-"`
	Valid          bool    `toml:"-"`
}

// Pairing is the payload wallets scan. Field order is the order wallets
// have always been shown.
type Pairing struct {
	Pairing  PairingAPI `json:"pairing"`
	Explorer Explorer   `json:"explorer"`
}

type PairingAPI struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	APIKey  string `json:"apikey"`
	URL     string `json:"url"`
}

type Explorer struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

func canonicalPairing(version, apiKey, pairingURL, explorerURL string) Pairing {
	return Pairing{
		Pairing: PairingAPI{
			Type:    "dojo.api",
			Version: version,
			APIKey:  apiKey,
			URL:     ensureV2Suffix(pairingURL),
		},
		Explorer: Explorer{
			Type: "explorer.btc_rpc_explorer",
			URL:  explorerURL,
		},
	}
}

// rawPairing pulls string fields out of a user supplied pairing blob. Anything
// that isn't the expected shape is ignored.
type rawPairing struct {
	version, apiKey, url, explorerURL string
}

func parseRawPairing(raw string) (rp rawPairing) {
	var src map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &src); err != nil {
		return rp
	}
	field := func(section, key string) string {
		m, ok := src[section].(map[string]interface{})
		if !ok {
			return ""
		}
		s, _ := m[key].(string)
		return s
	}
	return rawPairing{
		version:     field("pairing", "version"),
		apiKey:      field("pairing", "apikey"),
		url:         field("pairing", "url"),
		explorerURL: field("explorer", "url"),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func (d *Dojo) finalize(mempoolOnion string) {
	if d.RawJSON != "" {
		rp := parseRawPairing(d.RawJSON)
		d.Pairing = canonicalPairing(
			firstNonEmpty(d.Version, rp.version, DefaultDojoVersion),
			firstNonEmpty(d.APIKey, rp.apiKey),
			firstNonEmpty(d.URL, rp.url),
			firstNonEmpty(d.ExplorerURL, rp.explorerURL),
		)
	} else {
		d.Pairing = canonicalPairing(d.Version, d.APIKey, d.URL, d.ExplorerURL)
	}
	if mempoolOnion != "" {
		d.Pairing.Explorer.URL = "http://" + mempoolOnion
	}

	var err error
	d.PairingCompact, err = encodeJSON(d.Pairing, "")
	if err == nil {
		d.PairingPretty, err = encodeJSON(d.Pairing, "    ")
	}
	d.Valid = err == nil
	if !d.Valid {
		d.PairingCompact, d.PairingPretty = "", ""
	}
}

// Configured reports whether the pairing carries credentials a wallet can
// use. A payload with an empty apikey or url isn't worth a QR code.
func (d Dojo) Configured() bool {
	return d.Valid && d.PairingCompact != "" &&
		d.Pairing.Pairing.APIKey != "" && d.Pairing.Pairing.URL != ""
}

func encodeJSON(v interface{}, indent string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// ensureV2Suffix makes sure url ends in exactly "/v2".
func ensureV2Suffix(url string) string {
	u := strings.TrimRight(strings.TrimSpace(url), "/")
	if u == "" {
		return ""
	}
	if !strings.HasSuffix(u, "/v2") {
		u += "/v2"
	}
	return u
}

// ensureHTTP adds an http:// scheme to bare hosts, onion addresses are
// usually pasted without one.
func ensureHTTP(url string) string {
	u := strings.TrimSpace(url)
	if u == "" || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return "http://" + u
}

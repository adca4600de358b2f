package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/loykin/procwatch/internal/config"
	"github.com/loykin/procwatch/internal/registry"
	"github.com/loykin/procwatch/pkg/client"
)

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// apiBaseURL returns --api-url, or the address of the API configured in the
// file when the flag is empty.
func apiBaseURL(g *GlobalFlags) (string, error) {
	if g.APIUrl != "" {
		return strings.TrimRight(g.APIUrl, "/"), nil
	}
	cfg, err := config.Load(g.ConfigPath)
	if err != nil {
		return "", err
	}
	return configAPIURL(cfg), nil
}

func configAPIURL(cfg *config.Config) string {
	scheme := "http"
	if cfg.Server.TLS.Enabled {
		scheme = "https"
	}
	host, port, err := net.SplitHostPort(cfg.Server.Listen)
	if err != nil {
		host, port = cfg.Server.Listen, ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	addr := host
	if port != "" {
		addr = net.JoinHostPort(host, port)
	}
	base := "/" + strings.Trim(cfg.Server.BasePath, "/")
	if base == "/" {
		base = ""
	}
	return scheme + "://" + addr + base
}

func newAPIClient(g *GlobalFlags) (*client.Client, error) {
	base, err := apiBaseURL(g)
	if err != nil {
		return nil, err
	}
	cc := client.Config{BaseURL: base, Timeout: g.APITimeout, Insecure: g.Insecure, Token: g.Token}
	if g.User != "" {
		name, pass, ok := strings.Cut(g.User, ":")
		if !ok {
			return nil, fmt.Errorf("--user wants name:password")
		}
		cc.Username, cc.Password = name, pass
	}
	return client.New(cc), nil
}

func programsFromRegistry(s registry.Snapshot) []client.Program {
	out := make([]client.Program, 0, len(s))
	for i, p := range s {
		out = append(out, client.Program{Nr: i + 1, Name: p.Name, Path: p.Path, Enabled: p.Enabled})
	}
	return out
}

func renderPrograms(w io.Writer, programs []client.Program) {
	if len(programs) == 0 {
		_, _ = fmt.Fprintln(w, "No programs registered")
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("Nr", "Name", "Path", "Enabled")
	for _, p := range programs {
		table.Append(strconv.Itoa(p.Nr), p.Name, p.Path, yesNo(p.Enabled))
	}
	table.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

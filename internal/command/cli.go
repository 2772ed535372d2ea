package command

import (
	"context"
	"fmt"
	"io/ioutil"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/maxmcd/nodehome/internal/config"
	"github.com/maxmcd/nodehome/internal/dashboard"
	"github.com/maxmcd/nodehome/internal/logger"
	"github.com/maxmcd/nodehome/internal/tracing"
	"github.com/maxmcd/nodehome/pkg/qr"
	"github.com/mitchellh/go-wordwrap"
	"github.com/pkg/errors"
	cli "github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel/trace"
)

var (
	commandHelpTemplate = `Usage: {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}}{{if .VisibleFlags}} [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}{{end}}{{if .Description}}

Description:
   {{.Description | nindent 3 | trim}}{{end}}{{if .VisibleFlags}}

Options:{{range .VisibleFlags}}
   {{.}}{{end}}{{end}}
`

	appHelpTemplate = `Usage: {{.Usage}}
	{{.Description | nindent 3 | trim}}
Commands:{{range .VisibleCommands}}
	{{join .Names ", "}}{{"\t"}}{{.Usage}}{{end}}

Options:
	{{range $index, $option := .VisibleFlags}}{{if $index}}
	{{end}}{{$option}}{{end}}
`
)

var tracer trace.Tracer

func init() {
	tracer = tracing.Tracer("command")
}

func loadConfig(c *cli.Context) (config.Config, error) {
	return config.FromEnvironment(c.String("config"))
}

func cliApp() *cli.App {
	app := &cli.App{
		Name:                  "nodehome",
		Usage:                 "nodehome [--version] [--help] [--config file] <command> [args]",
		Description:           "A status page for a home bitcoin node and the services around it.",
		Version:               "0.1.0",
		HideHelpCommand:       true,
		CustomAppHelpTemplate: appHelpTemplate,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				EnvVars: []string{"NODEHOME_CONFIG"},
				Usage:   "a TOML file to read settings from, environment variables override it",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Serve the dashboard",
				UsageText: `nodehome serve [options]

serve starts the dashboard web server. The page polls /api/bitcoin and
/api/fulcrum, both of which are computed on request. Fulcrum's sync status is
inferred from the tail of its log, so the server needs read access to the file
at FULCRUM_TAIL_PATH.
`,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "host",
						Value: "0.0.0.0",
						Usage: "the host that the server will listen on",
					},
					&cli.IntFlag{
						Name:  "port",
						Usage: "the port that the server will listen on, defaults to APP_PORT or 8088",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					port := cfg.AppPort
					if c.IsSet("port") {
						port = c.Int("port")
					}
					addr := net.JoinHostPort(c.String("host"), fmt.Sprint(port))
					return serve(c.Context, cfg, addr)
				},
			},
			{
				Name:      "status",
				Usage:     "Print node and indexer status",
				UsageText: "nodehome status [--json]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "print the report as JSON instead of a table",
					},
				},
				Action: func(c *cli.Context) error {
					ctx, span := tracer.Start(c.Context, "nodehome status")
					defer span.End()
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					node, indexer := dashboard.Clients(cfg)
					r := gather(ctx, cfg, node, indexer)
					if c.Bool("json") {
						return r.writeJSON(c.App.Writer)
					}
					_, err = fmt.Fprint(c.App.Writer, r.render())
					return err
				},
			},
			{
				Name:  "qr",
				Usage: "Write a QR code PNG",
				UsageText: `nodehome qr [options] [text]

qr encodes text, or the Dojo pairing payload when --dojo is passed, the same
way the dashboard's /qr endpoints do.
`,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dojo",
						Usage: "encode the Dojo pairing JSON instead of an argument",
					},
					&cli.StringFlag{
						Name:  "out",
						Value: "qr.png",
						Usage: "the file to write the PNG to",
					},
				},
				Action: func(c *cli.Context) error {
					text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
					if c.Bool("dojo") {
						cfg, err := loadConfig(c)
						if err != nil {
							return err
						}
						if !cfg.Dojo.Configured() {
							return errors.New("Dojo pairing JSON not configured")
						}
						text = cfg.Dojo.PairingCompact
					}
					png, err := qr.PNG(text, qr.DefaultOptions)
					if err != nil {
						return err
					}
					if err := ioutil.WriteFile(c.String("out"), png, 0o644); err != nil {
						return errors.Wrap(err, "error writing qr code")
					}
					fmt.Fprintln(c.App.Writer, c.String("out"))
					return nil
				},
			},
			{
				Name:      "config",
				Usage:     "Print the resolved configuration",
				UsageText: "nodehome config",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					return toml.NewEncoder(c.App.Writer).Encode(cfg.Redacted())
				},
			},
		},
	}

	for _, c := range app.Commands {
		c.CustomHelpTemplate = commandHelpTemplate

		// Wrap the options help to 80 width. Requires knowledge of the longest
		// flag length. Assumes there are never aliases.
		longest := 0
		for _, flag := range c.Flags {
			for _, name := range flag.Names() {
				if len(name) > longest {
					longest = len(name)
				}
			}
		}
		for _, flag := range c.Flags {
			switch c := flag.(type) {
			case *cli.BoolFlag:
				c.Usage = formatFlag(c.Usage, longest)
			case *cli.StringFlag:
				c.Usage = formatFlag(c.Usage, longest)
			case *cli.IntFlag:
				c.Usage = formatFlag(c.Usage, longest)
			}
		}
	}
	return app
}

// RunCLI runs the cli with os.Args
func RunCLI() {
	defer tracing.Stop()

	// Patch cli lib to remove bool default
	oldFlagStringer := cli.FlagStringer
	cli.FlagStringer = func(f cli.Flag) string {
		return strings.TrimSuffix(oldFlagStringer(f), " (default: false)")
	}

	app := cliApp()
	log.SetOutput(ioutil.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		s := make(chan os.Signal, 5)
		count := 0
		signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
		for {
			<-s
			count++
			cancel()
			if count == 3 {
				fmt.Println("Three interrupt attempts, exiting immediately")
				os.Exit(1)
			}
			fmt.Println("Got interrupt, shutting down")
		}
	}()
	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Print(err)
		// Explicitly call stop since the Exit will not call the defer
		tracing.Stop()
		os.Exit(1)
	}
}

func formatFlag(usage string, longest int) string {
	return strings.ReplaceAll(
		wordwrap.WrapString(usage,
			uint(80-3-longest-3),
		), "\n", "\n\t")
}

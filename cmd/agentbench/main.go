// Command agentbench runs and compares LLM agent workflows.
//
// Usage:
//
//	agentbench serve --config config.yaml
//	agentbench run --workflow adaptive --instruction "budget meeting" --target "John"
//	agentbench compare --instruction "budget meeting" --target "John"
//	agentbench seed --config config.yaml
//	agentbench mcp
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/cadenlabs/agentbench/pkg/config"
	"github.com/cadenlabs/agentbench/pkg/directory"
	"github.com/cadenlabs/agentbench/pkg/document"
	"github.com/cadenlabs/agentbench/pkg/llm"
	"github.com/cadenlabs/agentbench/pkg/logger"
	"github.com/cadenlabs/agentbench/pkg/mcp"
	"github.com/cadenlabs/agentbench/pkg/observability"
	"github.com/cadenlabs/agentbench/pkg/server"
	"github.com/cadenlabs/agentbench/pkg/workflow"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP API server."`
	Run     RunCmd     `cmd:"" help:"Execute a workflow and print its result."`
	Compare CompareCmd `cmd:"" help:"Run the adaptive and rigid workflows side by side."`
	Seed    SeedCmd    `cmd:"" help:"Seed the contact directory with the demo data set."`
	MCP     MCPCmd     `cmd:"" name:"mcp" help:"Serve engine tools over the Model Context Protocol (stdio)."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFormat string `help:"Log format (text, json)."`
	Observe   bool   `help:"Enable tracing of collaborator calls."`
}

func main() {
	_ = godotenv.Load()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agentbench"),
		kong.Description("Agent workflow execution engine and benchmark."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(*CLI) error {
	fmt.Printf("agentbench version %s\n", buildVersion())
	return nil
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

// runtimeDeps bundles the collaborators a command needs.
type runtimeDeps struct {
	cfg      *config.Config
	engine   *workflow.Engine
	contacts workflow.ContactFinder
	shutdown []func() error
}

func (d *runtimeDeps) Close() {
	for i := len(d.shutdown) - 1; i >= 0; i-- {
		if err := d.shutdown[i](); err != nil {
			slog.Warn("shutdown error", "error", err)
		}
	}
}

func loadConfig(cli *CLI) (*config.Config, error) {
	cfg := config.Default()
	if cli.Config != "" {
		loaded, err := config.Load(cli.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}
	return cfg, nil
}

// bootstrap loads config, installs the logger and tracer, and builds the
// engine over the configured collaborators.
func bootstrap(cli *CLI) (*runtimeDeps, error) {
	cfg, err := loadConfig(cli)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.ParseLevel(cfg.Logging.Level), nil, cfg.Logging.Format)

	traceShutdown, err := observability.Init("agentbench", cli.Observe)
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	deps := &runtimeDeps{cfg: cfg}
	deps.shutdown = append(deps.shutdown, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return traceShutdown(ctx)
	})

	contacts, closeDir, err := buildDirectory(&cfg.Directory)
	if err != nil {
		deps.Close()
		return nil, err
	}
	if closeDir != nil {
		deps.shutdown = append(deps.shutdown, closeDir)
	}
	deps.contacts = contacts

	model, err := llm.New(&cfg.LLM)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.shutdown = append(deps.shutdown, model.Close)

	deps.engine = workflow.NewEngine(model, contacts, cfg.Engine)
	return deps, nil
}

func buildDirectory(cfg *config.DirectoryConfig) (workflow.ContactFinder, func() error, error) {
	switch cfg.Type {
	case "sqlite":
		db, err := directory.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Seed {
			inserted, err := db.Seed(context.Background(), directory.SeedContacts())
			if err != nil {
				_ = db.Close()
				return nil, nil, err
			}
			if inserted > 0 {
				slog.Info("seeded contact directory", "inserted", inserted)
			}
		}
		return db, db.Close, nil
	default:
		if cfg.Seed {
			return directory.NewMemory(directory.SeedContacts()...), nil, nil
		}
		return directory.NewMemory(), nil, nil
	}
}

// ServeCmd starts the HTTP API server.
type ServeCmd struct {
	Address string `help:"Listen address, e.g. :8080."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	deps, err := bootstrap(cli)
	if err != nil {
		return err
	}
	defer deps.Close()

	if c.Address != "" {
		deps.cfg.Server.Address = c.Address
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	srv := server.New(&deps.cfg.Server, deps.engine)
	return srv.Start(ctx)
}

// RunCmd executes one workflow synchronously and prints the RunResult.
type RunCmd struct {
	Workflow    string   `help:"Workflow type: adaptive, rigid, multi_agent, recursive." default:"adaptive"`
	Instruction string   `help:"Task instruction." required:""`
	Target      string   `help:"Target contact name."`
	Docs        []string `help:"Document files (.txt, .md, .pdf) used as answer context." type:"path"`

	MaxRetries       int     `help:"Disambiguation retry bound (adaptive)."`
	MaxRefinements   int     `help:"Refinement bound (recursive)."`
	TargetConfidence float64 `help:"Confidence stop threshold (recursive)."`
}

func (c *RunCmd) Run(cli *CLI) error {
	deps, err := bootstrap(cli)
	if err != nil {
		return err
	}
	defer deps.Close()

	typ, err := workflow.ParseType(c.Workflow)
	if err != nil {
		return err
	}

	params := workflow.Parameters{
		MaxRetries:       c.MaxRetries,
		MaxRefinements:   c.MaxRefinements,
		TargetConfidence: c.TargetConfidence,
	}
	if len(c.Docs) > 0 {
		docsCfg := deps.cfg.Documents
		docsCfg.Paths = c.Docs
		docContext, err := document.NewLoader(&docsCfg).LoadContext(context.Background())
		if err != nil {
			return err
		}
		params.DocumentContext = docContext
	}

	id, err := deps.engine.Start(typ, workflow.Task{Instruction: c.Instruction, TargetName: c.Target}, params)
	if err != nil {
		return err
	}
	res, err := deps.engine.Wait(context.Background(), id)
	if err != nil {
		return err
	}
	return printJSON(res)
}

// CompareCmd runs the adaptive and rigid workflows on the same task.
type CompareCmd struct {
	Instruction string `help:"Task instruction." required:""`
	Target      string `help:"Target contact name."`
}

func (c *CompareCmd) Run(cli *CLI) error {
	deps, err := bootstrap(cli)
	if err != nil {
		return err
	}
	defer deps.Close()

	cmp, err := deps.engine.Compare(context.Background(),
		workflow.Task{Instruction: c.Instruction, TargetName: c.Target}, workflow.Parameters{})
	if err != nil {
		return err
	}
	return printJSON(cmp)
}

// SeedCmd populates a sqlite directory with the demo contacts.
type SeedCmd struct{}

func (c *SeedCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	logger.Init(logger.ParseLevel(cfg.Logging.Level), nil, cfg.Logging.Format)

	if cfg.Directory.Type != "sqlite" {
		return fmt.Errorf("seed requires a sqlite directory, got %q", cfg.Directory.Type)
	}
	db, err := directory.OpenSQLite(cfg.Directory.Path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	inserted, err := db.Seed(context.Background(), directory.SeedContacts())
	if err != nil {
		return err
	}
	fmt.Printf("seeded %d contacts into %s\n", inserted, cfg.Directory.Path)
	return nil
}

// MCPCmd serves engine tools over stdio.
type MCPCmd struct{}

func (c *MCPCmd) Run(cli *CLI) error {
	deps, err := bootstrap(cli)
	if err != nil {
		return err
	}
	defer deps.Close()

	return mcp.New(deps.engine, deps.contacts, buildVersion()).Serve()
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

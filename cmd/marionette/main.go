package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/marionette/internal/api"
	"github.com/mattjoyce/marionette/internal/bridge"
	"github.com/mattjoyce/marionette/internal/config"
	"github.com/mattjoyce/marionette/internal/correlate"
	"github.com/mattjoyce/marionette/internal/dispatch"
	"github.com/mattjoyce/marionette/internal/events"
	"github.com/mattjoyce/marionette/internal/history"
	"github.com/mattjoyce/marionette/internal/lock"
	"github.com/mattjoyce/marionette/internal/log"
	"github.com/mattjoyce/marionette/internal/mock"
	"github.com/mattjoyce/marionette/internal/session"
	"github.com/mattjoyce/marionette/internal/storage"
	"github.com/mattjoyce/marionette/internal/tui/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start":
		return runStart(args)
	case "watch":
		return runWatch(args)
	case "exec":
		return runExec(args)
	case "history":
		return runHistory(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Println("Usage: marionette <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  start      Run the automation daemon")
	fmt.Println("  watch      Live TUI over the daemon's event stream")
	fmt.Println("  exec       Run a script in the attached remote context")
	fmt.Println("  history    Show recent execute calls")
	fmt.Println("  version    Print version information")
	fmt.Println("  help       Show this help")
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *jsonOut {
		out, _ := json.MarshalIndent(versionInfo{
			Version:   version,
			Commit:    gitCommit,
			BuildTime: buildDate,
		}, "", "  ")
		fmt.Println(string(out))
		return 0
	}

	fmt.Printf("marionette %s (commit %s, built %s)\n", version, gitCommit, buildDate)
	return 0
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("marionette starting", "version", version, "listen", cfg.API.Listen)

	if cfg.Service.PIDFile != "" {
		pidLock, err := lock.Acquire(cfg.Service.PIDFile)
		if err != nil {
			logger.Error("failed to acquire PID lock (another instance may be running)",
				"path", cfg.Service.PIDFile, "error", err)
			return 1
		}
		defer pidLock.Release()
		logger.Info("acquired PID lock", "path", pidLock.Path())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewHub(256)
	correlator := correlate.NewManager()
	sess := session.New(correlator, hub)
	executor := bridge.NewExecutor(sess, correlator, hub, cfg.Execute.Timeout.Std())
	mocks := mock.NewRegistry()

	dispatcher := dispatch.New(mocks, executor)
	if err := dispatcher.RegisterBuiltins(hub); err != nil {
		logger.Error("failed to register commands", "error", err)
		return 1
	}

	var store *history.Store
	if cfg.History.Enabled {
		db, err := storage.OpenSQLite(ctx, cfg.History.Path)
		if err != nil {
			logger.Error("failed to open history database", "path", cfg.History.Path, "error", err)
			return 1
		}
		defer db.Close()
		store = history.NewStore(db)

		if removed, err := store.Prune(ctx, cfg.History.Retention.Std()); err != nil {
			logger.Warn("history prune failed", "error", err)
		} else if removed > 0 {
			logger.Info("pruned history records", "removed", removed)
		}

		recorder := history.NewRecorder(store, hub)
		go recorder.Run(ctx)
		logger.Info("history enabled", "path", cfg.History.Path)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	apiServer := api.New(api.Config{
		Listen: cfg.API.Listen,
		APIKey: cfg.API.APIKey,
	}, dispatcher, sess, mocks, correlator, hub, store, log.WithComponent("api"))
	go func() {
		if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("api: %w", err)
		}
	}()

	logger.Info("marionette running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("marionette stopped")
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:8940", "Daemon API URL")
	apiKey := fs.String("api-key", os.Getenv("MARIONETTE_API_KEY"), "API bearer token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	m := watch.New(*apiURL, *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// runExec posts one execute command. The script comes from the first
// positional argument, or stdin when the argument is "-".
func runExec(args []string) int {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:8940", "Daemon API URL")
	apiKey := fs.String("api-key", os.Getenv("MARIONETTE_API_KEY"), "API bearer token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: marionette exec [flags] <script|->")
		return 1
	}

	script := fs.Arg(0)
	if script == "-" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read stdin: %v\n", err)
			return 1
		}
		script = string(raw)
	}

	body, _ := json.Marshal(map[string]string{"script": script})
	result, err := postCommand(*apiURL, *apiKey, "execute", string(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Execute failed: %v\n", err)
		return 1
	}
	fmt.Println(result)
	return 0
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:8940", "Daemon API URL")
	apiKey := fs.String("api-key", os.Getenv("MARIONETTE_API_KEY"), "API bearer token")
	limit := fs.Int("limit", 20, "Maximum records to show")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	req, err := http.NewRequest("GET", fmt.Sprintf("%s/history?limit=%d", *apiURL, *limit), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request error: %v\n", err)
		return 1
	}
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Daemon returned %d: %s\n", resp.StatusCode, strings.TrimSpace(string(raw)))
		return 1
	}

	var hist struct {
		Records []history.Record `json:"records"`
	}
	if err := json.Unmarshal(raw, &hist); err != nil {
		fmt.Fprintf(os.Stderr, "Unexpected response: %v\n", err)
		return 1
	}

	if len(hist.Records) == 0 {
		fmt.Println("No execute calls recorded.")
		return 0
	}
	for _, rec := range hist.Records {
		line := fmt.Sprintf("%s  %-6s  %s  %dms",
			rec.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Status, rec.Fingerprint[:min(12, len(rec.Fingerprint))], rec.DurationMs)
		if rec.Error != "" {
			line += "  " + rec.Error
		}
		fmt.Println(line)
	}
	return 0
}

func postCommand(apiURL, apiKey, command, body string) (string, error) {
	req, err := http.NewRequest("POST", apiURL+"/command/"+command, strings.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return "", fmt.Errorf("%s", apiErr.Error)
		}
		return "", fmt.Errorf("daemon returned %d", resp.StatusCode)
	}

	var out struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("unexpected response: %w", err)
	}
	return string(out.Result), nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/hireflow/internal/api"
	"github.com/mattjoyce/hireflow/internal/auth"
	"github.com/mattjoyce/hireflow/internal/candidate"
	"github.com/mattjoyce/hireflow/internal/config"
	"github.com/mattjoyce/hireflow/internal/inspect"
	"github.com/mattjoyce/hireflow/internal/lock"
	"github.com/mattjoyce/hireflow/internal/log"
	"github.com/mattjoyce/hireflow/internal/notify"
	"github.com/mattjoyce/hireflow/internal/ratelimit"
	"github.com/mattjoyce/hireflow/internal/stage"
	"github.com/mattjoyce/hireflow/internal/storage"
	"github.com/mattjoyce/hireflow/internal/store"
	"github.com/mattjoyce/hireflow/internal/webhook"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// defaultConfigPath is used when neither --config nor HIREFLOW_CONFIG is set.
const defaultConfigPath = "config.yaml"

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
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "stage":
		return runStageNoun(args)
	case "application":
		return runApplicationNoun(args)

	// --- ROOT ALIASES ---
	case "serve", "start":
		if hasHelpFlag(args) {
			printSystemStartHelp()
			return 0
		}
		return runStart(args)
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
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: hireflow version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("hireflow %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`hireflow - Recruitment pipeline webhook service

Usage:
  hireflow <noun> <action> [flags]

System Commands:
  system start      Start the webhook and admin servers in foreground
  system status     Show config, database and lock state

Config Commands:
  config check      Validate syntax, policy, and integrity
  config lock       Record the config file hash in .checksums
  config show       Print the effective configuration (secrets redacted)

Stage Commands:
  stage table       Print the pipeline transition table

Application Commands:
  application inspect <id>  Show an application's full record and history

General:
  serve             Alias for 'system start'
  version           Show version information
  help              Show this help message

The config path comes from --config, then $HIREFLOW_CONFIG, then ./config.yaml.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			printSystemStatusHelp()
			return 0
		}
		return runSystemStatus(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runStageNoun(args []string) int {
	if len(args) < 1 {
		printStageNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printStageNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "table":
		return runStageTable(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown stage action: %s\n", args[0])
		return 1
	}
}

func runApplicationNoun(args []string) int {
	if len(args) < 1 {
		printApplicationNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printApplicationNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "inspect":
		return runApplicationInspect(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown application action: %s\n", args[0])
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hireflow system <action>")
	fmt.Fprintln(w, "Actions: start, status")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hireflow config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, show")
}

func printStageNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hireflow stage <action>")
	fmt.Fprintln(w, "Actions: table")
}

func printApplicationNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hireflow application <action>")
	fmt.Fprintln(w, "Actions: inspect")
}

func printSystemStartHelp() {
	fmt.Println("Usage: hireflow system start [--config PATH]")
	fmt.Println("Start the webhook server (and the admin API when enabled) in the foreground.")
}

func printSystemStatusHelp() {
	fmt.Println("Usage: hireflow system status [--config PATH] [--json]")
	fmt.Println("Show config validity, database readiness, and instance lock state.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  All required checks passed")
	fmt.Println("  1  One or more checks failed")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: hireflow config check [--config PATH] [--json]")
	fmt.Println("Validate the configuration and its .checksums entry.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: hireflow config lock [--config PATH]")
	fmt.Println("Validate the configuration and record its BLAKE3 hash in .checksums.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: hireflow config show [--config PATH]")
	fmt.Println("Print the effective configuration as YAML with secrets redacted.")
}

// configFlag registers --config on fs and returns a resolver applying the
// environment and default fallbacks.
func configFlag(fs *flag.FlagSet) func() string {
	p := fs.String("config", "", "Path to configuration file or directory")
	return func() string {
		if *p != "" {
			return *p
		}
		if env := os.Getenv("HIREFLOW_CONFIG"); env != "" {
			return env
		}
		return defaultConfigPath
	}
}

// --- ACTIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("hireflow starting",
		"version", version,
		"config", cfg.Path,
		"environment", cfg.Service.Environment,
	)
	if !cfg.IsProduction() {
		if cfg.Verification.AllowUnsigned {
			logger.Warn("unsigned webhook deliveries are accepted")
		}
		if cfg.Verification.SkipIPCheck {
			logger.Warn("webhook source IP check is disabled")
		}
	}

	instanceLock, err := lock.Acquire(cfg.State.LockPath)
	if err != nil {
		logger.Error("failed to acquire instance lock (another instance may be running)", "path", cfg.State.LockPath, "error", err)
		return 1
	}
	defer func() { _ = instanceLock.Release() }()
	logger.Info("acquired instance lock", "path", instanceLock.Path())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	limiter, closeLimiter, err := newLimiter(ctx, cfg.RateLimit, log.Get())
	if err != nil {
		logger.Error("failed to configure rate limiter", "error", err)
		return 1
	}
	defer closeLimiter()

	svc := candidate.New(
		store.New(db),
		stage.Default(),
		notify.NewLogSender(log.Get()),
		cfg.Assessment.GCThreshold,
		log.Get(),
	)

	webhookConfig, verifier, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		logger.Error("failed to configure webhooks", "error", err)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)

	webhookServer := webhook.New(webhookConfig, verifier, limiter, svc, log.Get())
	g.Go(func() error {
		return webhookServer.Start(gctx)
	})

	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen: cfg.API.Listen,
			Tokens: apiTokens(cfg.API.Tokens),
		}, svc, log.Get())
		g.Go(func() error {
			return apiServer.Start(gctx)
		})
		logger.Info("API server enabled", "listen", cfg.API.Listen, "tokens", len(cfg.API.Tokens))
	}

	logger.Info("hireflow running (press Ctrl+C to stop)")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("component failed", "error", err)
		return 1
	}

	logger.Info("hireflow stopped")
	return 0
}

func apiTokens(in []config.APIToken) []auth.TokenConfig {
	out := make([]auth.TokenConfig, 0, len(in))
	for _, t := range in {
		out = append(out, auth.TokenConfig{
			Token:  t.Token,
			UserID: t.UserID,
			Scopes: t.Scopes,
		})
	}
	return out
}

// newLimiter builds the process-wide limiter. The returned func releases
// any connection it holds.
func newLimiter(ctx context.Context, cfg config.RateLimitConfig, logger *slog.Logger) (ratelimit.Limiter, func(), error) {
	switch cfg.Backend {
	case config.RateLimitMemory, "":
		return ratelimit.NewMemory(cfg.Requests, cfg.Window), func() {}, nil
	case config.RateLimitRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable at startup, rate limiting fails open until it recovers", "addr", cfg.Redis.Addr, "error", err)
		}
		return ratelimit.NewRedis(client, cfg.Requests, cfg.Window, cfg.Redis.Prefix, logger),
			func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}

type statusCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := configFlag(fs)
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	var checks []statusCheck
	healthy := true
	add := func(c statusCheck) {
		checks = append(checks, c)
		healthy = healthy && c.OK
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		add(statusCheck{Name: "config", Detail: err.Error()})
	} else {
		add(statusCheck{Name: "config", OK: true, Detail: cfg.Path})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if db, err := storage.OpenSQLite(ctx, cfg.State.Path); err != nil {
			add(statusCheck{Name: "database", Detail: err.Error()})
		} else {
			add(statusCheck{Name: "database", OK: true, Detail: cfg.State.Path})
			_ = db.Close()
		}

		// The lock is informational: a running server is not a failure.
		if pid, ok := lock.Holder(cfg.State.LockPath); ok {
			checks = append(checks, statusCheck{Name: "instance_lock", OK: true, Detail: fmt.Sprintf("pid %d recorded in %s", pid, cfg.State.LockPath)})
		} else {
			checks = append(checks, statusCheck{Name: "instance_lock", OK: true, Detail: "no instance recorded"})
		}
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(map[string]any{"healthy": healthy, "checks": checks}, "", "  ")
		fmt.Println(string(data))
	} else {
		for _, c := range checks {
			mark := "OK  "
			if !c.OK {
				mark = "FAIL"
			}
			fmt.Printf("%s %-14s %s\n", mark, c.Name, c.Detail)
		}
	}

	if !healthy {
		return 1
	}
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := configFlag(fs)
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(configPath())
	if *jsonOut {
		out := map[string]any{"valid": err == nil}
		if err != nil {
			out["errors"] = splitErrors(err)
		} else {
			out["path"] = cfg.Path
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "Config invalid:\n")
		for _, msg := range splitErrors(err) {
			fmt.Fprintf(os.Stderr, "  - %s\n", msg)
		}
	} else {
		fmt.Printf("Config valid: %s\n", cfg.Path)
	}

	if err != nil {
		return 1
	}
	return 0
}

// splitErrors flattens a joined validation error into one message per line.
func splitErrors(err error) []string {
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "invalid configuration: "))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := config.ResolvePath(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	// Only a valid file gets locked.
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
		return 1
	}
	cfg, err := config.Parse(data)
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Refusing to lock invalid config: %v\n", err)
		return 1
	}

	manifest, err := config.Lock(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}
	fmt.Printf("Locked %s\n", path)
	for name, hash := range manifest.Hashes {
		fmt.Printf("  HASH %s: %s\n", name, hash)
	}
	return 0
}

const redacted = "[redacted]"

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	if cfg.Webhooks.Secret != "" {
		cfg.Webhooks.Secret = redacted
	}
	if cfg.RateLimit.Redis.Password != "" {
		cfg.RateLimit.Redis.Password = redacted
	}
	for i := range cfg.API.Tokens {
		cfg.API.Tokens[i].Token = redacted
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}

type stageRow struct {
	From    string   `json:"from"`
	Event   string   `json:"event"`
	Status  string   `json:"requires_status"`
	To      string   `json:"to,omitempty"`
	Becomes string   `json:"status_to,omitempty"`
	Guard   string   `json:"guard,omitempty"`
	Chain   string   `json:"chain,omitempty"`
	Emails  []string `json:"emails,omitempty"`
}

const inspectUsage = "Usage: hireflow application inspect <application_id> [--config PATH] [--json]"

func runApplicationInspect(args []string) int {
	// The id may come before or after the flags.
	var applicationID string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		applicationID, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	configPath := configFlag(fs)
	jsonOut := fs.Bool("json", false, "Output report in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if applicationID == "" {
		applicationID = fs.Arg(0)
	}
	if applicationID == "" {
		fmt.Fprintln(os.Stderr, inspectUsage)
		return 1
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	var report string
	if *jsonOut {
		report, err = inspect.BuildJSONReport(ctx, store.New(db), applicationID)
	} else {
		report, err = inspect.BuildReport(ctx, store.New(db), applicationID)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
		return 1
	}

	fmt.Println(strings.TrimRight(report, "\n"))
	return 0
}

func runStageTable(args []string) int {
	fs := flag.NewFlagSet("table", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	rules := stage.Default().Rules()
	rows := make([]stageRow, 0, len(rules))
	for _, r := range rules {
		row := stageRow{
			From:    string(r.From),
			Event:   string(r.Event),
			Status:  string(r.RequireStatus),
			To:      string(r.To),
			Becomes: string(r.StatusTo),
			Guard:   r.GuardName,
			Chain:   string(r.Chain),
		}
		for _, e := range r.Emails {
			row.Emails = append(row.Emails, string(e))
		}
		rows = append(rows, row)
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(rows, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	for _, r := range rows {
		to := r.To
		if to == "" {
			to = "(stay)"
		}
		line := fmt.Sprintf("%-26s %-22s %-9s -> %-26s", r.From, r.Event, r.Status, to)
		if r.Becomes != "" {
			line += " status=" + r.Becomes
		}
		if r.Guard != "" {
			line += " guard=" + r.Guard
		}
		if r.Chain != "" {
			line += " then=" + r.Chain
		}
		if len(r.Emails) > 0 {
			line += " email=" + strings.Join(r.Emails, ",")
		}
		fmt.Println(strings.TrimRight(line, " "))
	}
	return 0
}

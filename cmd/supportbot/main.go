package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"supportbot/internal/analyze"
	"supportbot/internal/bus"
	"supportbot/internal/channel"
	"supportbot/internal/config"
	"supportbot/internal/domain"
	"supportbot/internal/eventlog"
	"supportbot/internal/guard"
	"supportbot/internal/knowledge"
	"supportbot/internal/matcher"
	"supportbot/internal/metrics"
	"supportbot/internal/provider"
	"supportbot/internal/triage"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "supportbot",
		Short: "Discord community support triage bot",
		Long:  "Supportbot watches a Discord support channel, matches questions against a FAQ knowledge base, and answers after giving the team a head start.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.supportbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(triageCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(analyzeCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func configureLogger(cfg *config.Config) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, staying on stderr", "path", cfg.General.LogFile, "err", err)
		} else {
			out = f
		}
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and knowledge base skeleton",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}

			base := config.ExpandPath(cfg.Knowledge.BasePath)
			for _, dir := range []string{base, filepath.Join(base, "docs"), filepath.Join(base, "faqs.d")} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			kbPath := filepath.Join(base, "knowledge_base.json")
			if _, err := os.Stat(kbPath); os.IsNotExist(err) {
				if err := os.WriteFile(kbPath, []byte(starterKnowledgeBase), 0o644); err != nil {
					return err
				}
			}

			logger.Info("initialized", "config", cfgPath, "knowledge", base)
			return nil
		},
	}
}

const starterKnowledgeBase = `{
  "faqs": [
    {
      "id": "example_faq",
      "category": "Getting Started",
      "keywords": ["example", "setup"],
      "question_patterns": ["how.*set.*up"],
      "answer": "Replace this entry with your own FAQs.",
      "docs_link": ""
    }
  ],
  "team_usernames": [],
  "skip_patterns": []
}
`

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the support bot",
		Long:  "Connects to Discord and triages support-channel messages until interrupted.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	configureLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := eventlog.NewSQLiteStore(cfg.Events.DBPath, logger)
	if err != nil {
		return fmt.Errorf("event log: %w", err)
	}
	defer events.Close()

	store := knowledge.NewStore(cfg.Knowledge.BasePath, logger)
	if err := store.LoadAll(); err != nil {
		return fmt.Errorf("knowledge base: %w", err)
	}
	logger.Info("knowledge base loaded", "faqs", len(store.FAQs()))

	g, err := guard.New(cfg.Guard, events, logger)
	if err != nil {
		return fmt.Errorf("guard: %w", err)
	}

	chain := buildMatcherChain(cfg, store, g)

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	discord := channel.NewDiscord(cfg.Discord, logger)

	coordinator := triage.NewCoordinator(triage.CoordinatorConfig{
		Channel:       discord,
		Bus:           messageBus,
		Guard:         g,
		Matcher:       chain,
		Feedback:      triage.NewTracker(),
		Recorder:      events,
		Logger:        logger,
		ResponseDelay: time.Duration(cfg.Triage.ResponseDelaySeconds) * time.Second,
		HighThreshold: cfg.Triage.HighThreshold,
		LowThreshold:  cfg.Triage.LowThreshold,
		LookbackLimit: cfg.Triage.LookbackLimit,
		SkipPatterns:  merge(cfg.Triage.SkipPatterns, store.SkipPatterns()),
		TeamUsernames: merge(cfg.Triage.TeamUsernames, store.TeamUsernames()),
		Concurrency:   cfg.Triage.MaxConcurrent,
	})

	go coordinator.Run(ctx)

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics)
	}

	logger.Info("supportbot started", "version", version, "support_channel", cfg.Discord.SupportChannelID)
	return discord.Start(ctx, messageBus)
}

// buildMatcherChain assembles the strategy chain: semantic first when
// enabled, the deterministic keyword scorer always last.
func buildMatcherChain(cfg *config.Config, store *knowledge.Store, g *guard.Guard) *matcher.Chain {
	keyword := matcher.NewKeywordStrategy(store.FAQs(), logger)

	if !cfg.Matcher.SemanticEnabled {
		return matcher.NewChain(logger, keyword)
	}

	claude := provider.NewClaude(provider.ClaudeConfig{
		APIKey: cfg.Matcher.APIKey,
		Model:  cfg.Matcher.Model,
		Logger: logger,
	})
	semantic := matcher.NewSemanticStrategy(matcher.SemanticConfig{
		Completer: claude,
		Store:     store,
		Validate: func(ctx context.Context, faqID string, confidence float64) bool {
			return g.ValidateOutput(ctx, faqID, confidence, store)
		},
		MaxTokens:     cfg.Matcher.MaxContextTokens,
		MinConfidence: cfg.Matcher.MinConfidence,
		Logger:        logger,
	})
	return matcher.NewChain(logger, semantic, keyword)
}

func merge(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func serveMetrics(ctx context.Context, cfg config.MetricsConfig) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "/metrics"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(endpoint, metrics.Collector.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "port", cfg.Port, "endpoint", endpoint)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", "err", err)
	}
}

func triageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "triage [message]",
		Short: "Dry-run the triage pipeline on one message",
		Long:  "Runs the guard and matcher on the given text and prints what the bot would do, without touching Discord.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			configureLogger(cfg)
			ctx := cmd.Context()

			store := knowledge.NewStore(cfg.Knowledge.BasePath, logger)
			if err := store.LoadAll(); err != nil {
				return fmt.Errorf("knowledge base: %w", err)
			}
			g, err := guard.New(cfg.Guard, nil, logger)
			if err != nil {
				return err
			}
			chain := buildMatcherChain(cfg, store, g)

			decision := g.Admit(ctx, "triage-cli", args[0])
			text := guard.Sanitize(args[0], g.MaxLen())

			var result domain.MatchResult
			if decision.Degraded() {
				result, err = chain.MatchDeterministic(ctx, text)
			} else {
				result, err = chain.Match(ctx, text)
			}
			if err != nil {
				return fmt.Errorf("match: %w", err)
			}

			fmt.Printf("guard:      %s\n", decision.Kind)
			if decision.Pattern != "" {
				fmt.Printf("pattern:    %q\n", decision.Pattern)
			}
			fmt.Printf("sanitized:  %q\n", text)
			if result.Matched() {
				fmt.Printf("faq:        %s (%s)\n", result.FAQ.ID, result.Strategy)
				fmt.Printf("confidence: %.2f\n", result.Confidence)
			} else {
				fmt.Println("faq:        no match")
			}

			coordinator := triage.NewCoordinator(triage.CoordinatorConfig{
				Guard: g, Matcher: chain, Logger: logger,
				HighThreshold: cfg.Triage.HighThreshold,
				LowThreshold:  cfg.Triage.LowThreshold,
				Channel:       nil,
			})
			fmt.Printf("action:     %s\n", coordinator.Classify(result.Confidence))
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full support-channel history to JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			configureLogger(cfg)

			discord := channel.NewDiscord(cfg.Discord, logger)
			if err := discord.Dial(); err != nil {
				return err
			}
			defer discord.Close()

			logger.Info("fetching history", "channel", cfg.Discord.SupportChannelID)
			msgs, err := discord.ExportHistory(cmd.Context(), cfg.Discord.SupportChannelID)
			if err != nil {
				return err
			}
			if err := analyze.SaveHistory(outPath, msgs); err != nil {
				return err
			}
			logger.Info("exported", "messages", len(msgs), "path", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "support_history.json", "output file")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var historyPath string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Mine an exported history for FAQ candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			configureLogger(cfg)

			store := knowledge.NewStore(cfg.Knowledge.BasePath, logger)
			if err := store.LoadAll(); err != nil {
				return fmt.Errorf("knowledge base: %w", err)
			}

			msgs, err := analyze.LoadHistory(historyPath)
			if err != nil {
				return err
			}

			team := merge(cfg.Triage.TeamUsernames, store.TeamUsernames())
			report := analyze.New(team).Analyze(msgs)
			printReport(report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&historyPath, "history", "f", "support_history.json", "exported history file")
	return cmd
}

func printReport(r analyze.Report) {
	fmt.Printf("messages analyzed: %d\n", r.MessageCount)
	fmt.Printf("q/a pairs found:   %d\n\n", len(r.Pairs))

	fmt.Println("question types:")
	for bucket, n := range r.Buckets {
		fmt.Printf("  %-16s %d\n", bucket, n)
	}

	fmt.Println("\nFAQ candidates:")
	for i, s := range r.Suggestions {
		fmt.Printf("%d. seen %d time(s), answered by %s\n", i+1, s.Seen, strings.Join(s.Answerers, ", "))
		fmt.Printf("   Q: %s\n", s.Question)
		fmt.Printf("   A: %s\n", s.Answer)
		fmt.Printf("   keywords: %s\n", strings.Join(s.Keywords, ", "))
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. triage.highThreshold)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			val, err := lookupConfigPath(config.Redact(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(config.Redact(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

// lookupConfigPath walks a dotted JSON path (e.g. "guard.rateLimitMax")
// through the config's JSON representation.
func lookupConfigPath(cfg *config.Config, path string) (any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}

	cur := tree
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("config path %q: %q is not an object", path, part)
		}
		cur, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("config path %q not found", path)
		}
	}
	return cur, nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ObiAU/newsrag/internal/acquire"
	"github.com/ObiAU/newsrag/internal/aggregator"
	"github.com/ObiAU/newsrag/internal/ai"
	"github.com/ObiAU/newsrag/internal/cache"
	"github.com/ObiAU/newsrag/internal/config"
	"github.com/ObiAU/newsrag/internal/extract"
	"github.com/ObiAU/newsrag/internal/logging"
	"github.com/ObiAU/newsrag/internal/models"
	"github.com/ObiAU/newsrag/internal/sources"
	"github.com/ObiAU/newsrag/internal/telegram"
)

var (
	verbose  bool
	taskList string
	rawJSON  bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "newsrag",
	Short: "Answer questions about the news with cited sources",
	Long: `newsrag searches recent news for a query, scrapes the articles, groups
them by topic and writes a grounded answer that cites its sources.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		logger, err = logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, when a token is configured, the Telegram bot",
	RunE:  runServe,
}

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Answer one query and print the result",
	Example: `  newsrag ask "mars sample return mission"
  newsrag ask --task timeline,contradictions "port strike"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	askCmd.Flags().StringVarP(&taskList, "task", "t", "report", "Comma separated tasks: report, timeline, contradictions or all")
	askCmd.Flags().BoolVar(&rawJSON, "json", false, "Print the raw report as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newAggregator wires the process-wide collaborators.
func newAggregator(ctx context.Context, cacheLayer *cache.Cache) (*aggregator.Aggregator, error) {
	providers, err := ai.NewProviders(ctx, cfg.AI, logger)
	if err != nil {
		return nil, err
	}

	search, err := sources.New(cfg.Search)
	if err != nil {
		return nil, err
	}
	fetcher := extract.NewFetcher(&http.Client{}, extract.NewExtractor(cfg.Fetch.MinExtractLen), cfg.Fetch.Timeout, cfg.Fetch.UserAgent)

	return aggregator.New(cfg, aggregator.Deps{
		Providers: providers,
		Acquirer:  acquire.NewAcquirer(search, fetcher, cfg.Search.Limit, logger),
		Cache:     cacheLayer,
	}, logger), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cacheLayer := cache.New(cfg.CacheRetention)
	defer cacheLayer.Close()

	agg, err := newAggregator(ctx, cacheLayer)
	if err != nil {
		return err
	}

	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramToken, cfg.TelegramWebhookURL, agg, logger)
		if err != nil {
			return err
		}
		if cfg.TelegramWebhookURL != "" {
			agg.Handle("/webhook", bot.WebhookHandler())
		}
		if err := bot.Start(ctx); err != nil {
			return fmt.Errorf("failed to start telegram bot: %w", err)
		}
		defer bot.Wait()
	} else {
		logger.Info("no telegram token configured, bot disabled")
	}

	logger.Info("starting newsrag", zap.String("port", cfg.ServerPort))
	if err := agg.Run(ctx); err != nil {
		return err
	}
	logger.Info("newsrag stopped gracefully")
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tasks, err := models.ParseTasks(taskList)
	if err != nil {
		return err
	}

	agg, err := newAggregator(ctx, nil)
	if err != nil {
		return err
	}

	report := agg.Answer(ctx, strings.Join(args, " "), tasks)
	if rawJSON {
		return printJSON(cmd, report)
	}

	out, err := render(formatMarkdown(report, tasks))
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func render(markdown string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return renderer.Render(markdown)
}

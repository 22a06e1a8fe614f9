package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jessevdk/go-flags"

	"github.com/EternisAI/mailsift/pkg/ai"
	"github.com/EternisAI/mailsift/pkg/auth"
	"github.com/EternisAI/mailsift/pkg/config"
	"github.com/EternisAI/mailsift/pkg/events"
	"github.com/EternisAI/mailsift/pkg/logging"
	"github.com/EternisAI/mailsift/pkg/mailbox"
	gmailprovider "github.com/EternisAI/mailsift/pkg/mailbox/gmail"
	mboxprovider "github.com/EternisAI/mailsift/pkg/mailbox/mbox"
	"github.com/EternisAI/mailsift/pkg/pipeline"
	"github.com/EternisAI/mailsift/pkg/scoring"
	"github.com/EternisAI/mailsift/pkg/views"
)

type options struct {
	Max     int    `long:"max" description:"Maximum messages to analyze (default from MAX_EMAILS_FOR_ANALYSIS)"`
	Timeout int    `long:"timeout" description:"Overall pass timeout in seconds (default from PIPELINE_TIMEOUT_SECONDS)"`
	Query   string `long:"query" description:"Mailbox search query (default from FETCH_QUERY)"`
	Mbox    string `long:"mbox" description:"Analyze a local mbox export instead of the Gmail inbox"`
	JSON    bool   `long:"json" description:"Emit the full snapshot as JSON instead of the text report"`
	Verbose bool   `long:"verbose" short:"v" description:"Log at debug level"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(1)
	}

	// The report goes to stdout; logs stay on stderr so the output pipes clean.
	level := log.WarnLevel
	if opts.Verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
		TimeFormat:      time.Kitchen,
	})
	logs := logging.NewFactory(logger)

	envs, _ := config.LoadConfig(false)
	if opts.Max > 0 {
		envs.MaxEmailsForAnalysis = opts.Max
	}
	if opts.Timeout > 0 {
		envs.PipelineTimeout = time.Duration(opts.Timeout) * time.Second
	}
	if opts.Query != "" {
		envs.FetchQuery = opts.Query
	}
	if opts.Mbox != "" {
		envs.MboxPath = opts.Mbox
	}

	ctx := context.Background()

	provider, err := buildProvider(ctx, envs, logs)
	if err != nil {
		logger.Fatalf("Failed to initialize mailbox provider: %v", err)
	}

	aiService := ai.NewOpenAIService(logs.ForAI(envs.CompletionsModel), ai.Config{
		APIKey:  envs.CompletionsAPIKey,
		BaseURL: envs.CompletionsAPIURL,
		Model:   envs.CompletionsModel,
	})
	defer aiService.Close()

	cache := scoring.NewCache(0)
	scorer, err := scoring.NewScorer(aiService, cache, logs.ForScorer("llm"), envs.ScoreBatchSize)
	if err != nil {
		logger.Fatalf("Failed to build scorer: %v", err)
	}

	session := pipeline.NewSession(logs.ForPipeline("session"),
		mailbox.NewFetcher(provider, logs.ForFetcher(provider.Name())), scorer, cache,
		events.NewPublisher(nil, logs.ForNATS("progress")),
		pipeline.Options{
			Query:       envs.FetchQuery,
			MaxEmails:   envs.MaxEmailsForAnalysis,
			BatchSize:   envs.ScoreBatchSize,
			Workers:     envs.ScoreWorkers,
			PassTimeout: envs.PipelineTimeout,
		})

	snapshot, err := session.TakeSnapshot(ctx)
	if err != nil {
		logger.Fatalf("Analysis pass failed: %v", err)
	}

	if opts.JSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(snapshot); err != nil {
			logger.Fatalf("Failed to encode snapshot: %v", err)
		}
		return
	}

	fmt.Println(views.RenderReport(snapshot.Stats))
	if snapshot.Pass.Failed > 0 {
		fmt.Fprintf(os.Stderr, "Note: %d of %d messages could not be scored.\n",
			snapshot.Pass.Failed, snapshot.Pass.Normalized)
	}
}

func buildProvider(ctx context.Context, envs *config.Config, logs *logging.Factory) (mailbox.Provider, error) {
	if envs.MboxPath != "" {
		logger := logs.ForProvider("mbox")
		logger.Debug("Using mailbox export", "path", envs.MboxPath)
		return mboxprovider.NewProvider(envs.MboxPath, logger), nil
	}

	client, err := auth.NewGmailClient(ctx, envs.GoogleCredentialsPath, envs.GoogleTokenPath, logs.ForAuth("gmail"))
	if err != nil {
		return nil, err
	}
	return gmailprovider.NewProvider(ctx, client, logs.ForProvider("gmail"))
}

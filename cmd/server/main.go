// Owner: august@eternis.ai
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/EternisAI/mailsift/pkg/ai"
	"github.com/EternisAI/mailsift/pkg/auth"
	"github.com/EternisAI/mailsift/pkg/bootstrap"
	"github.com/EternisAI/mailsift/pkg/config"
	"github.com/EternisAI/mailsift/pkg/events"
	"github.com/EternisAI/mailsift/pkg/logging"
	"github.com/EternisAI/mailsift/pkg/mailbox"
	gmailprovider "github.com/EternisAI/mailsift/pkg/mailbox/gmail"
	mboxprovider "github.com/EternisAI/mailsift/pkg/mailbox/mbox"
	"github.com/EternisAI/mailsift/pkg/pipeline"
	"github.com/EternisAI/mailsift/pkg/scoring"
	"github.com/EternisAI/mailsift/pkg/server"
)

func main() {
	logger := bootstrap.NewLogger()
	logs := logging.NewFactory(logger)

	envs, _ := config.LoadConfig(true)
	logger.Debug("Config loaded")

	natsServer, err := bootstrap.StartEmbeddedNATSServer(logs.ForNATS("embedded"))
	if err != nil {
		panic(errors.Wrap(err, "Unable to start nats server"))
	}
	defer natsServer.Shutdown()

	nc, err := bootstrap.NewNatsClient(envs.NatsURL)
	if err != nil {
		panic(errors.Wrap(err, "Unable to create nats client"))
	}
	defer nc.Close()
	logger.Info("NATS client started")

	provider, err := buildProvider(context.Background(), envs, logs)
	if err != nil {
		panic(errors.Wrap(err, "Unable to initialize mailbox provider"))
	}
	logger.Info("Mailbox provider ready", "provider", provider.Name())

	aiService := ai.NewOpenAIService(logs.ForAI(envs.CompletionsModel), ai.Config{
		APIKey:  envs.CompletionsAPIKey,
		BaseURL: envs.CompletionsAPIURL,
		Model:   envs.CompletionsModel,
	})
	defer aiService.Close()

	cache := scoring.NewCache(0)
	scorer, err := scoring.NewScorer(aiService, cache, logs.ForScorer("llm"), envs.ScoreBatchSize)
	if err != nil {
		panic(errors.Wrap(err, "Unable to build scorer"))
	}

	session := pipeline.NewSession(logs.ForPipeline("session"),
		mailbox.NewFetcher(provider, logs.ForFetcher(provider.Name())), scorer, cache,
		events.NewPublisher(nc, logs.ForNATS("progress")),
		pipeline.Options{
			Query:       envs.FetchQuery,
			MaxEmails:   envs.MaxEmailsForAnalysis,
			BatchSize:   envs.ScoreBatchSize,
			Workers:     envs.ScoreWorkers,
			PassTimeout: envs.PipelineTimeout,
		})
	logger.Info("Session created", "session", session.ID())

	httpServer := &http.Server{
		Addr:    ":" + envs.ServerPort,
		Handler: server.New(session, nc, logs.ForServer("http")).Router(),
	}

	go func() {
		logger.Info("Starting HTTP server", "address", "http://localhost:"+envs.ServerPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			panic(errors.Wrap(err, "Unable to start server"))
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	<-signalChan
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
}

// buildProvider picks the mailbox backend: a local export when MBOX_PATH is
// set, the Gmail API otherwise.
func buildProvider(ctx context.Context, envs *config.Config, logs *logging.Factory) (mailbox.Provider, error) {
	if envs.MboxPath != "" {
		logger := logs.ForProvider("mbox")
		logger.Info("Using mailbox export", "path", envs.MboxPath)
		return mboxprovider.NewProvider(envs.MboxPath, logger), nil
	}

	client, err := auth.NewGmailClient(ctx, envs.GoogleCredentialsPath, envs.GoogleTokenPath, logs.ForAuth("gmail"))
	if err != nil {
		return nil, err
	}
	return gmailprovider.NewProvider(ctx, client, logs.ForProvider("gmail"))
}

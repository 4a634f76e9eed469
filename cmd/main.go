package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"dm-relay/handler"
	"dm-relay/internal/config"
	"dm-relay/internal/integrations/graph"
	"dm-relay/internal/integrations/openai"
	"dm-relay/internal/integrations/paramstore"
	"dm-relay/internal/logging"
	"dm-relay/internal/repository"
	"dm-relay/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg := config.Load()
	log, err := logging.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		slog.Error("failed to configure logging", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(log)
	if err := cfg.ValidateLambda(); err != nil {
		fatal(log, "invalid configuration", err)
	}

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fatal(log, "failed to load AWS config", err)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		fatal(log, "failed to create SSM client", err)
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	if err != nil {
		fatal(log, "failed to create session store", err)
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	openaiClient, err := openai.NewClient(ssmClient, cfg.ParamPrefix,
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithHTTPClient(httpClient),
	)
	if err != nil {
		fatal(log, "failed to create OpenAI client", err)
	}
	graphClient, err := graph.NewClient(ssmClient, cfg.ParamPrefix,
		graph.WithBaseURL(cfg.GraphBaseURL),
		graph.WithHTTPClient(httpClient),
		graph.WithMessagingProduct(cfg.MessagingProduct),
	)
	if err != nil {
		fatal(log, "failed to create Graph client", err)
	}

	verifyToken, err := paramstore.Token(ctx, ssmClient, paramstore.Path(cfg.ParamPrefix, paramstore.KeyVerifyToken))
	if err != nil {
		fatal(log, "failed to read verify token", err)
	}

	// ---- Handler ----
	completer, err := usecase.NewCompletionClient(openaiClient, cfg.OpenAIModel)
	if err != nil {
		fatal(log, "failed to create completion client", err)
	}
	relay, err := usecase.NewRelay(graphClient, log)
	if err != nil {
		fatal(log, "failed to create relay", err)
	}
	svc, err := usecase.NewConversationService(store, completer, relay,
		usecase.WithLogger(log),
		usecase.WithTypingIndicator(cfg.TypingIndicator),
		usecase.WithTypingDelay(cfg.TypingDelayMin, cfg.TypingDelayMax),
	)
	if err != nil {
		fatal(log, "failed to create conversation service", err)
	}

	h, err := handler.NewHandler(svc, verifyToken,
		handler.WithLogger(log),
		handler.WithMaxParallel(cfg.MaxParallel),
	)
	if err != nil {
		fatal(log, "failed to create handler", err)
	}

	lambda.Start(h.Handle)
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "err", err)
	os.Exit(1)
}

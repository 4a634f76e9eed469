package main

import (
	"log/slog"
	"net/http"

	"dm-relay/internal/config"
	"dm-relay/internal/integrations/graph"
	"dm-relay/internal/integrations/openai"
	"dm-relay/internal/logging"
	"dm-relay/internal/usecase"
)

func setupLogger(cfg config.Config) (*slog.Logger, error) {
	format := cfg.LogFormat
	if format == "" {
		format = "text"
	}
	log, err := logging.New(format, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	return log, nil
}

func newGraphClient(cfg config.Config) (*graph.Client, error) {
	return graph.NewClient(nil, "",
		graph.WithAccessToken(cfg.PageAccessToken),
		graph.WithBaseURL(cfg.GraphBaseURL),
		graph.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		graph.WithMessagingProduct(cfg.MessagingProduct),
	)
}

func newConversationService(cfg config.Config, log *slog.Logger, store usecase.SessionStore) (*usecase.ConversationService, error) {
	openaiClient, err := openai.NewClient(nil, "",
		openai.WithAPIKey(cfg.OpenAIAPIKey),
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
	)
	if err != nil {
		return nil, err
	}
	graphClient, err := newGraphClient(cfg)
	if err != nil {
		return nil, err
	}

	completer, err := usecase.NewCompletionClient(openaiClient, cfg.OpenAIModel)
	if err != nil {
		return nil, err
	}
	relay, err := usecase.NewRelay(graphClient, log)
	if err != nil {
		return nil, err
	}
	return usecase.NewConversationService(store, completer, relay,
		usecase.WithLogger(log),
		usecase.WithTypingIndicator(cfg.TypingIndicator),
		usecase.WithTypingDelay(cfg.TypingDelayMin, cfg.TypingDelayMax),
	)
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"eitc-assistant/handler"
	"eitc-assistant/internal/config"
	"eitc-assistant/internal/integrations/assistant"
	"eitc-assistant/internal/integrations/paramstore"
	"eitc-assistant/internal/logger"
	"eitc-assistant/internal/repository"
	"eitc-assistant/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg := config.Load()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.StateTable == "" || cfg.ParamPrefix == "" {
		log.Error("required environment variable is not set", "keys", "STATE_TABLE,PARAM_PREFIX")
		os.Exit(1)
	}

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		log.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	serviceURL := cfg.ServiceURL
	if serviceURL == "" {
		serviceURL, err = paramstore.ServiceURL(ctx, ssmClient, cfg.ParamPrefix)
		if err != nil {
			log.Error("failed to resolve service url", "err", err)
			os.Exit(1)
		}
	}

	stateClient, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	if err != nil {
		log.Error("failed to create state client", "err", err)
		os.Exit(1)
	}

	opts := append(cfg.ClientOptions(), assistant.WithLogger(log))
	api, err := assistant.NewClient(serviceURL, opts...)
	if err != nil {
		log.Error("failed to create assistant client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	relay, err := usecase.NewRelay(api, func(clientID string) (repository.KV, error) {
		return stateClient.ForClient(clientID)
	}, log)
	if err != nil {
		log.Error("failed to create relay", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(relay, log)
	if err != nil {
		log.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	log.Info("relay starting", "service_url", serviceURL, "table", cfg.StateTable)
	lambda.Start(h.Handle)
}

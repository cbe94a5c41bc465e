package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"eitc-assistant/internal/config"
	"eitc-assistant/internal/credential"
	"eitc-assistant/internal/integrations/assistant"
	"eitc-assistant/internal/locale"
	"eitc-assistant/internal/logger"
	"eitc-assistant/internal/repository"
	"eitc-assistant/internal/session"
	"eitc-assistant/internal/usecase"
)

func main() {
	cfg := config.Load()

	serviceURL := flag.String("url", cfg.ServiceURLOrDefault(), "answering service base URL")
	stateDSN := flag.String("state", cfg.StateDSN, "SQLite DSN for client state")
	lang := flag.String("lang", cfg.Language, "interface language (en, es)")
	logMode := flag.String("log", cfg.LogMode, "log mode (dev, prod)")
	flag.Parse()

	log, err := logger.New(*logMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *serviceURL, *stateDSN, *lang, log); err != nil {
		log.Error("eitc: exited with error", "err", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, serviceURL, stateDSN, lang string, log *logger.Logger) error {
	kv, err := repository.NewSQLiteKV(stateDSN)
	if err != nil {
		return err
	}
	defer kv.Close()

	sessions, err := session.New(kv)
	if err != nil {
		return err
	}
	locales, err := locale.New(kv)
	if err != nil {
		return err
	}
	if err := locales.Load(ctx); err != nil {
		return err
	}
	creds, err := credential.New(kv)
	if err != nil {
		return err
	}
	if err := creds.Load(ctx); err != nil {
		return err
	}

	opts := append(cfg.ClientOptions(),
		assistant.WithLogger(log),
		assistant.WithCredentials(creds, func(req *http.Request) {
			log.Warn("eitc: admin credential rejected", "path", req.URL.Path)
		}),
	)
	api, err := assistant.NewClient(serviceURL, opts...)
	if err != nil {
		return err
	}

	conv, err := usecase.NewConversation(api, sessions, locales, usecase.WithConversationLogger(log))
	if err != nil {
		return err
	}
	r := newREPL(os.Stdout, conv, locales)
	r.feedback, err = usecase.NewFeedbackCorrelator(api, conv, sessions, locales,
		usecase.WithNotifier(usecase.NotifierFunc(r.notice)),
		usecase.WithFeedbackLogger(log),
	)
	if err != nil {
		return err
	}
	r.calc, err = usecase.NewCalculator(api, locales, log, usecase.WithModal(conv))
	if err != nil {
		return err
	}
	r.admin, err = usecase.NewAdminConsole(api, api, creds, log)
	if err != nil {
		return err
	}
	r.admin.OnStateChange(func(s usecase.AdminState) {
		if s == usecase.AdminLoginRequired {
			r.notice(locales.T(locale.KeyLoginRequired))
		}
	})

	if lang != "" {
		if err := conv.SelectLocale(ctx, lang); err != nil {
			return err
		}
	}

	log.Info("eitc: started", "service_url", serviceURL, "locale", locales.Get())
	return r.loop(ctx, bufio.NewScanner(os.Stdin))
}

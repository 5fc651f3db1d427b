package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"callfeedback/internal/classifier"
	"callfeedback/internal/feedback"
	"callfeedback/internal/ingress"
	"callfeedback/internal/llm"
	"callfeedback/internal/logger"
	"callfeedback/internal/notify"
	"callfeedback/internal/pipeline"
	"callfeedback/internal/scriptmatch"
	"callfeedback/internal/storage"
	"callfeedback/internal/telephony"
	"callfeedback/internal/transcription"
)

const shutdownGrace = 30 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and admin HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), ctx)
		},
	}
}

func runServer(parent context.Context, cc *commandContext) error {
	cfg := cc.cfg
	log := logger.New()
	log.WithField("service", "callfeedback").Info("starting service")
	if err := cfg.Validate(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := cc.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	bucket, err := storage.OpenURL(signalCtx, cfg.BlobURL)
	if err != nil {
		return err
	}
	defer bucket.Close()

	tokens := telephony.NewClientCredentials(telephony.OAuthConfig{
		TokenURL:     cfg.PhoneTokenURL,
		ClientID:     cfg.PhoneClientID,
		ClientSecret: cfg.PhoneClientSecret,
		AccountID:    cfg.PhoneAccountID,
	})
	chat := llm.NewClient(llm.Config{APIKey: cfg.OpenAIKey, BaseURL: cfg.OpenAIBaseURL})
	stt := transcription.NewWhisper(transcription.WhisperConfig{
		APIKey:   cfg.OpenAIKey,
		BaseURL:  cfg.OpenAIBaseURL,
		Model:    cfg.STTModel,
		Language: cfg.STTLanguage,
	})

	p := &pipeline.Pipeline{
		Fetcher:     telephony.NewFetcher(tokens, bucket, nil),
		Transcriber: transcription.New(bucket, stt, cfg.ScratchDir),
		Classifier:  classifier.New(chat, cfg.LLMModelClassifier),
		Analyzer:    scriptmatch.New(db, chat, cfg.LLMModelPrimary),
		Feedback:    feedback.New(db, chat, feedback.Models{Primary: cfg.LLMModelPrimary, Light: cfg.LLMModelLight}),
		Notifier:    notify.New(cfg.DashboardBaseURL, cfg.NotifyTimeout),
		Records:     db,
	}
	server := ingress.New(ingress.Options{
		Dispatcher:      p,
		Admin:           db,
		Blobs:           bucket,
		PipelineTimeout: cfg.PipelineTimeout,
	})

	gin.SetMode(gin.ReleaseMode)
	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server terminated: %w", err)
		}
	case <-signalCtx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownGrace)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err.Error()).Warn("http shutdown")
	}
	drained := make(chan struct{})
	go func() {
		server.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Warn("exiting with deliveries still in flight")
	}
	return nil
}

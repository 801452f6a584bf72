package main

import (
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/tenantauth/internal/config"
	"github.com/nikhilbhutani/tenantauth/internal/queue"
	"github.com/nikhilbhutani/tenantauth/internal/queue/workers"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				queue.QueueMail: 10,
			},
		},
	)

	registry := queue.NewHandlersRegistry()

	emailWorker := workers.NewEmailWorker(workers.NewSMTPSender(cfg.SMTP))
	registry.Register(queue.TypeEmailSignupVerification, asynq.HandlerFunc(emailWorker.ProcessTask))
	registry.Register(queue.TypeEmailActivateAccount, asynq.HandlerFunc(emailWorker.ProcessTask))
	registry.Register(queue.TypeEmailResetPassword, asynq.HandlerFunc(emailWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", 10)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"teamtasks/internal/api"
	"teamtasks/internal/bot"
	"teamtasks/internal/cache"
	"teamtasks/internal/config"
	"teamtasks/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	client := api.NewClient(cfg.APIBaseURL, cfg.APIToken)
	store := cache.NewStore()

	taskSvc := service.NewTaskService(client, store)
	commentSvc := service.NewCommentService(client, store)
	reminderSvc := service.NewReminderService(taskSvc)

	telegramBot, err := bot.New(cfg.TelegramToken, taskSvc, commentSvc, reminderSvc, &cfg)
	if err != nil {
		log.Fatalf("bot: %v", err)
	}

	scheduler := service.NewSchedulerService(time.Local)
	if cfg.SummaryTime != "" {
		if _, err := scheduler.ScheduleDaily(cfg.SummaryTime, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := telegramBot.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("report: %v", err)
			}
		}); err != nil {
			log.Fatalf("schedule reports: %v", err)
		}
	}
	if cfg.RefreshInterval != "" {
		interval, err := time.ParseDuration(cfg.RefreshInterval)
		if err != nil {
			log.Fatalf("refresh interval: %v", err)
		}
		if _, err := scheduler.ScheduleInterval(interval, func() {
			taskSvc.RefreshGroup(cfg.GroupID)
		}); err != nil {
			log.Fatalf("schedule refresh: %v", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Re-warm the group's lists whenever the refresh job (or any mutation)
	// stales them.
	go taskSvc.WatchGroup(ctx, cfg.GroupID)

	log.Println("Team tasks bot started.")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("bot stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}

// cmd/engine/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"followup-engine/internal/audit"
	"followup-engine/internal/channel"
	"followup-engine/internal/common/aws"
	"followup-engine/internal/common/config"
	"followup-engine/internal/common/database"
	"followup-engine/internal/common/httpclient"
	"followup-engine/internal/common/logger"
	"followup-engine/internal/common/observability"
	"followup-engine/internal/engine/approval"
	"followup-engine/internal/engine/authz"
	"followup-engine/internal/engine/checklist"
	"followup-engine/internal/engine/occurrence"
	"followup-engine/internal/engine/reminder"
	"followup-engine/internal/engine/request"
	"followup-engine/internal/engine/schedule"
	"followup-engine/internal/engine/template"
	"followup-engine/internal/models"
	"followup-engine/internal/store"
	"followup-engine/internal/sweep"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zapLog := logger.New("info", "console")
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting follow-up engine...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init audit sink ---
	var sink audit.Sink = audit.NopSink{}
	if cfg.Audit.Enabled {
		var esClient *database.ESClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		sink = audit.NewESSink(esClient.Client, cfg.Database.Elasticsearch.AuditIndex, log)
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init channel senders ---
	senders := channel.Senders{}
	if cfg.Notifications.Email.Enabled || cfg.Notifications.SMS.Enabled {
		if cfg.Notifications.Email.Enabled {
			sesClient, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				zapLog.Fatal("ses client failed", zap.Error(err))
			}
			s := channel.NewEmailSender(sesClient, cfg.Notifications.Email.FromEmail)
			senders[s.Channel()] = s
		}
		if cfg.Notifications.SMS.Enabled {
			snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				zapLog.Fatal("sns client failed", zap.Error(err))
			}
			s := channel.NewSMSSender(snsClient, cfg.Notifications.SMS.SenderID)
			senders[s.Channel()] = s
		}
	}
	httpClient := httpclient.NewClient(time.Duration(cfg.Engine.DispatchTimeoutMillis) * time.Millisecond)
	if cfg.Notifications.WhatsApp.Enabled {
		s := channel.NewWhatsAppSender(httpClient, cfg.Notifications.WhatsApp.BaseURL, cfg.Notifications.WhatsApp.APIKey)
		senders[s.Channel()] = s
	}
	if cfg.Notifications.Voice.Enabled {
		s := channel.NewVoiceSender(httpClient, cfg.Notifications.Voice.BaseURL, cfg.Notifications.Voice.APIKey)
		senders[s.Channel()] = s
	}
	if cfg.Notifications.InApp.Enabled {
		s := channel.NewInAppSender(rdb.Client)
		senders[s.Channel()] = s
	}
	zapLog.Info("Channel senders initialized", zap.Int("count", len(senders)))

	// --- Wire the engine ---
	st := store.NewPostgres(pg.DB)
	lease := store.NewLease(rdb.Client, time.Duration(cfg.Engine.LeaseTTLSeconds)*time.Second)

	reminderEngine := reminder.NewEngine(st, senders, log, sink, reminder.Options{
		PreDueOffsetDays: cfg.Engine.PreDueOffsetDays,
		MaxRetries:       cfg.Engine.MaxRetries,
		DispatchTimeout:  time.Duration(cfg.Engine.DispatchTimeoutMillis) * time.Millisecond,
		Backoff:          reminder.NewBackoffPolicy(cfg.Engine.Backoff),
	})
	reminderEngine.SetLease(lease)
	reminderEngine.OnEscalation(func(_ context.Context, ev reminder.EscalationEvent) {
		log.Warn("reminder escalated to operator", map[string]interface{}{
			"reminderId": ev.ReminderID,
			"requestId":  ev.RequestID,
			"channel":    ev.Channel,
			"attempts":   ev.Attempts,
		})
	})

	requestService := request.NewService(st, reminderEngine, log, sink)
	machine := checklist.NewMachine(st, log, sink)
	machine.OnChange(requestService.HandleItemChange)

	approvalService := approval.NewService(st, log, sink)
	approvalService.OnDecision(func(ctx context.Context, ev approval.DecisionEvent) {
		if ev.Type != models.ApprovalTypeRequestItem {
			return
		}
		reviewer := reviewerActor(ev.ReviewerID)
		var err error
		switch ev.Action {
		case models.ApprovalActionApproved:
			err = machine.Review(ctx, reviewer, ev.OrgID, ev.EntityID, models.ItemStatusApproved, "", ev.Remarks)
		case models.ApprovalActionRejected:
			err = machine.Review(ctx, reviewer, ev.OrgID, ev.EntityID, models.ItemStatusRejected, "", ev.Remarks)
		case models.ApprovalActionReRequest:
			err = machine.Review(ctx, reviewer, ev.OrgID, ev.EntityID, models.ItemStatusReRequested, ev.Remarks, "")
		}
		if err != nil {
			log.Error("approval decision could not advance the item", map[string]interface{}{
				"approvalId": ev.ApprovalID,
				"itemId":     ev.EntityID,
				"error":      err.Error(),
			})
		}
	})

	if _, err := template.NewService(st, log, sink); err != nil {
		zapLog.Fatal("template service init failed", zap.Error(err))
	}

	generator := occurrence.NewGenerator(st, schedule.NewCalculator(nil), log, sink, cfg.Engine.DefaultSLADays)

	// --- Sweep runner ---
	runner := sweep.NewRunner(st, lease, log, obs, time.Duration(cfg.Engine.SweepIntervalSeconds)*time.Second)
	runner.AddJob(sweep.Job{Name: "generate-occurrences", Leased: true, Run: generator.Sweep})
	runner.AddJob(sweep.Job{Name: "mark-overdue", Leased: true, Run: generator.SweepOverdue})
	// The reminder engine leases its own due-list phase so sends never run
	// under a lease.
	runner.AddJob(sweep.Job{Name: "dispatch-reminders", Run: reminderEngine.Sweep})
	runner.Start(ctx)
	zapLog.Info("Sweep runner started",
		zap.Int("intervalSeconds", cfg.Engine.SweepIntervalSeconds),
	)

	// --- HTTP endpoints: /metrics, /healthz, pprof ---
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pg.Ping(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/debug/", http.DefaultServeMux)

	srv := &http.Server{Addr: cfg.App.ListenAddr, Handler: mux}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", cfg.App.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("http server failed", zap.Error(err))
		}
	}()

	// --- Wait for shutdown signal ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping sweeps...")
	runner.Stop()
	cancelCtx()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("http shutdown failed", zap.Error(err))
	}
	zapLog.Info("Follow-up engine stopped")
}

// reviewerActor maps an approval reviewer onto the item review policy.
func reviewerActor(id string) authz.Actor {
	return authz.Actor{ID: id, Role: authz.RoleManager}
}

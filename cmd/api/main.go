package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/contractor"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/geo"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/issue"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/media"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/notify"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/storage"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/storage/memory"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/storage/postgres"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/workflow"
	"github.com/ovaphlow/pitchfork/service-civic-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-civic-go/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-civic-go")

	policy, err := workflow.LoadPolicy(os.Getenv("WORKFLOW_POLICY_FILE"))
	if err != nil {
		sugar.Fatalf("workflow policy: %v", err)
	}

	authCfg := auth.ConfigFromEnv()
	if err := authCfg.Validate(); err != nil {
		sugar.Fatalf("auth config: %v", err)
	}

	store, pinger, closeStore := openStore(sugar)
	defer closeStore()

	m := metrics.New()
	tokens := auth.NewTokenIssuer(authCfg)
	hub := notify.NewHub(func(token string) (string, error) {
		actor, err := tokens.Parse(token)
		return actor.SubjectID, err
	}, sugar, m)
	notifier := notify.Multi{hub, notify.Log{Logger: sugar}}

	uploads := media.DiskFromEnv()
	seed := uint64(utilities.GetEnvInt("SCORE_SEED", int(time.Now().UnixNano())))
	engine := workflow.New(store, sugar,
		workflow.WithApprovalPolicy(policy.ApprovalPolicy()),
		workflow.WithScoreSource(workflow.NewRandomScoreSource(seed, policy.Scoring)),
		workflow.WithNotifier(notifier),
		workflow.WithMetrics(m),
	)
	users := user.NewUserService(store, tokens, nil, sugar)
	issues := issue.NewIssueService(store, geo.NewNominatim(geo.ConfigFromEnv(), sugar), uploads, policy.Rewards.ReportPoints, sugar)
	contractors := contractor.NewContractorService(store, sugar)

	handler := router.RegisterRoutes(router.Deps{
		Logger:      sugar,
		Tokens:      tokens,
		Users:       user.NewHandler(users, sugar),
		Issues:      issue.NewHandler(issues, sugar),
		Contractors: contractor.NewHandler(contractors, sugar),
		Workflow:    workflow.NewHandler(engine, sugar),
		Hub:         hub,
		UploadDir:   uploads.Dir,
		Metrics:     m,
		Limiter:     router.RateLimiterFromEnv(sugar),
		DB:          pinger,
	})

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              utilities.GetEnv("HTTP_ADDR", "0.0.0.0:8431"),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}

// openStore picks the backend from STORE_DRIVER. The memory store loses
// everything on exit and is meant for demos and local testing.
func openStore(sugar *zap.SugaredLogger) (storage.Store, router.Pinger, func()) {
	switch driver := utilities.GetEnv("STORE_DRIVER", "postgres"); driver {
	case "memory":
		sugar.Warn("using in-memory store; data is not persisted")
		return memory.New(), nil, func() {}
	case "postgres":
		db, err := database.Connect(database.ConfigFromEnv())
		if err != nil {
			sugar.Fatalf("db connect: %v", err)
		}
		store := postgres.New(db)
		if os.Getenv("DATABASE_AUTO_MIGRATE") == "1" {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := store.EnsureSchema(ctx); err != nil {
				sugar.Fatalf("ensure schema: %v", err)
			}
		}
		return store, db, func() { db.Close() }
	default:
		sugar.Fatalf("unknown STORE_DRIVER %q", driver)
		return nil, nil, nil
	}
}

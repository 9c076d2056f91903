package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/agent"
	"github.com/carebridge/carebridge/internal/ai"
	"github.com/carebridge/carebridge/internal/authz"
	"github.com/carebridge/carebridge/internal/config"
	"github.com/carebridge/carebridge/internal/db"
	"github.com/carebridge/carebridge/internal/embedcache"
	"github.com/carebridge/carebridge/internal/filestore"
	"github.com/carebridge/carebridge/internal/handler"
	"github.com/carebridge/carebridge/internal/job"
	"github.com/carebridge/carebridge/internal/mcp"
	"github.com/carebridge/carebridge/internal/middleware"
	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/pkg/password"
	"github.com/carebridge/carebridge/internal/pkg/timeutil"
	"github.com/carebridge/carebridge/internal/repo"
	"github.com/carebridge/carebridge/internal/schedule"
	"github.com/carebridge/carebridge/internal/service"
	"github.com/carebridge/carebridge/internal/trace"
)

const version = "0.1.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "carebridge",
		Short: "carebridge healthcare support backend",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the api server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, database, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer database.Close()
			return runServer(cfg, database)
		},
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "create the initial admin account and sample data",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, database, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer database.Close()
			return seed(context.Background(), database)
		},
	}

	resyncFactsCmd := &cobra.Command{
		Use:   "resync-facts",
		Short: "rebuild all authorization facts from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, database, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer database.Close()
			app, err := buildApp(cfg, database)
			if err != nil {
				return err
			}
			return app.syncer.FullResync(context.Background())
		},
	}

	resyncEmbeddingsCmd := &cobra.Command{
		Use:   "resync-embeddings",
		Short: "re-embed documents with stale or missing chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, database, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer database.Close()
			app, err := buildApp(cfg, database)
			if err != nil {
				return err
			}
			sweep := job.NewEmbeddingSweepJob(app.documents, app.embeddingRepo, cfg.Jobs.EmbeddingBatch)
			return sweep.Run(context.Background())
		},
	}

	rootCmd.AddCommand(runCmd, seedCmd, resyncFactsCmd, resyncEmbeddingsCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func bootstrap(configPath string) (*config.Config, *sql.DB, error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	database, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return cfg, database, nil
}

// app bundles everything the subcommands share after wiring.
type app struct {
	userRepo      *repo.UserRepo
	patientRepo   *repo.PatientRepo
	documentRepo  *repo.DocumentRepo
	embeddingRepo *repo.EmbeddingRepo

	policy authz.Client
	syncer *authz.Syncer
	tracer *trace.Logger

	auth      *service.AuthService
	users     *service.UserService
	patients  *service.PatientService
	documents *service.DocumentService
	rag       *service.RagService
	agents    *service.AgentService

	mcpClient *mcp.Client
}

func buildApp(cfg *config.Config, database *sql.DB) (*app, error) {
	ctx := context.Background()

	userRepo := repo.NewUserRepo(database)
	patientRepo := repo.NewPatientRepo(database)
	documentRepo := repo.NewDocumentRepo(database)
	embeddingRepo := repo.NewEmbeddingRepo(database)

	providerArgs := cfg.AI.Data
	if providerArgs == nil {
		providerArgs = cfg.AI
	}
	provider, err := ai.NewProvider(cfg.AI.Provider, providerArgs)
	if err != nil {
		return nil, fmt.Errorf("init ai provider: %w", err)
	}
	generator := ai.NewGenerator(provider, cfg.AI.ChatModel)
	embedder := ai.NewEmbedder(provider, cfg.AI.EmbedModel)
	if len(cfg.AI.Fallbacks) > 0 {
		genItems := []ai.GeneratorEntry{{Name: cfg.AI.Provider, Generator: generator}}
		embItems := []ai.EmbedderEntry{{Name: cfg.AI.Provider, Embedder: embedder}}
		for _, fb := range cfg.AI.Fallbacks {
			fbProvider, err := ai.NewProvider(fb.Provider, fb.Data)
			if err != nil {
				return nil, fmt.Errorf("init fallback provider %s: %w", fb.Provider, err)
			}
			chatModel := fb.ChatModel
			if chatModel == "" {
				chatModel = cfg.AI.ChatModel
			}
			embedModel := fb.EmbedModel
			if embedModel == "" {
				embedModel = cfg.AI.EmbedModel
			}
			genItems = append(genItems, ai.GeneratorEntry{Name: fb.Provider, Generator: ai.NewGenerator(fbProvider, chatModel)})
			embItems = append(embItems, ai.EmbedderEntry{Name: fb.Provider, Embedder: ai.NewEmbedder(fbProvider, embedModel)})
		}
		generator = ai.NewGroupGenerator(genItems)
		embedder = ai.NewGroupEmbedder(embItems)
	}
	embedder = embedcache.WrapLruCacheToEmbedder(embedder,
		cfg.AI.EmbedCacheSize, time.Duration(cfg.AI.EmbedCacheTTLMins)*time.Minute)

	policyTimeout := time.Duration(cfg.Policy.Timeout) * time.Second
	policy := authz.NewClient(cfg.Policy.Endpoint, cfg.Policy.APIKey, policyTimeout)
	syncer := authz.NewSyncer(policy, userRepo, patientRepo, documentRepo)
	tracer := trace.NewLogger(cfg.Trace)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}

	jwtTTL := time.Hour * time.Duration(cfg.JWTTTLHours)
	authService := service.NewAuthService(userRepo, []byte(cfg.JWTSecret), jwtTTL)
	userService := service.NewUserService(userRepo, syncer)
	patientService := service.NewPatientService(patientRepo, userRepo, policy, syncer)
	documentService := service.NewDocumentService(documentRepo, patientRepo, embeddingRepo,
		ai.NewChunker(), embedder, policy, syncer, store)
	ragService := service.NewRagService(documentRepo, embeddingRepo, userRepo,
		embedder, generator, policy, tracer, service.RagOptions{
			SimilarityThreshold: cfg.AI.SimilarityThreshold,
			MaxResults:          cfg.AI.MaxResults,
			ContextTokenBudget:  cfg.AI.ContextTokenBudget,
			ChatModelName:       cfg.AI.ChatModel,
		})

	var memory *agent.Memory
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		memory = agent.NewMemory(rdb, time.Hour*time.Duration(cfg.Agent.SessionTTL), cfg.Agent.SessionMaxMessages)
	}

	var extraTools []agent.Tool
	var mcpClient *mcp.Client
	if cfg.Agent.MCPCommand != "" {
		parts := strings.Fields(cfg.Agent.MCPCommand)
		mcpClient, err = mcp.Connect(ctx, version, parts[0], parts[1:]...)
		if err != nil {
			logutil.GetLogger(ctx).Warn("mcp connect failed, remote tools disabled",
				zap.String("command", cfg.Agent.MCPCommand), zap.Error(err))
		} else if extraTools, err = mcpClient.Tools(ctx); err != nil {
			logutil.GetLogger(ctx).Warn("mcp tool listing failed", zap.Error(err))
			extraTools = nil
		}
	}

	chatClient, err := ai.NewChatClient(providerArgs)
	if err != nil {
		return nil, fmt.Errorf("init chat client: %w", err)
	}
	chatModel := agent.NewOpenAIChatModel(chatClient, cfg.Agent.Model)
	agentService := service.NewAgentService(chatModel, cfg.Agent.Model,
		cfg.Agent.FallbackAgent, cfg.Agent.MaxIterations,
		memory, tracer, patientService, ragService, extraTools)

	return &app{
		userRepo:      userRepo,
		patientRepo:   patientRepo,
		documentRepo:  documentRepo,
		embeddingRepo: embeddingRepo,
		policy:        policy,
		syncer:        syncer,
		tracer:        tracer,
		auth:          authService,
		users:         userService,
		patients:      patientService,
		documents:     documentService,
		rag:           ragService,
		agents:        agentService,
		mcpClient:     mcpClient,
	}, nil
}

func runServer(cfg *config.Config, database *sql.DB) error {
	app, err := buildApp(cfg, database)
	if err != nil {
		return err
	}
	if app.mcpClient != nil {
		defer app.mcpClient.Close()
	}

	deps := handler.RouterDeps{
		Auth:            handler.NewAuthHandler(app.auth),
		Users:           handler.NewUserHandler(app.users),
		Patients:        handler.NewPatientHandler(app.patients),
		Documents:       handler.NewDocumentHandler(app.documents, cfg.UploadLimit),
		Chat:            handler.NewChatHandler(app.rag),
		Agent:           handler.NewAgentHandler(app.agents),
		AuthService:     app.auth,
		JWTSecret:       []byte(cfg.JWTSecret),
		AgentRateWindow: time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if !cfg.Jobs.DisableSchedules {
		jobs := []struct {
			job  schedule.Job
			spec string
		}{
			{job.NewEmbeddingSweepJob(app.documents, app.embeddingRepo, cfg.Jobs.EmbeddingBatch), cfg.Jobs.EmbeddingSpec},
			{job.NewFactResyncJob(app.syncer), cfg.Jobs.FactResyncSpec},
			{job.NewTraceFlushJob(app.tracer), cfg.Jobs.TraceFlushSpec},
		}
		for _, item := range jobs {
			if err := scheduler.AddJob(item.job, item.spec); err != nil {
				return fmt.Errorf("schedule %s: %w", item.job.Name(), err)
			}
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	logutil.GetLogger(ctx).Info("http server listening",
		zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	if err := app.tracer.Flush(context.Background()); err != nil {
		logutil.GetLogger(context.Background()).Warn("final trace flush failed", zap.Error(err))
	}
	return nil
}

func seed(ctx context.Context, database *sql.DB) error {
	userRepo := repo.NewUserRepo(database)
	exists, err := userRepo.ExistsByUsernameOrEmail(ctx, "admin", "admin@carebridge.local")
	if err != nil {
		return err
	}
	if exists {
		logutil.GetLogger(ctx).Info("admin account already present, nothing to do")
		return nil
	}
	hash, err := password.Hash("admin123!")
	if err != nil {
		return err
	}
	now := timeutil.NowUnix()
	admin := &model.User{
		ID:           "admin",
		Username:     "admin",
		Email:        "admin@carebridge.local",
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		Department:   "administration",
		IsActive:     true,
		Ctime:        now,
		Mtime:        now,
	}
	if err := userRepo.Create(ctx, admin); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("admin account created",
		zap.String("username", admin.Username))
	return nil
}

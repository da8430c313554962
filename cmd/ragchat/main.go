package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/config"
	"github.com/xxxsen/ragchat/internal/handler"
	"github.com/xxxsen/ragchat/internal/job"
	"github.com/xxxsen/ragchat/internal/middleware"
	"github.com/xxxsen/ragchat/internal/schedule"
	"github.com/xxxsen/ragchat/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ragchat",
		Short: "ragchat answers questions over a document corpus",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json or config.yaml")

	load := func() (*app, error) {
		if configPath == "" {
			return nil, fmt.Errorf("--config is required")
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
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
		return buildApp(cfg)
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run ragchat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(a)
		},
	}

	var location, indexName string
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "rebuild the index from a corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()
			if location == "" {
				location = a.cfg.Corpus.Location
			}
			if indexName == "" {
				indexName = a.cfg.RAG.IndexName
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			report, err := a.indexer.Reindex(ctx, location, indexName)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	indexCmd.Flags().StringVar(&location, "location", "", "corpus location, defaults to corpus.location")
	indexCmd.Flags().StringVar(&indexName, "index", "", "index name, defaults to rag.index_name")

	var sessionID string
	askCmd := &cobra.Command{
		Use:   "ask",
		Short: "chat with the assistant on the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			return chatLoop(cmd.Context(), a.chat, sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	askCmd.Flags().StringVar(&sessionID, "session", "", "session id, a new one by default")

	rootCmd.AddCommand(runCmd, indexCmd, askCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func chatLoop(ctx context.Context, chat *service.ChatService, sessionID string, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Fprintf(out, "session %s, type \"exit\" to quit\n", sessionID)
	for _, example := range chat.Examples() {
		fmt.Fprintf(out, "  e.g. %s\n", example)
	}
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		message := strings.TrimSpace(scanner.Text())
		switch message {
		case "":
			continue
		case "exit", "quit":
			chat.EndSession(sessionID)
			return nil
		}
		answer, err := chat.Ask(ctx, sessionID, message)
		if err != nil {
			logutil.GetLogger(ctx).Debug("ask failed", zap.String("session_id", sessionID), zap.Error(err))
			fmt.Fprintln(out, service.UserMessage(err))
			continue
		}
		fmt.Fprintln(out, answer.Text)
	}
}

func runServer(a *app) error {
	cfg := a.cfg
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("db_path", cfg.DBPath),
		zap.String("vector_index", cfg.VectorIndex.Type),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	reindexJob := job.NewReindexJob(a.indexer, cfg.Corpus.Location, cfg.RAG.IndexName)
	if err := scheduler.AddJob(reindexJob, cfg.Corpus.ReindexCron); err != nil {
		return fmt.Errorf("schedule reindex: %w", err)
	}
	if cfg.AI.DBCache && cfg.Schedule.EmbeddingCacheCleanupCron != "" {
		cleanup := job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.Schedule.EmbeddingCacheMaxAgeDays)
		if err := scheduler.AddJob(cleanup, cfg.Schedule.EmbeddingCacheCleanupCron); err != nil {
			return fmt.Errorf("schedule embedding cache cleanup: %w", err)
		}
	}
	scheduler.Start(ctx)
	// cancel in-flight runs before waiting on them
	defer func() {
		stop()
		scheduler.Stop()
	}()

	if cfg.Corpus.Location != "" {
		exists, err := a.indexer.Exists(ctx, cfg.RAG.IndexName)
		if err != nil {
			return fmt.Errorf("check index: %w", err)
		}
		if !exists {
			logutil.GetLogger(ctx).Info("index missing, building from corpus", zap.String("location", cfg.Corpus.Location))
			if err := scheduler.Trigger(reindexJob.Name()); err != nil {
				return err
			}
		}
	}

	deps := handler.RouterDeps{
		Chat:            handler.NewChatHandler(a.chat),
		Index:           handler.NewIndexHandler(a.indexer, cfg.Corpus.Location, cfg.RAG.IndexName),
		RateLimit:       cfg.RateLimit.Limit,
		RateLimitWindow: time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

// Package serve implements the "serve" cobra subcommand: it loads
// configuration, wires the TreeStore/authz/subscription/process stack,
// and runs the HTTP+WebSocket transport until interrupted. Grounded on
// the teacher's internal/interfaces/cli/server.NewCommand/run.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vssbroker/internal/httpapi"
	"vssbroker/internal/infrastructure/config"
	"vssbroker/internal/shared/logger"
	"vssbroker/internal/vss/authz"
	"vssbroker/internal/vss/process"
	"vssbroker/internal/vss/publish/mqttpublish"
	"vssbroker/internal/vss/publish/redismirror"
	"vssbroker/internal/vss/subscribe"
	"vssbroker/internal/vss/transport/wsserver"
	"vssbroker/internal/vss/tree"

	"github.com/redis/go-redis/v9"
)

var (
	env        string
	configPath string
)

// NewCommand builds the "serve" subcommand.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the signal broker",
		Long:  `Start the VSS signal broker's WebSocket and HTTP transports.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (optional)")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(env, configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Server.Mode = mapEnvToGinMode(env)

	if err := logger.Init(&cfg.Logger); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	log := logger.NewLogger()
	log.Infow("starting signal broker", "environment", env)

	overlays, err := tree.ListOverlayFiles(cfg.Dataset.OverlayDir)
	if err != nil {
		log.Fatalw("failed to list overlays", "error", err)
	}
	store, err := tree.New(cfg.Dataset.SpecFile, overlays)
	if err != nil {
		log.Fatalw("failed to load VSS tree", "error", err)
	}

	verifier, err := authz.LoadTokenVerifier(cfg.Auth.JWTPublicKeyFile)
	if err != nil {
		log.Fatalw("failed to build token verifier", "error", err)
	}

	access := authz.NewAccessChecker(store)
	registry := authz.NewRegistry()

	engine := subscribe.New(store, access, nil, log, cfg.Subscription.QueueCapacity)

	if cfg.MQTT.Enabled {
		pub, err := mqttpublish.New(mqttpublish.Config{
			ClientID:  cfg.MQTT.ClientID,
			Broker:    cfg.MQTT.BrokerURL,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			Keepalive: 60 * time.Second,
			QoS:       cfg.MQTT.QoS,
			Prefix:    cfg.MQTT.TopicPrefix,
		}, log)
		if err != nil {
			log.Errorw("failed to connect MQTT publisher, continuing without it", "error", err)
		} else {
			engine.AddPublisher(pub)
			defer pub.Close()
		}
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		engine.AddPublisher(redismirror.New(client, redismirror.Config{KeyPrefix: "vssbroker:signal:"}, log))
		defer client.Close()
	}

	proc := process.New(store, access, verifier, registry, engine, log)
	ws := wsserver.New(proc, engine, registry, log)
	engine.SetServer(ws)

	engine.RunInBackground()
	defer engine.Stop()

	router := httpapi.NewRouter(ws, cfg.Server.AllowedOrigins, cfg.Server.Mode, log)
	router.Start(cfg.Server.GetAddr())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down", zap.String("reason", "signal received"))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := router.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
		return err
	}

	log.Info("server exited gracefully")
	return nil
}

func mapEnvToGinMode(environment string) string {
	switch environment {
	case "production", "prod", "release":
		return "release"
	case "test", "testing":
		return "test"
	default:
		return "debug"
	}
}

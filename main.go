package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slighter12/ae-bridge-go/composition"
	"github.com/slighter12/ae-bridge-go/config"
	"github.com/slighter12/ae-bridge-go/host"
	"github.com/slighter12/ae-bridge-go/hostscript"
	"github.com/slighter12/ae-bridge-go/logger"
	"github.com/slighter12/ae-bridge-go/runtimebridge"
	"github.com/slighter12/ae-bridge-go/supervisor"
	"github.com/slighter12/ae-bridge-go/transport/http"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath, err := config.ResolveConfigPath()
	if err != nil {
		log.Fatalf("Failed to resolve config path: %+v", err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %+v", err)
	}

	level := logger.GetLevelFromString(cfg.Logging.Level)
	if cfg.Server.Debug {
		level = logger.GetLevelFromString("debug")
	}
	if err := logger.Init(level, logger.Format(cfg.Logging.Format), cfg.Logging.Path); err != nil {
		log.Fatalf("Failed to initialize logger: %+v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Bridge stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	group, ctx := errgroup.WithContext(ctx)

	var (
		surface host.Surface
		broker  *runtimebridge.EvalBroker
	)
	switch cfg.Host.Mode {
	case config.HostModeFixture:
		source := composition.NewFileSource(cfg.Host.FixturePath)
		if _, err := source.Active(); err != nil {
			logger.Warn("Composition fixture not loaded", "path", cfg.Host.FixturePath, "error", err)
		}
		if cfg.Host.WatchFixture {
			group.Go(func() error { return source.Watch(ctx, nil) })
		}
		surface = hostscript.New(source)
	default:
		broker = runtimebridge.NewEvalBroker(cfg.EvalTimeout())
		surface = host.NewRelaySurface(broker, cfg.Host.ScriptPath)
	}

	server := http.NewServer(cfg, surface, broker)
	group.Go(server.Start)

	companion := supervisor.New(supervisor.Options{
		Module:    cfg.Companion.Module,
		Port:      cfg.Companion.Port,
		BridgeURL: cfg.BridgeURL(),
		Dir:       cfg.Companion.ProjectDir,
	})
	if cfg.Companion.Enabled {
		projectDir := cfg.Companion.ProjectDir
		if projectDir == "" {
			projectDir, _ = os.Getwd()
		}
		// Launch failures are logged by the supervisor; the bridge keeps serving.
		_ = companion.Launch(supervisor.Candidates(supervisor.EnvFromOS(cfg.Companion.Interpreter, projectDir)))
	}

	group.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down bridge")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := companion.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Companion shutdown incomplete", "error", err)
		}
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

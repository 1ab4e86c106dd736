package main

import (
	"context"
	"log"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"historydb/internal/app"
	"historydb/pkg/config"
	"historydb/pkg/logger"
	"historydb/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var version = "dev"

func main() {
	_ = godotenv.Load(".env")
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Flags explicitly set win over env/config.
	if setFlags["addr"] && addrVal != "" {
		if host, port, ok := strings.Cut(addrVal, ":"); ok {
			cfg.Server.Address = host
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = p
			}
		}
	}
	if setFlags["db"] && dbVal != "" {
		cfg.Server.DBPath = dbVal
	}

	logger.InitWithLevel(cfg.Logging.Level)
	defer logger.Sync()

	a, err := app.New(cfg, version)
	if err != nil {
		shutdown.Abort("startup failed", err, cfg.Server.DBPath, 0)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server exited", err, cfg.Server.DBPath, 0)
	}
}

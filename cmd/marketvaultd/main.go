package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"marketvault/config"
	"marketvault/core"
	"marketvault/core/types"
	"marketvault/observability/logging"
	"marketvault/rpc"
	"marketvault/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("marketvaultd", cfg.NetworkName)

	owner := types.ZeroAddress
	if strings.TrimSpace(cfg.OwnerAddress) != "" {
		owner, err = types.ParseAddress(cfg.OwnerAddress)
		if err != nil {
			logger.Error("invalid owner address", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("open state database", slog.String("dataDir", cfg.DataDir), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	node, err := core.NewNode(db, owner, cfg.SeedCurrencies, core.WithLogger(logger))
	if err != nil {
		logger.Error("open market node", slog.String("error", err.Error()))
		os.Exit(1)
	}

	server := rpc.NewServer(node, rpc.WithLogger(logger))
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

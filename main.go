package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/spf13/viper"

	"github.com/quality-dot/solar-panel-production-tracking-sub010/journal"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/repository"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/server"
	service_registry "github.com/quality-dot/solar-panel-production-tracking-sub010/srvreg"
	"github.com/quality-dot/solar-panel-production-tracking-sub010/workflow"
)

var (
	homeDir      string
	httpPort     string
	postgresHost string
)

func init() {
	flag.StringVar(&homeDir, "home", "./node-data", "Path to the node data directory")
	flag.StringVar(&httpPort, "http-port", "5000", "HTTP web server port")
	flag.StringVar(&postgresHost, "postgres-host", "tracking-postgres0:5432", "DB host address")
}

func main() {
	// Load Config
	flag.Parse()

	if homeDir == "" {
		homeDir = os.ExpandEnv("$HOME/.panel-tracking")
	}

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))

	// Optional config file overrides the flag defaults.
	engineCfg := workflow.Config{}
	viper.SetConfigFile(filepath.Join(homeDir, "config", "config.toml"))
	if err := viper.ReadInConfig(); err == nil {
		if viper.IsSet("http_port") {
			httpPort = viper.GetString("http_port")
		}
		if viper.IsSet("postgres_host") {
			postgresHost = viper.GetString("postgres_host")
		}
		engineCfg.LowStockThreshold = viper.GetInt("low_stock_threshold")
		engineCfg.DefaultCapacityLineA = viper.GetInt("pallet_capacity_line_a")
		engineCfg.DefaultCapacityLineB = viper.GetInt("pallet_capacity_line_b")
		logger.Info("Loaded config file", "path", viper.ConfigFileUsed())
	}

	// Connect Postgresql DB
	dsn := fmt.Sprintf("postgresql://postgres:postgrespassword@%s/postgres", postgresHost)
	repo := repository.NewRepository(logger)
	log.Printf("Connecting to: %s\n", dsn)
	if err := repo.ConnectDB(dsn); err != nil {
		log.Fatalf("Connecting to database: %v", err)
	}
	if err := repo.Migrate(); err != nil {
		log.Fatalf("Migrating database: %v", err)
	}
	repo.Seed()

	// Initialize the transition journal
	journalPath := filepath.Join(homeDir, "journal")
	jrnl, err := journal.Open(journalPath, logger)
	if err != nil {
		log.Fatalf("Opening journal: %v", err)
	}
	defer func() {
		if err := jrnl.Close(); err != nil {
			log.Fatalf("Closing journal: %v", err)
		}
	}()

	// Wire the workflow engine
	bus := workflow.NewBus()
	if err := bus.Subscribe("journal", jrnl.Handler()); err != nil {
		log.Fatalf("Subscribing journal: %v", err)
	}
	engine, err := workflow.NewEngine(repo, bus, logger, engineCfg)
	if err != nil {
		log.Fatalf("Creating workflow engine: %v", err)
	}

	// Initialize Service Registry
	serviceRegistry := service_registry.NewServiceRegistry(engine, jrnl, logger)
	serviceRegistry.RegisterDefaultServices()

	// Start Web Server
	webserver, err := server.NewWebServer(httpPort, logger, serviceRegistry, bus)
	if err != nil {
		log.Fatalf("Creating web server: %v", err)
	}

	err = webserver.Start()
	if err != nil {
		log.Fatalf("Starting HTTP server: %v", err)
	}

	// Wait for interrupt signal to gracefully shut down the server
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	// Create deadline to wait for server shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Shutdown the web server
	err = webserver.Shutdown(ctx)
	if err != nil {
		logger.Error("Shutting down HTTP web server", "err", err)
	}
	logger.Info("HTTP web server gracefully stopped")
}

package main

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"intertexe/backend/internal/api"
	"intertexe/backend/internal/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if err := cfg.ConfigureLogging(); err != nil {
		logrus.Fatalf("configure logging: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		logrus.Fatalf("create data directory: %v", err)
	}

	server, err := api.NewServer(api.Config{
		DBPath:         cfg.DBPath,
		FiberTablePath: cfg.FiberTablePath,
		AllowedOrigins: cfg.AllowedOrigins,
		SilentDB:       cfg.SilentDB,
	})
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}
	defer server.Close()

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"port":        cfg.Port,
		"db":          cfg.DBPath,
		"fiber_table": cfg.FiberTablePath,
	}).Info("starting intertexe backend")
	if err := router.Run(":" + cfg.Port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}

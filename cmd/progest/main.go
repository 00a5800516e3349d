package main

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"k8s.io/klog/v2"

	"github.com/acadlab/progest/dao/query"
	"github.com/acadlab/progest/internal"
	"github.com/acadlab/progest/internal/handler"
	"github.com/acadlab/progest/pkg/alert"
	"github.com/acadlab/progest/pkg/config"
	"github.com/acadlab/progest/pkg/cronjob"
)

// @title Progest API
// @version 1.0
// @description API server for the academic project portal.
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
func main() {
	// set global timezone
	time.Local = time.UTC

	backendConfig := config.GetConfig()

	// variable changes in local development
	if gin.Mode() == gin.DebugMode {
		if err := godotenv.Load(".debug.env"); err != nil {
			klog.Warningf("no .debug.env loaded: %v", err)
		}
		if be := os.Getenv("PROGEST_BE_PORT"); be != "" {
			backendConfig.ServerAddr = ":" + be
		}
	}

	db := query.GetDB()
	if err := query.Migrate(db); err != nil {
		klog.Fatalf("migrate database: %v", err)
	}

	if backendConfig.Audit.Spec != "" {
		audit := cronjob.NewAuditManager(db)
		if err := audit.Start(backendConfig.Audit.Spec); err != nil {
			klog.Fatalf("start consistency audit: %v", err)
		}
		defer audit.Stop()
	}

	backend := internal.Register(&handler.RegisterConfig{
		DB:      db,
		Alerter: alert.GetAlertMgr(),
	})

	klog.Infof("serving on %s", backendConfig.ServerAddr)
	if err := backend.R.Run(backendConfig.ServerAddr); err != nil {
		klog.Fatalf("server exited: %v", err)
	}
}

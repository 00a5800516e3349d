// Package cronjob runs the periodic consistency audit over the portal
// database. The audit is read-only: it reports drift, it never repairs.
package cronjob

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
	"k8s.io/klog/v2"
)

type AuditManager struct {
	db        *gorm.DB
	cron      *cron.Cron
	cronMutex sync.Mutex
}

func NewAuditManager(db *gorm.DB) *AuditManager {
	return &AuditManager{
		db:   db,
		cron: cron.New(cron.WithLocation(time.Local)),
	}
}

// Start schedules the audit with the given cron spec and launches the
// scheduler in its own goroutine.
func (am *AuditManager) Start(spec string) error {
	am.cronMutex.Lock()
	defer am.cronMutex.Unlock()

	_, err := am.cron.AddFunc(spec, func() {
		report, err := am.RunAudit()
		if err != nil {
			klog.Errorf("consistency audit failed: %v", err)
			return
		}
		report.Log()
	})
	if err != nil {
		return err
	}

	am.cron.Start()
	klog.Infof("consistency audit scheduled with spec %q", spec)
	return nil
}

func (am *AuditManager) Stop() {
	am.cronMutex.Lock()
	defer am.cronMutex.Unlock()
	am.cron.Stop()
}

package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/internal/resputil"
)

type MetricsMgr struct {
	name string
	db   *gorm.DB
}

func NewMetricsMgr(conf *RegisterConfig) Manager {
	return &MetricsMgr{
		name: "metrics",
		db:   conf.DB,
	}
}

func (mgr *MetricsMgr) GetName() string { return mgr.name }

func (mgr *MetricsMgr) RegisterPublic(metrics *gin.RouterGroup) {
	metrics.GET("", mgr.GetMetrics)
}

func (mgr *MetricsMgr) RegisterProtected(_ *gin.RouterGroup) {}

func (mgr *MetricsMgr) RegisterAdmin(_ *gin.RouterGroup) {}

// Custom registry so the endpoint only exposes portal gauges, not the
// default Go runtime collectors.
var registry *prometheus.Registry

var promHTTPHandler http.Handler

var projectsByStateGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "portal_projects",
		Help: "Number of projects per state",
	},
	[]string{"state"},
)

var activeMembershipsGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "portal_active_memberships_total",
		Help: "Total number of active project memberships",
	},
)

var consumableCodesGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "portal_consumable_invitation_codes_total",
		Help: "Number of invitation codes that can still be redeemed",
	},
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewMetricsMgr)
	registry = prometheus.NewRegistry()
	promHTTPHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	registry.MustRegister(projectsByStateGauge)
	registry.MustRegister(activeMembershipsGauge)
	registry.MustRegister(consumableCodesGauge)
}

// GetMetrics godoc
// @Summary Portal gauges in Prometheus exposition format
// @Tags Metrics
// @Produce plain
// @Success 200 {string} string "metrics"
// @Router /v1/metrics [get]
func (mgr *MetricsMgr) GetMetrics(c *gin.Context) {
	if err := mgr.refreshGauges(c); err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	promHTTPHandler.ServeHTTP(c.Writer, c.Request)
}

func (mgr *MetricsMgr) refreshGauges(c *gin.Context) error {
	type stateCount struct {
		State model.ProjectState
		Count int64
	}
	var counts []stateCount
	err := mgr.db.WithContext(c).Model(&model.Project{}).
		Select("state, COUNT(*) AS count").Group("state").Scan(&counts).Error
	if err != nil {
		return err
	}
	projectsByStateGauge.Reset()
	for i := range counts {
		projectsByStateGauge.WithLabelValues(counts[i].State.String()).Set(float64(counts[i].Count))
	}

	var memberships int64
	err = mgr.db.WithContext(c).Model(&model.ProjectMembership{}).
		Where("status = ?", model.MemberActive).Count(&memberships).Error
	if err != nil {
		return err
	}
	activeMembershipsGauge.Set(float64(memberships))

	var codes int64
	err = mgr.db.WithContext(c).Model(&model.InvitationCode{}).
		Where("active AND uses_so_far < max_uses").
		Where(mgr.db.Where("expires_at IS NULL").Or("expires_at > ?", time.Now())).
		Count(&codes).Error
	if err != nil {
		return err
	}
	consumableCodesGauge.Set(float64(codes))
	return nil
}

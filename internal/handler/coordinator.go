package handler

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/internal/resputil"
	"github.com/acadlab/progest/pkg/alert"
	"github.com/acadlab/progest/pkg/coordassign"
	"github.com/acadlab/progest/pkg/logutils"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewCoordinatorMgr)
}

type CoordinatorMgr struct {
	name      string
	db        *gorm.DB
	validator *coordassign.Validator
	alerter   alert.AlertInterface
}

func NewCoordinatorMgr(conf *RegisterConfig) Manager {
	return &CoordinatorMgr{
		name:      "coordinators",
		db:        conf.DB,
		validator: coordassign.NewValidator(conf.DB),
		alerter:   conf.Alerter,
	}
}

func (mgr *CoordinatorMgr) GetName() string { return mgr.name }

func (mgr *CoordinatorMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *CoordinatorMgr) RegisterProtected(_ *gin.RouterGroup) {}

func (mgr *CoordinatorMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.POST("/validate", mgr.Validate)
	g.POST("/assign", mgr.Assign)
}

type ValidateReq struct {
	CoordinatorID uint `json:"coordinatorID" binding:"required"`
	ProjectID     uint `json:"projectID" binding:"required"`
}

// Validate godoc
// @Summary Dry-run a coordinator assignment
// @Description Reports every problem with the binding without changing anything; business-rule violations come back as issues, not errors
// @Tags Coordinator
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body ValidateReq true "coordinator and project"
// @Success 200 {object} resputil.Response[coordassign.Result] "validation outcome"
// @Router /v1/admin/coordinators/validate [post]
func (mgr *CoordinatorMgr) Validate(c *gin.Context) {
	var req ValidateReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	result, err := mgr.validator.Validate(c, req.CoordinatorID, req.ProjectID)
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	resputil.Success(c, result)
}

type AssignReq struct {
	CoordinatorID uint `json:"coordinatorID" binding:"required"`
	ProjectID     uint `json:"projectID" binding:"required"`
	Force         bool `json:"force"`
}

// Assign godoc
// @Summary Assign a coordinator to a project
// @Description Refuses on blocking issues, and on warnings unless force is set; a refusal is still a 200 with Success false
// @Tags Coordinator
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body AssignReq true "coordinator, project and force flag"
// @Success 200 {object} resputil.Response[coordassign.AssignResult] "assignment outcome"
// @Router /v1/admin/coordinators/assign [post]
func (mgr *CoordinatorMgr) Assign(c *gin.Context) {
	var req AssignReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	result, err := mgr.validator.Assign(c, req.CoordinatorID, req.ProjectID, req.Force)
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}

	if result.Success {
		mgr.notifyAssigned(c, req.CoordinatorID, req.ProjectID)
	}
	resputil.Success(c, result)
}

func (mgr *CoordinatorMgr) notifyAssigned(c *gin.Context, coordinatorID, projectID uint) {
	var coordinator model.User
	if err := mgr.db.WithContext(c).First(&coordinator, coordinatorID).Error; err != nil {
		return
	}
	var project model.Project
	if err := mgr.db.WithContext(c).First(&project, projectID).Error; err != nil {
		return
	}
	if err := mgr.alerter.CoordinatorAssigned(c, &coordinator, &project); err != nil {
		logutils.Log.Errorf("notify coordinator %s: %v", coordinator.Name, err)
	}
}

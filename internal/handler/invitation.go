package handler

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/internal/resputil"
	"github.com/acadlab/progest/internal/util"
	"github.com/acadlab/progest/pkg/alert"
	"github.com/acadlab/progest/pkg/invitation"
	"github.com/acadlab/progest/pkg/logutils"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewInvitationMgr)
}

type InvitationMgr struct {
	name     string
	db       *gorm.DB
	registry *invitation.Registry
	alerter  alert.AlertInterface
}

func NewInvitationMgr(conf *RegisterConfig) Manager {
	return &InvitationMgr{
		name:     "invitations",
		db:       conf.DB,
		registry: invitation.NewRegistry(conf.DB),
		alerter:  conf.Alerter,
	}
}

func (mgr *InvitationMgr) GetName() string { return mgr.name }

func (mgr *InvitationMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *InvitationMgr) RegisterProtected(g *gin.RouterGroup) {
	g.POST("", mgr.CreateCode)
	g.POST("/join", mgr.Join)
	g.GET("/projects/:pid", mgr.ListForProject)
}

func (mgr *InvitationMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.DELETE(":cid", mgr.DeactivateCode)
}

type (
	CreateCodeReq struct {
		ProjectID uint       `json:"projectID" binding:"required"`
		MaxUses   int        `json:"maxUses" binding:"required"`
		ExpiresAt *time.Time `json:"expiresAt"`
	}

	CodeResp struct {
		ID        uint       `json:"id"`
		ProjectID uint       `json:"projectID"`
		Code      string     `json:"code"`
		MaxUses   int        `json:"maxUses"`
		UsesSoFar int        `json:"usesSoFar"`
		ExpiresAt *time.Time `json:"expiresAt"`
		Active    bool       `json:"active"`
	}
)

func toCodeResp(code *model.InvitationCode) CodeResp {
	return CodeResp{
		ID:        code.ID,
		ProjectID: code.ProjectID,
		Code:      code.Code,
		MaxUses:   code.MaxUses,
		UsesSoFar: code.UsesSoFar,
		ExpiresAt: code.ExpiresAt,
		Active:    code.Active,
	}
}

// CreateCode godoc
// @Summary Issue an invitation code
// @Description Issues a shareable code granting project membership; maxUses must be at least 1
// @Tags Invitation
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body CreateCodeReq true "code parameters"
// @Success 200 {object} resputil.Response[CodeResp] "issued code"
// @Failure 400 {object} resputil.Response[any] "invalid maxUses"
// @Router /v1/invitations [post]
func (mgr *InvitationMgr) CreateCode(c *gin.Context) {
	token := util.GetToken(c)

	var req CreateCodeReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	code, err := mgr.registry.Create(c, req.ProjectID, token.UserID, req.MaxUses, req.ExpiresAt)
	if err != nil {
		resputil.WrapServiceError(c, err)
		return
	}
	resputil.Success(c, toCodeResp(code))
}

type JoinReq struct {
	Code string `json:"code" binding:"required"`
}

type JoinResp struct {
	Project    ProjectResp              `json:"project"`
	Membership *model.ProjectMembership `json:"membership"`
}

// Join godoc
// @Summary Join a project with an invitation code
// @Description Redeems one use of the code: project membership, area membership and primary area are all settled in one transaction
// @Tags Invitation
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body JoinReq true "the code"
// @Success 200 {object} resputil.Response[JoinResp] "joined project"
// @Failure 404 {object} resputil.Response[any] "unknown code"
// @Failure 422 {object} resputil.Response[any] "expired, exhausted or deactivated code"
// @Router /v1/invitations/join [post]
func (mgr *InvitationMgr) Join(c *gin.Context) {
	token := util.GetToken(c)

	var req JoinReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	res, err := mgr.registry.Redeem(c, req.Code, token.UserID)
	if err != nil {
		resputil.WrapServiceError(c, err)
		return
	}

	var user model.User
	if err := mgr.db.WithContext(c).First(&user, token.UserID).Error; err == nil {
		if err := mgr.alerter.ProjectJoined(c, &user, res.Project); err != nil {
			logutils.Log.Errorf("notify join of user %d: %v", token.UserID, err)
		}
	}

	resputil.Success(c, JoinResp{
		Project:    toProjectResp(res.Project),
		Membership: res.Membership,
	})
}

func (mgr *InvitationMgr) ListForProject(c *gin.Context) {
	var uriReq ProjectIDReq
	if err := c.ShouldBindUri(&uriReq); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	codes, err := mgr.registry.ListForProject(c, uriReq.ProjectID)
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}

	resp := make([]CodeResp, len(codes))
	for i := range codes {
		resp[i] = toCodeResp(&codes[i])
	}
	resputil.Success(c, resp)
}

type CodeIDReq struct {
	CodeID uint `uri:"cid" binding:"required"`
}

// DeactivateCode godoc
// @Summary Deactivate an invitation code
// @Description Turns the code off permanently; repeating the call is a no-op
// @Tags Invitation
// @Produce json
// @Security Bearer
// @Param cid path uint true "code id"
// @Success 200 {object} resputil.Response[string] "confirmation"
// @Failure 404 {object} resputil.Response[any] "unknown code"
// @Router /v1/admin/invitations/{cid} [delete]
func (mgr *InvitationMgr) DeactivateCode(c *gin.Context) {
	var uriReq CodeIDReq
	if err := c.ShouldBindUri(&uriReq); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	if err := mgr.registry.Deactivate(c, uriReq.CodeID); err != nil {
		resputil.WrapServiceError(c, err)
		return
	}

	var code model.InvitationCode
	if err := mgr.db.WithContext(c).First(&code, uriReq.CodeID).Error; err == nil {
		if err := mgr.alerter.InvitationDeactivated(c, &code); err != nil {
			logutils.Log.Errorf("notify deactivation of code %d: %v", code.ID, err)
		}
	}

	resputil.Success(c, fmt.Sprintf("code %d deactivated", uriReq.CodeID))
}

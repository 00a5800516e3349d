package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/internal/resputil"
	"github.com/acadlab/progest/internal/util"
	"github.com/acadlab/progest/pkg/tenant"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewAreaMgr)
}

type AreaMgr struct {
	name      string
	db        *gorm.DB
	directory *tenant.Directory
}

func NewAreaMgr(conf *RegisterConfig) Manager {
	return &AreaMgr{
		name:      "areas",
		db:        conf.DB,
		directory: tenant.NewDirectory(conf.DB),
	}
}

func (mgr *AreaMgr) GetName() string { return mgr.name }

func (mgr *AreaMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *AreaMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("", mgr.ListForUser)
	g.POST(":aid/transfer", mgr.TransferOwnership)
}

func (mgr *AreaMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("", mgr.ListForAdmin)
	g.POST("", mgr.CreateArea)
	g.POST(":aid/users/:uid", mgr.AssignUser)
	g.DELETE(":aid", mgr.DeactivateArea)
}

type AreaResp struct {
	ID     uint   `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func toAreaResp(area *model.WorkArea) AreaResp {
	return AreaResp{
		ID:     area.ID,
		Code:   area.Code,
		Name:   area.Name,
		Active: area.Active,
	}
}

// ListForUser godoc
// @Summary List the requester's work areas
// @Tags Area
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[[]AreaResp] "areas ordered by code"
// @Router /v1/areas [get]
func (mgr *AreaMgr) ListForUser(c *gin.Context) {
	token := util.GetToken(c)

	areas, err := mgr.directory.UserAreas(c, token.UserID)
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}

	resp := make([]AreaResp, len(areas))
	for i := range areas {
		resp[i] = toAreaResp(&areas[i])
	}
	resputil.Success(c, resp)
}

func (mgr *AreaMgr) ListForAdmin(c *gin.Context) {
	var areas []model.WorkArea
	if err := mgr.db.WithContext(c).Order("code").Find(&areas).Error; err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}

	resp := make([]AreaResp, len(areas))
	for i := range areas {
		resp[i] = toAreaResp(&areas[i])
	}
	resputil.Success(c, resp)
}

type CreateAreaReq struct {
	Name string `json:"name" binding:"required"`
	Code string `json:"code"` // optional, auto-generated when empty
}

// CreateArea godoc
// @Summary Create a work area
// @Description Creates an area; the code is auto-generated unless supplied
// @Tags Area
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body CreateAreaReq true "area data"
// @Success 200 {object} resputil.Response[AreaResp] "created area"
// @Failure 409 {object} resputil.Response[any] "duplicate code"
// @Router /v1/admin/areas [post]
func (mgr *AreaMgr) CreateArea(c *gin.Context) {
	var req CreateAreaReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	area, err := mgr.directory.CreateArea(c, req.Name, req.Code)
	if err != nil {
		resputil.WrapServiceError(c, err)
		return
	}
	resputil.Success(c, toAreaResp(area))
}

type (
	AreaUserUriReq struct {
		AreaID uint `uri:"aid" binding:"required"`
		UserID uint `uri:"uid" binding:"required"`
	}

	AssignUserReq struct {
		IsAdmin bool `json:"isAdmin"`
		IsOwner bool `json:"isOwner"`
	}
)

// AssignUser godoc
// @Summary Add a user to a work area
// @Tags Area
// @Accept json
// @Produce json
// @Security Bearer
// @Param aid path uint true "area id"
// @Param uid path uint true "user id"
// @Param data body AssignUserReq true "membership flags"
// @Success 200 {object} resputil.Response[string] "confirmation"
// @Failure 409 {object} resputil.Response[any] "already a member"
// @Router /v1/admin/areas/{aid}/users/{uid} [post]
func (mgr *AreaMgr) AssignUser(c *gin.Context) {
	var uriReq AreaUserUriReq
	if err := c.ShouldBindUri(&uriReq); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	var req AssignUserReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	err := mgr.directory.AssignUserToArea(c, uriReq.UserID, uriReq.AreaID, req.IsAdmin, req.IsOwner)
	if err != nil {
		resputil.WrapServiceError(c, err)
		return
	}
	if err := mgr.directory.SetPrimaryAreaIfEmpty(c, uriReq.UserID, uriReq.AreaID); err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	resputil.Success(c, fmt.Sprintf("added user %d to area %d", uriReq.UserID, uriReq.AreaID))
}

type (
	AreaIDReq struct {
		AreaID uint `uri:"aid" binding:"required"`
	}

	TransferOwnershipReq struct {
		NewOwnerID uint `json:"newOwnerID" binding:"required"`
	}
)

// TransferOwnership godoc
// @Summary Transfer area ownership
// @Description The requester must be the current owner; both flag flips happen in one transaction
// @Tags Area
// @Accept json
// @Produce json
// @Security Bearer
// @Param aid path uint true "area id"
// @Param data body TransferOwnershipReq true "new owner"
// @Success 200 {object} resputil.Response[string] "confirmation"
// @Failure 403 {object} resputil.Response[any] "requester is not the owner"
// @Router /v1/areas/{aid}/transfer [post]
func (mgr *AreaMgr) TransferOwnership(c *gin.Context) {
	var uriReq AreaIDReq
	if err := c.ShouldBindUri(&uriReq); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	var req TransferOwnershipReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	token := util.GetToken(c)
	err := mgr.directory.TransferOwnership(c, uriReq.AreaID, token.UserID, req.NewOwnerID)
	if err != nil {
		resputil.WrapServiceError(c, err)
		return
	}
	resputil.Success(c, fmt.Sprintf("ownership of area %d transferred to user %d", uriReq.AreaID, req.NewOwnerID))
}

func (mgr *AreaMgr) DeactivateArea(c *gin.Context) {
	var uriReq AreaIDReq
	if err := c.ShouldBindUri(&uriReq); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	if err := mgr.directory.DeactivateArea(c, uriReq.AreaID); err != nil {
		resputil.WrapServiceError(c, err)
		return
	}
	resputil.Success(c, fmt.Sprintf("area %d deactivated", uriReq.AreaID))
}

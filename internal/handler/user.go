package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/internal/payload"
	"github.com/acadlab/progest/internal/resputil"
	"github.com/acadlab/progest/internal/util"
	"github.com/acadlab/progest/pkg/logutils"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewUserMgr)
}

type UserMgr struct {
	name string
	db   *gorm.DB
}

func NewUserMgr(conf *RegisterConfig) Manager {
	return &UserMgr{
		name: "users",
		db:   conf.DB,
	}
}

func (mgr *UserMgr) GetName() string { return mgr.name }

func (mgr *UserMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *UserMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("/me", mgr.GetMe)
}

func (mgr *UserMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("", mgr.ListUsers)
	g.PUT("/:uid/role", mgr.UpdateRole)
	g.PUT("/:uid/status", mgr.UpdateStatus)
}

type UserResp struct {
	ID            uint         `json:"id"`
	Name          string       `json:"name"`
	Nickname      *string      `json:"nickname"`
	Role          model.Role   `json:"role"`
	Status        model.Status `json:"status"`
	PrimaryAreaID *uint        `json:"primaryAreaID"`
	CreatedAt     time.Time    `json:"createdAt"`
}

func toUserResp(user *model.User) UserResp {
	return UserResp{
		ID:            user.ID,
		Name:          user.Name,
		Nickname:      user.Nickname,
		Role:          user.Role,
		Status:        user.Status,
		PrimaryAreaID: user.PrimaryAreaID,
		CreatedAt:     user.CreatedAt,
	}
}

func (mgr *UserMgr) GetMe(c *gin.Context) {
	token := util.GetToken(c)

	var user model.User
	if err := mgr.db.WithContext(c).First(&user, token.UserID).Error; err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	resputil.Success(c, toUserResp(&user))
}

// ListUsers godoc
// @Summary List users, paged
// @Tags User
// @Produce json
// @Security Bearer
// @Param page_index query int true "zero-based page"
// @Param page_size query int true "rows per page"
// @Success 200 {object} resputil.Response[payload.ListResp[UserResp]] "one page, newest first"
// @Router /v1/admin/users [get]
func (mgr *UserMgr) ListUsers(c *gin.Context) {
	var req payload.ListReqQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	var count int64
	if err := mgr.db.WithContext(c).Model(&model.User{}).Count(&count).Error; err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}

	var users []model.User
	err := mgr.db.WithContext(c).Order("id DESC").
		Offset(*req.PageIndex * *req.PageSize).Limit(*req.PageSize).
		Find(&users).Error
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}

	rows := make([]UserResp, len(users))
	for i := range users {
		rows[i] = toUserResp(&users[i])
	}
	resputil.Success(c, payload.ListResp[UserResp]{Rows: rows, Count: count})
}

type (
	UserIDReq struct {
		UserID uint `uri:"uid" binding:"required"`
	}

	UpdateRoleReq struct {
		Role model.Role `json:"role" binding:"required"`
	}

	UpdateStatusReq struct {
		Status model.Status `json:"status" binding:"required"`
	}
)

func (mgr *UserMgr) UpdateRole(c *gin.Context) {
	var uriReq UserIDReq
	if err := c.ShouldBindUri(&uriReq); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	var req UpdateRoleReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	res := mgr.db.WithContext(c).Model(&model.User{}).
		Where("id = ?", uriReq.UserID).Update("role", req.Role)
	if res.Error != nil {
		resputil.Error(c, res.Error.Error(), resputil.NotSpecified)
		return
	}
	if res.RowsAffected == 0 {
		resputil.HTTPError(c, http.StatusNotFound, "User not found", resputil.NotFound)
		return
	}
	logutils.Log.Infof("user %d role set to %s", uriReq.UserID, req.Role)
	resputil.Success(c, "")
}

func (mgr *UserMgr) UpdateStatus(c *gin.Context) {
	var uriReq UserIDReq
	if err := c.ShouldBindUri(&uriReq); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	var req UpdateStatusReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	res := mgr.db.WithContext(c).Model(&model.User{}).
		Where("id = ?", uriReq.UserID).Update("status", req.Status)
	if res.Error != nil {
		resputil.Error(c, res.Error.Error(), resputil.NotSpecified)
		return
	}
	if res.RowsAffected == 0 {
		resputil.HTTPError(c, http.StatusNotFound, "User not found", resputil.NotFound)
		return
	}
	resputil.Success(c, "")
}

package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/internal/resputil"
	"github.com/acadlab/progest/internal/util"
	"github.com/acadlab/progest/pkg/access"
	"github.com/acadlab/progest/pkg/membership"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewProjectMgr)
}

type ProjectMgr struct {
	name     string
	db       *gorm.DB
	resolver *access.Resolver
	ledger   *membership.Ledger
}

func NewProjectMgr(conf *RegisterConfig) Manager {
	return &ProjectMgr{
		name:     "projects",
		db:       conf.DB,
		resolver: access.NewResolver(conf.DB),
		ledger:   membership.NewLedger(conf.DB),
	}
}

func (mgr *ProjectMgr) GetName() string { return mgr.name }

func (mgr *ProjectMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *ProjectMgr) RegisterProtected(g *gin.RouterGroup) {
	g.POST("", mgr.CreateProject)
	g.GET("", mgr.ListVisible)
	g.GET(":pid", mgr.GetProject)
	g.GET(":pid/members", mgr.ListMembers)
}

func (mgr *ProjectMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.POST(":pid/members/:uid", mgr.AddMember)
	g.DELETE(":pid/members/:uid", mgr.RemoveMember)
	g.POST(":pid/members/:uid/reactivate", mgr.ReactivateMember)
	g.PUT(":pid/state", mgr.UpdateState)
}

type (
	ProjectCreateReq struct {
		Title       string  `json:"title" binding:"required"`
		Description *string `json:"description"`
		AreaID      uint    `json:"areaID"` // defaults to the requester's primary area
		DirectorID  *uint   `json:"directorID"`
		StudentID   *uint   `json:"studentID"`
	}

	ProjectResp struct {
		ID          uint               `json:"id"`
		Title       string             `json:"title"`
		Description *string            `json:"description"`
		State       model.ProjectState `json:"state"`
		AreaID      uint               `json:"areaID"`
		DirectorID  *uint              `json:"directorID"`
		StudentID   *uint              `json:"studentID"`
	}
)

func toProjectResp(p *model.Project) ProjectResp {
	return ProjectResp{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		State:       p.State,
		AreaID:      p.AreaID,
		DirectorID:  p.DirectorID,
		StudentID:   p.StudentID,
	}
}

// CreateProject godoc
// @Summary Create a project
// @Description Creates a project in the given area (requester's primary area by default) and records the creator in the ledger
// @Tags Project
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body ProjectCreateReq true "project data"
// @Success 200 {object} resputil.Response[ProjectResp] "created project"
// @Router /v1/projects [post]
func (mgr *ProjectMgr) CreateProject(c *gin.Context) {
	token := util.GetToken(c)

	var req ProjectCreateReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	areaID := req.AreaID
	if areaID == 0 {
		if token.PrimaryAreaID == nil {
			resputil.BadRequestError(c, "no area given and requester has no primary area")
			return
		}
		areaID = *token.PrimaryAreaID
	}

	project := model.Project{
		Title:       req.Title,
		Description: req.Description,
		State:       model.ProjectProposed,
		AreaID:      areaID,
		DirectorID:  req.DirectorID,
		StudentID:   req.StudentID,
	}

	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		_, err := membership.NewLedger(tx).AddMember(c, project.ID, token.UserID, token.Role)
		return err
	})
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}

	resputil.Success(c, toProjectResp(&project))
}

// ListVisible returns the projects the requester may access. The rows
// are prefiltered in SQL and then re-checked through the resolver so
// the decision logic stays in one place.
func (mgr *ProjectMgr) ListVisible(c *gin.Context) {
	token := util.GetToken(c)

	rc, err := mgr.resolver.BuildContext(c, token.UserID, token.Role, token.PrimaryAreaID)
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}

	var projects []model.Project
	q := mgr.db.WithContext(c).Order("id DESC")
	if token.Role != model.RoleAdmin {
		q = q.Where(
			mgr.db.Where("area_id IN ?", append(rc.AreaIDs, primaryOrZero(token.PrimaryAreaID))).
				Or("director_id = ?", token.UserID).
				Or("student_id = ?", token.UserID).
				Or("id IN (?)", mgr.db.Model(&model.ProjectMembership{}).
					Select("project_id").
					Where("user_id = ? AND status = ?", token.UserID, model.MemberActive)),
		)
	}
	if err := q.Find(&projects).Error; err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}

	resp := make([]ProjectResp, 0, len(projects))
	for i := range projects {
		if mgr.resolver.CanAccessProject(c, rc, &projects[i]) {
			resp = append(resp, toProjectResp(&projects[i]))
		}
	}
	resputil.Success(c, resp)
}

func primaryOrZero(id *uint) uint {
	if id == nil {
		return 0
	}
	return *id
}

type ProjectIDReq struct {
	ProjectID uint `uri:"pid" binding:"required"`
}

// GetProject godoc
// @Summary Get one project
// @Description Access is re-resolved on every request; denial returns 403
// @Tags Project
// @Produce json
// @Security Bearer
// @Param pid path uint true "project id"
// @Success 200 {object} resputil.Response[ProjectResp] "project"
// @Failure 403 {object} resputil.Response[any] "no access"
// @Router /v1/projects/{pid} [get]
func (mgr *ProjectMgr) GetProject(c *gin.Context) {
	project, ok := mgr.resolveProject(c)
	if !ok {
		return
	}
	resputil.Success(c, toProjectResp(project))
}

func (mgr *ProjectMgr) ListMembers(c *gin.Context) {
	project, ok := mgr.resolveProject(c)
	if !ok {
		return
	}

	members, err := mgr.ledger.ActiveMembers(c, project.ID)
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	resputil.Success(c, members)
}

// resolveProject loads the project from the uri and enforces access.
// On failure it has already written the response.
func (mgr *ProjectMgr) resolveProject(c *gin.Context) (*model.Project, bool) {
	var uriReq ProjectIDReq
	if err := c.ShouldBindUri(&uriReq); err != nil {
		resputil.BadRequestError(c, err.Error())
		return nil, false
	}

	var project model.Project
	if err := mgr.db.WithContext(c).First(&project, uriReq.ProjectID).Error; err != nil {
		resputil.HTTPError(c, http.StatusNotFound, "Project not found", resputil.NotFound)
		return nil, false
	}

	token := util.GetToken(c)
	rc, err := mgr.resolver.BuildContext(c, token.UserID, token.Role, token.PrimaryAreaID)
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return nil, false
	}

	if !mgr.resolver.CanAccessProject(c, rc, &project) {
		resputil.HTTPError(c, http.StatusForbidden, "No access to the project", resputil.UserNotAllowed)
		return nil, false
	}
	return &project, true
}

type AddMemberReq struct {
	Role model.Role `json:"role" binding:"required"`
}

func (mgr *ProjectMgr) AddMember(c *gin.Context) {
	var uriReq ProjectUserUriReq
	if err := c.ShouldBindUri(&uriReq); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	var req AddMemberReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	m, err := mgr.ledger.AddMember(c, uriReq.ProjectID, uriReq.UserID, req.Role)
	if err != nil {
		resputil.WrapServiceError(c, err)
		return
	}
	resputil.Success(c, m)
}

type ProjectUserUriReq struct {
	ProjectID uint `uri:"pid" binding:"required"`
	UserID    uint `uri:"uid" binding:"required"`
}

func (mgr *ProjectMgr) RemoveMember(c *gin.Context) {
	var uriReq ProjectUserUriReq
	if err := c.ShouldBindUri(&uriReq); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	if err := mgr.ledger.RemoveMember(c, uriReq.ProjectID, uriReq.UserID); err != nil {
		resputil.WrapServiceError(c, err)
		return
	}
	resputil.Success(c, fmt.Sprintf("removed user %d from project %d", uriReq.UserID, uriReq.ProjectID))
}

func (mgr *ProjectMgr) ReactivateMember(c *gin.Context) {
	var uriReq ProjectUserUriReq
	if err := c.ShouldBindUri(&uriReq); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	if err := mgr.ledger.ReactivateMember(c, uriReq.ProjectID, uriReq.UserID); err != nil {
		resputil.WrapServiceError(c, err)
		return
	}
	resputil.Success(c, fmt.Sprintf("reactivated user %d on project %d", uriReq.UserID, uriReq.ProjectID))
}

type UpdateStateReq struct {
	State model.ProjectState `json:"state" binding:"required"`
}

func (mgr *ProjectMgr) UpdateState(c *gin.Context) {
	var uriReq ProjectIDReq
	if err := c.ShouldBindUri(&uriReq); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	var req UpdateStateReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	res := mgr.db.WithContext(c).Model(&model.Project{}).
		Where("id = ?", uriReq.ProjectID).Update("state", req.State)
	if res.Error != nil {
		resputil.Error(c, res.Error.Error(), resputil.NotSpecified)
		return
	}
	if res.RowsAffected == 0 {
		resputil.HTTPError(c, http.StatusNotFound, "Project not found", resputil.NotFound)
		return
	}
	resputil.Success(c, fmt.Sprintf("project %d is now %s", uriReq.ProjectID, req.State))
}

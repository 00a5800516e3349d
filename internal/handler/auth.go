package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	ldap "github.com/go-ldap/ldap/v3"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/internal/resputil"
	"github.com/acadlab/progest/internal/util"
	"github.com/acadlab/progest/pkg/config"
	"github.com/acadlab/progest/pkg/logutils"
	"github.com/acadlab/progest/pkg/tenant"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewAuthMgr)
}

type AuthMgr struct {
	name      string
	db        *gorm.DB
	directory *tenant.Directory
	tokenMgr  *util.TokenManager
}

func NewAuthMgr(conf *RegisterConfig) Manager {
	return &AuthMgr{
		name:      "auth",
		db:        conf.DB,
		directory: tenant.NewDirectory(conf.DB),
		tokenMgr:  util.GetTokenMgr(),
	}
}

func (mgr *AuthMgr) GetName() string { return mgr.name }

func (mgr *AuthMgr) RegisterPublic(g *gin.RouterGroup) {
	g.POST("/login", mgr.Login)
	g.POST("/refresh", mgr.RefreshToken)
	g.POST("/signup", mgr.Signup)
}

func (mgr *AuthMgr) RegisterProtected(_ *gin.RouterGroup) {}

func (mgr *AuthMgr) RegisterAdmin(_ *gin.RouterGroup) {}

type (
	LoginReq struct {
		Username   string `json:"username" binding:"required"`
		Password   string `json:"password" binding:"required"`
		AuthMethod string `json:"auth" binding:"required"` // [normal, ldap]
	}

	LoginResp struct {
		AccessToken  string      `json:"accessToken"`
		RefreshToken string      `json:"refreshToken"`
		Context      UserContext `json:"context"`
	}

	UserContext struct {
		Username      string     `json:"username"`
		Role          model.Role `json:"role"`
		PrimaryAreaID *uint      `json:"primaryAreaID"`
	}
)

const (
	AuthMethodNormal = "normal"
	AuthMethodLDAP   = "ldap"
)

// Login godoc
// @Summary User login
// @Description Verifies credentials and returns a JWT pair carrying the user's role and primary area
// @Tags Auth
// @Accept json
// @Produce json
// @Param data body LoginReq true "credentials"
// @Success 200 {object} resputil.Response[LoginResp] "token pair and user context"
// @Failure 401 {object} resputil.Response[any] "invalid credentials"
// @Router /v1/auth/login [post]
func (mgr *AuthMgr) Login(c *gin.Context) {
	var req LoginReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	l := logutils.Log.WithFields(logutils.Fields{
		"username": req.Username,
		"auth":     req.AuthMethod,
	})

	switch req.AuthMethod {
	case AuthMethodLDAP:
		if err := mgr.ldapAuth(req.Username, req.Password); err != nil {
			l.Error("invalid credentials: ", err)
			resputil.HTTPError(c, http.StatusUnauthorized, "Invalid credentials", resputil.InvalidCredentials)
			return
		}
	case AuthMethodNormal:
		if err := mgr.normalAuth(c, req.Username, req.Password); err != nil {
			l.Error("invalid credentials: ", err)
			resputil.HTTPError(c, http.StatusUnauthorized, "Invalid credentials", resputil.InvalidCredentials)
			return
		}
	default:
		l.Error("invalid auth method: ", req.AuthMethod)
		resputil.HTTPError(c, http.StatusBadRequest, "Invalid auth method", resputil.InvalidRequest)
		return
	}

	var user model.User
	if err := mgr.db.WithContext(c).Where("name = ?", req.Username).First(&user).Error; err != nil {
		resputil.HTTPError(c, http.StatusUnauthorized, "User not found", resputil.InvalidCredentials)
		return
	}
	if user.Status != model.StatusActive {
		l.Error("user is not active")
		resputil.HTTPError(c, http.StatusUnauthorized, "User is not active", resputil.InvalidCredentials)
		return
	}

	jwtMessage := util.JWTMessage{
		UserID:        user.ID,
		Username:      user.Name,
		Role:          user.Role,
		PrimaryAreaID: user.PrimaryAreaID,
	}
	accessToken, refreshToken, err := mgr.tokenMgr.CreateTokens(&jwtMessage)
	if err != nil {
		resputil.HTTPError(c, http.StatusInternalServerError, err.Error(), resputil.NotSpecified)
		return
	}
	resputil.Success(c, LoginResp{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Context: UserContext{
			Username:      user.Name,
			Role:          user.Role,
			PrimaryAreaID: user.PrimaryAreaID,
		},
	})
}

func (mgr *AuthMgr) normalAuth(c *gin.Context, username, password string) error {
	var user model.User
	if err := mgr.db.WithContext(c).Where("name = ?", username).First(&user).Error; err != nil {
		return fmt.Errorf("user not found")
	}
	if user.Password == nil {
		return fmt.Errorf("user does not have a password")
	}
	if bcrypt.CompareHashAndPassword([]byte(*user.Password), []byte(password)) != nil {
		return fmt.Errorf("wrong username or password")
	}
	return nil
}

// ldapAuth binds against the campus directory: a service bind to find
// the user's DN, then a bind as the user to check the password.
func (mgr *AuthMgr) ldapAuth(username, password string) error {
	authConfig := config.GetConfig()
	if !authConfig.LDAP.Enable {
		return fmt.Errorf("ldap login is disabled")
	}

	l, err := ldap.DialURL(authConfig.LDAP.Address)
	if err != nil {
		return err
	}
	defer l.Close()

	if err = l.Bind(authConfig.LDAP.UserName, authConfig.LDAP.Password); err != nil {
		return err
	}

	searchRequest := ldap.NewSearchRequest(
		authConfig.LDAP.SearchDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		fmt.Sprintf("(sAMAccountName=%s)", username),
		[]string{"dn"},
		nil,
	)
	searchResult, err := l.Search(searchRequest)
	if err != nil {
		return err
	}
	if len(searchResult.Entries) != 1 {
		return fmt.Errorf("user not found or too many entries returned")
	}

	return l.Bind(searchResult.Entries[0].DN, password)
}

type (
	SignupReq struct {
		Username string     `json:"username" binding:"required"`
		Password string     `json:"password" binding:"required"`
		Nickname *string    `json:"nickname"`
		Email    *string    `json:"email"`
		Role     model.Role `json:"role" binding:"required"`
	}

	SignupResp struct {
		ID     uint  `json:"id"`
		AreaID *uint `json:"areaID,omitempty"` // set when a personal area was provisioned
	}
)

// Signup godoc
// @Summary Register a new user
// @Description Creates the user; a general-admin registration also provisions an owned work area
// @Tags Auth
// @Accept json
// @Produce json
// @Param data body SignupReq true "user data"
// @Success 200 {object} resputil.Response[SignupResp] "created user id"
// @Failure 409 {object} resputil.Response[any] "username taken"
// @Router /v1/auth/signup [post]
func (mgr *AuthMgr) Signup(c *gin.Context) {
	var req SignupReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	password := string(hash)

	user := model.User{
		Name:     req.Username,
		Nickname: req.Nickname,
		Password: &password,
		Role:     req.Role,
		Status:   model.StatusActive,
		Attributes: datatypes.NewJSONType(model.UserAttribute{
			Email: req.Email,
		}),
	}
	if err := mgr.db.WithContext(c).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			resputil.HTTPError(c, http.StatusConflict, "Username already taken", resputil.Conflict)
			return
		}
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}

	resp := SignupResp{ID: user.ID}

	// A general admin gets a work area of their own right away.
	if req.Role == model.RoleAdmin {
		area, err := mgr.directory.ProvisionOwnedArea(c, user.ID, req.Username)
		if err != nil {
			logutils.Log.Errorf("provision area for %s: %v", user.Name, err)
		} else {
			resp.AreaID = &area.ID
		}
	}

	resputil.Success(c, resp)
}

type (
	RefreshReq struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}

	RefreshResp struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
)

func (mgr *AuthMgr) RefreshToken(c *gin.Context) {
	var req RefreshReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	claims, err := mgr.tokenMgr.CheckToken(req.RefreshToken)
	if err != nil {
		resputil.HTTPError(c, http.StatusUnauthorized, "Invalid refresh token", resputil.TokenExpired)
		return
	}

	accessToken, refreshToken, err := mgr.tokenMgr.CreateTokens(&claims)
	if err != nil {
		resputil.HTTPError(c, http.StatusInternalServerError, err.Error(), resputil.NotSpecified)
		return
	}

	resputil.Success(c, RefreshResp{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

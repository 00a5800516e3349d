package handler

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/acadlab/progest/pkg/alert"
)

// RegisterConfig carries the dependencies injected into every manager.
type RegisterConfig struct {
	DB      *gorm.DB
	Alerter alert.AlertInterface
}

type Register func(conf *RegisterConfig) Manager

// Registers collects the manager constructors, appended to by each
// handler file's init().
var Registers []Register

type Manager interface {
	GetName() string
	RegisterPublic(group *gin.RouterGroup)
	RegisterProtected(group *gin.RouterGroup)
	RegisterAdmin(group *gin.RouterGroup)
}

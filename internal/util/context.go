package util

import (
	"github.com/gin-gonic/gin"

	"github.com/acadlab/progest/dao/model"
)

const (
	UserIDKey      = "x-user-id"
	UsernameKey    = "x-user-name"
	RoleKey        = "x-role"
	PrimaryAreaKey = "x-primary-area"
)

func SetJWTContext(
	c *gin.Context,
	msg JWTMessage,
) {
	c.Set(UserIDKey, msg.UserID)
	c.Set(UsernameKey, msg.Username)
	c.Set(RoleKey, msg.Role)
	if msg.PrimaryAreaID != nil {
		c.Set(PrimaryAreaKey, *msg.PrimaryAreaID)
	}
}

func GetToken(ctx *gin.Context) JWTMessage {
	var msg JWTMessage
	msg.UserID = ctx.GetUint(UserIDKey)
	msg.Username = ctx.GetString(UsernameKey)

	role, _ := ctx.Get(RoleKey)
	msg.Role = role.(model.Role)

	if area, ok := ctx.Get(PrimaryAreaKey); ok {
		id := area.(uint)
		msg.PrimaryAreaID = &id
	}
	return msg
}

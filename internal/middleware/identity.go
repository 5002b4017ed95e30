package middleware

// identity.go holds the helpers that move the authenticated actor through
// the Echo context.  JWTAuth stores it; handlers and the rate limiter read
// it back with ActorFrom.

import (
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/locator-validation/internal/model"
)

const actorKey = "actor"

// ActorFrom returns the actor stored by JWTAuth, or the anonymous actor.
func ActorFrom(c echo.Context) model.Actor {
	if a, ok := c.Get(actorKey).(model.Actor); ok {
		return a
	}
	return model.Actor{}
}

// actorFromClaims maps token claims onto an actor.  The subject may be a
// string or a number; roles come from "roles" (array) and/or "role".
func actorFromClaims(cl jwt.MapClaims) model.Actor {
	var a model.Actor
	switch v := cl["sub"].(type) {
	case string:
		a.UserID = v
	case float64:
		a.UserID = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if a.UserID == "" {
		if v, ok := cl["user_id"].(string); ok {
			a.UserID = v
		}
	}
	for _, k := range []string{"username", "preferred_username", "name"} {
		if v, ok := cl[k].(string); ok && v != "" {
			a.Username = v
			break
		}
	}
	if list, ok := cl["roles"].([]any); ok {
		for _, r := range list {
			if s, ok := r.(string); ok && s != "" {
				a.Roles = append(a.Roles, strings.ToUpper(s))
			}
		}
	}
	if r, ok := cl["role"].(string); ok && r != "" && !a.HasRole(r) {
		a.Roles = append(a.Roles, strings.ToUpper(r))
	}
	return a
}

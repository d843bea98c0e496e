package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/sokohub/sokohub-backend/api/middleware"
	ordersvc "github.com/sokohub/sokohub-backend/internal/orders"
	"github.com/sokohub/sokohub-backend/pkg/enums"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
)

func actorFromRequest(r *http.Request) (ordersvc.Actor, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return ordersvc.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return ordersvc.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role := enums.ActorRole(middleware.RoleFromContext(r.Context()))
	if !role.IsValid() {
		return ordersvc.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid role")
	}
	return ordersvc.Actor{ID: userID, Role: role}, nil
}

package http

import (
	"net/http"

	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

type MeHandler struct {
	Sessions *service.SessionManager
}

// GET /v1/me
func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, err := h.Sessions.Principal(r.Context(), httpx.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userInfo(p))
}

// UsersHandler lets an administrator create accounts with any role.
type UsersHandler struct {
	Sessions *service.SessionManager
}

// POST /v1/users -> 201 UserInfo
func (h *UsersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CreateUserRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	ctx := r.Context()
	u, err := h.Sessions.Register(ctx, service.RegisterParams{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	slogx.FromContext(ctx).Info("user created by administrator", "created_user_id", u.ID)

	p, err := h.Sessions.Principal(ctx, u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, userInfo(p))
}

type RolesHandler struct {
	Roles *service.RolesService
}

// GET /v1/roles
func (h *RolesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Roles.ListAll(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := authsdk.RoleListResponse{Roles: make([]authsdk.RoleInfo, len(roles))}
	for i, role := range roles {
		resp.Roles[i] = authsdk.RoleInfo{Name: role.Name, Capabilities: role.Capabilities}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

package router

import (
	"context"

	"github.com/OmarEhab007/wiregate/internal/connection"
	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

func init() {
	registerHandlers(map[string]handlerFunc{
		"ping":                     handlePing,
		"auth.login":               handleIdentityLogin,
		"auth.logout":              handleIdentityLogout,
		"identity.login":           handleIdentityLogin,
		"identity.loginWithSecret": handleIdentityLoginWithSecret,
		"identity.logout":          handleIdentityLogout,
		"identity.whoami":          handleIdentityWhoami,
		"identity.refreshSession":  handleIdentityRefresh,

		"identity.createUser":      handleIdentityCreateUser,
		"identity.getUser":         handleIdentityGetUser,
		"identity.listUsers":       handleIdentityListUsers,
		"identity.updateUserRoles": handleIdentityUpdateUserRoles,
		"identity.deleteUser":      handleIdentityDeleteUser,

		"identity.createRole": handleIdentityCreateRole,
		"identity.deleteRole": handleIdentityDeleteRole,
		"identity.listRoles":  handleIdentityListRoles,

		"identity.grantACL":  handleIdentityGrantACL,
		"identity.revokeACL": handleIdentityRevokeACL,
		"identity.listACL":   handleIdentityListACL,

		"identity.setOwner": handleIdentitySetOwner,
		"identity.getOwner": handleIdentityGetOwner,
	})
}

// handlePing answers an explicit client "ping" request (distinct from the
// server-initiated heartbeat ping/pong pair, which carries no id).
func handlePing(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	return map[string]any{"pong": true, "serverTime": nowMs()}, nil
}

type loginParams struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleIdentityLogin backs both auth.login and identity.login: the
// gateway wires both namespaces onto the same identity manager so an
// operator may use either spelling.
func handleIdentityLogin(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p loginParams
	if err := req.Params(&p); err != nil || p.Username == "" || p.Password == "" {
		return nil, badRequest("username and password are required")
	}
	session, err := r.Identity.Login(ctx, p.Username, p.Password)
	if err != nil {
		return nil, asWireError(err)
	}
	a.SetSession(session)
	return sessionView(session), nil
}

func handleIdentityLoginWithSecret(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		Secret string `json:"secret"`
	}
	if err := req.Params(&p); err != nil || p.Secret == "" {
		return nil, badRequest("secret is required")
	}
	session, err := r.Identity.LoginWithSecret(ctx, p.Secret)
	if err != nil {
		return nil, asWireError(err)
	}
	a.SetSession(session)
	return sessionView(session), nil
}

func handleIdentityLogout(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if sess := a.Session(); sess != nil {
		_ = r.Identity.Logout(ctx, sess.Token)
	}
	a.ClearSession()
	return map[string]any{"loggedOut": true}, nil
}

func handleIdentityWhoami(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	sess := a.Session()
	if sess == nil {
		return map[string]any{"authenticated": false}, nil
	}
	out := sessionView(sess)
	out["authenticated"] = true
	return out, nil
}

func handleIdentityRefresh(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	sess := a.Session()
	if sess == nil {
		return nil, protocol.NewError(protocol.CodeUnauthorized, "authentication required")
	}
	refreshed, err := r.Identity.RefreshSession(ctx, sess.Token)
	if err != nil {
		return nil, asWireError(err)
	}
	a.SetSession(refreshed)
	return sessionView(refreshed), nil
}

func handleIdentityCreateUser(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		Username string   `json:"username"`
		Password string   `json:"password"`
		Roles    []string `json:"roles"`
	}
	if err := req.Params(&p); err != nil || p.Username == "" || p.Password == "" {
		return nil, badRequest("username and password are required")
	}
	user, err := r.Identity.CreateUser(ctx, p.Username, p.Password, p.Roles)
	if err != nil {
		return nil, asWireError(err)
	}
	return user, nil
}

func handleIdentityGetUser(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		ID string `json:"id"`
	}
	if err := req.Params(&p); err != nil || p.ID == "" {
		return nil, badRequest("id is required")
	}
	user, err := r.Identity.GetUser(ctx, p.ID)
	if err != nil {
		return nil, asWireError(err)
	}
	return user, nil
}

func handleIdentityListUsers(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	users, err := r.Identity.ListUsers(ctx)
	if err != nil {
		return nil, asWireError(err)
	}
	return users, nil
}

func handleIdentityUpdateUserRoles(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		ID    string   `json:"id"`
		Roles []string `json:"roles"`
	}
	if err := req.Params(&p); err != nil || p.ID == "" {
		return nil, badRequest("id is required")
	}
	if err := r.Identity.UpdateUserRoles(ctx, p.ID, p.Roles); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"updated": true}, nil
}

func handleIdentityDeleteUser(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		ID string `json:"id"`
	}
	if err := req.Params(&p); err != nil || p.ID == "" {
		return nil, badRequest("id is required")
	}
	if err := r.Identity.DeleteUser(ctx, p.ID); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"deleted": true}, nil
}

func handleIdentityCreateRole(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		Name string `json:"name"`
	}
	if err := req.Params(&p); err != nil || p.Name == "" {
		return nil, badRequest("name is required")
	}
	if err := r.Identity.CreateRole(ctx, p.Name); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"created": true}, nil
}

func handleIdentityDeleteRole(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		Name string `json:"name"`
	}
	if err := req.Params(&p); err != nil || p.Name == "" {
		return nil, badRequest("name is required")
	}
	if err := r.Identity.DeleteRole(ctx, p.Name); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"deleted": true}, nil
}

func handleIdentityListRoles(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	roles, err := r.Identity.ListRoles(ctx)
	if err != nil {
		return nil, asWireError(err)
	}
	return roles, nil
}

func handleIdentityGrantACL(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var entry domain.ACLEntry
	if err := req.Params(&entry); err != nil || entry.SubjectID == "" || entry.ResourceName == "" {
		return nil, badRequest("subjectId and resourceName are required")
	}
	if err := r.Identity.GrantACL(ctx, entry); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"granted": true}, nil
}

func handleIdentityRevokeACL(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		ID string `json:"id"`
	}
	if err := req.Params(&p); err != nil || p.ID == "" {
		return nil, badRequest("id is required")
	}
	if err := r.Identity.RevokeACL(ctx, p.ID); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"revoked": true}, nil
}

func handleIdentityListACL(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		SubjectType string `json:"subjectType"`
		SubjectID   string `json:"subjectId"`
	}
	if err := req.Params(&p); err != nil || p.SubjectID == "" {
		return nil, badRequest("subjectId is required")
	}
	entries, err := r.Identity.ListACL(ctx, p.SubjectType, p.SubjectID)
	if err != nil {
		return nil, asWireError(err)
	}
	return entries, nil
}

func handleIdentitySetOwner(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		ResourceType string `json:"resourceType"`
		ResourceName string `json:"resourceName"`
		UserID       string `json:"userId"`
	}
	if err := req.Params(&p); err != nil || p.ResourceName == "" || p.UserID == "" {
		return nil, badRequest("resourceName and userId are required")
	}
	if err := r.Identity.SetOwner(ctx, p.ResourceType, p.ResourceName, p.UserID); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"set": true}, nil
}

func handleIdentityGetOwner(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		ResourceType string `json:"resourceType"`
		ResourceName string `json:"resourceName"`
	}
	if err := req.Params(&p); err != nil || p.ResourceName == "" {
		return nil, badRequest("resourceName is required")
	}
	owner, ok, err := r.Identity.GetOwner(ctx, p.ResourceType, p.ResourceName)
	if err != nil {
		return nil, asWireError(err)
	}
	if !ok {
		return map[string]any{"userId": nil}, nil
	}
	return map[string]any{"userId": owner}, nil
}

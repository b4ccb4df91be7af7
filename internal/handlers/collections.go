package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jmartynas/workos-auth/internal/account"
	"github.com/jmartynas/workos-auth/internal/auth"
	"github.com/jmartynas/workos-auth/internal/errs"
	"github.com/jmartynas/workos-auth/internal/framework"
	"github.com/jmartynas/workos-auth/respond"
)

// CollectionHandler serves the endpoints attached to the users and accounts
// collections of an auth instance.
type CollectionHandler struct {
	UsersCollection    string
	AccountsCollection string
	Log                logrus.FieldLogger
}

type messageResponse struct {
	Message string `json:"message"`
}

// Logout clears every session of the current user and expires the
// collection's cookies.
func (h *CollectionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	app := framework.FromContext(r.Context())
	if app == nil {
		respond.InternalServerError("logout failed").Respond(w)
		return
	}
	if u := framework.UserFromContext(r.Context()); u != nil && u.Collection == h.UsersCollection {
		if err := app.Sessions.DeleteAllForUser(r.Context(), h.UsersCollection, u.ID); err != nil {
			h.Log.WithError(err).WithField("user_id", u.ID).Error("logout: clear sessions")
			respond.Database().Respond(w)
			return
		}
	}
	cookies, err := auth.ExpiredSessionCookies(app, h.UsersCollection)
	if err != nil {
		respond.BadRequest(err.Error()).Respond(w)
		return
	}
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
	respond.JSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully."})
}

// DeleteUser lets a user delete their own record. Linked accounts are
// removed by the collection's after-delete hooks.
func (h *CollectionHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	app, u, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respond.BadRequest("invalid user id").Respond(w)
		return
	}
	coll := app.Collection(h.UsersCollection)
	if coll == nil || !framework.Allow(coll.Access.Delete, r) || id != u.ID {
		respond.Forbidden("You are not allowed to perform this action.").Respond(w)
		return
	}

	if err := app.DeleteUser(r.Context(), h.UsersCollection, id); err != nil {
		switch {
		case errors.Is(err, framework.ErrAfterDeleteHook):
			h.Log.WithError(err).WithField("user_id", id).Warn("delete user: cleanup incomplete")
		case errors.Is(err, errs.ErrNotFound):
			respond.NotFound("not found").Respond(w)
			return
		default:
			h.Log.WithError(err).WithField("user_id", id).Error("delete user")
			respond.Database().Respond(w)
			return
		}
	}
	if err := app.Sessions.DeleteAllForUser(r.Context(), h.UsersCollection, id); err != nil {
		h.Log.WithError(err).WithField("user_id", id).Warn("delete user: sessions not cleared")
	}
	if cookies, err := auth.ExpiredSessionCookies(app, h.UsersCollection); err == nil {
		for _, c := range cookies {
			http.SetCookie(w, c)
		}
	}
	respond.JSON(w, http.StatusOK, messageResponse{Message: "Deleted successfully."})
}

type accountsResponse struct {
	Docs      []account.Account `json:"docs"`
	TotalDocs int               `json:"totalDocs"`
}

// ListAccounts returns the current user's linked accounts. Tokens are never
// serialized.
func (h *CollectionHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	app, u, ok := h.caller(w, r)
	if !ok {
		return
	}
	coll := app.Collection(h.AccountsCollection)
	if coll == nil || !framework.Allow(coll.Access.Read, r) {
		respond.Forbidden("You are not allowed to perform this action.").Respond(w)
		return
	}

	list, err := app.Accounts.ListByUser(r.Context(), h.AccountsCollection, u.ID)
	if err != nil {
		h.Log.WithError(err).WithField("user_id", u.ID).Error("list accounts")
		respond.Database().Respond(w)
		return
	}
	if list == nil {
		list = []account.Account{}
	}
	respond.JSON(w, http.StatusOK, accountsResponse{Docs: list, TotalDocs: len(list)})
}

// UnlinkAccount deletes one of the current user's accounts. Accounts of
// other users are reported as not found.
func (h *CollectionHandler) UnlinkAccount(w http.ResponseWriter, r *http.Request) {
	app, u, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respond.BadRequest("invalid account id").Respond(w)
		return
	}
	coll := app.Collection(h.AccountsCollection)
	if coll == nil || !framework.Allow(coll.Access.Delete, r) {
		respond.Forbidden("You are not allowed to perform this action.").Respond(w)
		return
	}

	a, err := app.Accounts.FindByID(r.Context(), h.AccountsCollection, id)
	if err != nil || a.UserID != u.ID {
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			h.Log.WithError(err).WithField("account_id", id).Error("unlink account")
			respond.Database().Respond(w)
			return
		}
		respond.NotFound("not found").Respond(w)
		return
	}
	if err := app.Accounts.Delete(r.Context(), h.AccountsCollection, id); err != nil {
		h.Log.WithError(err).WithField("account_id", id).Error("unlink account")
		respond.Database().Respond(w)
		return
	}
	respond.JSON(w, http.StatusOK, messageResponse{Message: "Deleted successfully."})
}

// caller resolves the App and a user of this instance's users collection,
// writing the error response when either is missing.
func (h *CollectionHandler) caller(w http.ResponseWriter, r *http.Request) (*framework.App, *framework.AuthUser, bool) {
	app := framework.FromContext(r.Context())
	u := framework.UserFromContext(r.Context())
	if app == nil || u == nil {
		respond.Unauthorized("unauthorized").Respond(w)
		return nil, nil, false
	}
	if u.Collection != h.UsersCollection {
		respond.Forbidden("You are not allowed to perform this action.").Respond(w)
		return nil, nil, false
	}
	return app, u, true
}

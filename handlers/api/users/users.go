package users

import (
	"encoding/json"
	"errors"
	"net/http"

	"docsync-server/core"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type UserRequest struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	FirebaseID string `json:"firebaseId"`
}

func (u UserRequest) valid() bool {
	return u.Email != "" && u.Name != "" && u.FirebaseID != ""
}

func (u UserRequest) user() *core.User {
	return &core.User{Email: u.Email, Name: u.Name, FirebaseID: u.FirebaseID}
}

func HandleList(store core.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := store.ListUsers(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to list users")
			http.Error(w, "Failed to fetch users", http.StatusInternalServerError)
			return
		}
		render.JSON(w, r, users)
	}
}

func HandleCreate(store core.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decode(w, r)
		if !ok {
			return
		}

		user, err := store.CreateUser(r.Context(), req.user())
		if errors.Is(err, core.ErrConflict) {
			http.Error(w, "User already exists", http.StatusConflict)
			return
		}
		if err != nil {
			logrus.WithError(err).Error("Failed to create user")
			http.Error(w, "Error creating user", http.StatusInternalServerError)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, user)
	}
}

// HandleSync creates the user on first sign-in and refreshes the profile on
// later ones.
func HandleSync(store core.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decode(w, r)
		if !ok {
			return
		}

		user, err := store.SyncUser(r.Context(), req.user())
		if err != nil {
			logrus.WithError(err).WithField("firebase_id", req.FirebaseID).Error("Failed to sync user")
			http.Error(w, "Error syncing user", http.StatusInternalServerError)
			return
		}
		render.JSON(w, r, user)
	}
}

func decode(w http.ResponseWriter, r *http.Request) (UserRequest, bool) {
	var req UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return req, false
	}
	if !req.valid() {
		http.Error(w, "email, name and firebaseId are required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

package files

import (
	"encoding/json"
	"errors"
	"net/http"

	"docsync-server/core"
	"docsync-server/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	CreateFileRequest struct {
		Name    string `json:"name"`
		Content string `json:"content"`
		OwnerID string `json:"ownerId"`
	}

	DeleteFileResponse struct {
		Message string `json:"message"`
	}

	// Notifier announces file lifecycle changes to connected clients.
	Notifier interface {
		NotifyCreated(file any) int
		NotifyDeleted(info any) int
	}
)

func HandleList(store core.FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := store.ListFiles(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to list files")
			http.Error(w, "Failed to fetch files", http.StatusInternalServerError)
			return
		}
		render.JSON(w, r, files)
	}
}

func HandleListByOwner(store core.FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := chi.URLParam(r, "ownerId")

		files, err := store.ListFilesByOwner(r.Context(), ownerID)
		if err != nil {
			logrus.WithError(err).WithField("owner_id", ownerID).Error("Failed to list files by owner")
			http.Error(w, "Failed to fetch files", http.StatusInternalServerError)
			return
		}
		render.JSON(w, r, files)
	}
}

func HandleGet(store core.FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		file, err := store.GetFile(r.Context(), id)
		if err != nil {
			writeStoreError(w, err, id, "Failed to fetch file")
			return
		}
		render.JSON(w, r, file)
	}
}

// HandleCreate stores a new file and announces it with file-created.
func HandleCreate(store core.FileStore, notifier Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateFileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logrus.WithError(err).Warn("Failed to decode file request")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.OwnerID == "" {
			if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
				req.OwnerID = claims.Subject
			}
		}
		if req.Name == "" || req.OwnerID == "" {
			http.Error(w, "name and ownerId are required", http.StatusBadRequest)
			return
		}

		file, err := store.CreateFile(r.Context(), &core.File{
			Name:    req.Name,
			Content: req.Content,
			OwnerID: req.OwnerID,
		})
		if err != nil {
			logrus.WithError(err).Error("Failed to create file")
			http.Error(w, "Failed to create file", http.StatusInternalServerError)
			return
		}

		n := notifier.NotifyCreated(file)
		logrus.WithFields(logrus.Fields{
			"file_id":    file.ID,
			"recipients": n,
		}).Debug("Announced file creation")

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, file)
	}
}

func HandleUpdate(store core.FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var update core.FileUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		file, err := store.UpdateFile(r.Context(), id, update)
		if err != nil {
			writeStoreError(w, err, id, "Failed to update file")
			return
		}
		render.JSON(w, r, file)
	}
}

// HandleDelete removes a file and announces it with file-deleted.
func HandleDelete(store core.FileStore, notifier Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		file, err := store.DeleteFile(r.Context(), id)
		if err != nil {
			writeStoreError(w, err, id, "Failed to delete file")
			return
		}

		notifier.NotifyDeleted(core.FileDeletion{ID: file.ID, OwnerID: file.OwnerID})
		render.JSON(w, r, DeleteFileResponse{Message: "File deleted successfully"})
	}
}

func writeStoreError(w http.ResponseWriter, err error, id, msg string) {
	if errors.Is(err, core.ErrNotFound) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	logrus.WithError(err).WithField("file_id", id).Error(msg)
	http.Error(w, msg, http.StatusInternalServerError)
}

package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/vitapersonal/authserver/config"
	"github.com/vitapersonal/authserver/internal/jobs"
	"github.com/vitapersonal/authserver/internal/policy"
	"github.com/vitapersonal/authserver/internal/services"
	"github.com/vitapersonal/authserver/internal/storage"
	"github.com/vitapersonal/authserver/internal/store"
)

// imageExtensions maps accepted content types to storage extensions.
var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
}

// ImageHandler handles profile image uploads. Images are accepted
// either as multipart form data or as a base64 data URI in a JSON
// body, stored in object storage, and thumbnailed asynchronously.
type ImageHandler struct {
	users      *services.UserService
	images     *storage.ImageStore
	dispatcher *jobs.Dispatcher
	uploads    config.UploadConfig
	external   config.ExternalConfig
}

func NewImageHandler(users *services.UserService, images *storage.ImageStore, dispatcher *jobs.Dispatcher, uploads config.UploadConfig, external config.ExternalConfig) *ImageHandler {
	return &ImageHandler{
		users:      users,
		images:     images,
		dispatcher: dispatcher,
		uploads:    uploads,
		external:   external,
	}
}

type imageUploadRequest struct {
	Image string `json:"image"`
}

// Upload replaces the profile image of the addressed account.
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	actor := IdentityFromContext(r.Context())

	id, err := resolveUserID(r, actor)
	if err != nil {
		if errors.Is(err, errUnauthorized) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !policy.CanAccessUser(actor, id, false) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	data, contentType, errs := h.readImage(r)
	if !errs.Empty() {
		writeValidationErrors(w, errs)
		return
	}

	ext := imageExtensions[contentType]
	key := storage.NewImageKey(ext)
	if err := h.images.Put(r.Context(), key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	user.ImageKey = key
	updated, err := h.users.Update(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	if h.uploads.ThumbnailsEnabled {
		h.dispatcher.SubmitThumbnail(r.Context(), jobs.ThumbnailJob{
			UserID:   updated.ID,
			ImageKey: key,
		})
	}

	writeJSON(w, http.StatusOK, buildUserResponse(updated, visibilityFor(actor, updated.ID), h.external))
}

// readImage extracts the image bytes from either a multipart form or
// a JSON body with a base64 data URI, validating type and size.
func (h *ImageHandler) readImage(r *http.Request) ([]byte, string, *ValidationErrors) {
	errs := NewValidationErrors()

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.uploads.MaxImageBytes); err != nil {
			errs.AddField("image", "Image", "Invalid upload.")
			return nil, "", errs
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			errs.AddField("image", "Image", "This field is required.")
			return nil, "", errs
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, h.uploads.MaxImageBytes+1))
		if err != nil {
			errs.AddField("image", "Image", "Invalid upload.")
			return nil, "", errs
		}
		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		return h.validateImage(data, contentType, errs)
	}

	var req imageUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
		errs.AddField("image", "Image", "This field is required.")
		return nil, "", errs
	}

	data, contentType, ok := decodeDataURI(req.Image)
	if !ok {
		errs.AddField("image", "Image", "Invalid image data.")
		return nil, "", errs
	}
	return h.validateImage(data, contentType, errs)
}

func (h *ImageHandler) validateImage(data []byte, contentType string, errs *ValidationErrors) ([]byte, string, *ValidationErrors) {
	if _, ok := imageExtensions[contentType]; !ok {
		errs.AddField("image", "Image", "Unsupported image type.")
		return nil, "", errs
	}
	if int64(len(data)) > h.uploads.MaxImageBytes {
		errs.AddField("image", "Image", "The image is too large.")
		return nil, "", errs
	}
	return data, contentType, errs
}

// decodeDataURI parses a "data:image/<type>;base64,<payload>" string.
func decodeDataURI(uri string) (data []byte, contentType string, ok bool) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, "", false
	}
	meta, payload, found := strings.Cut(uri[len("data:"):], ",")
	if !found {
		return nil, "", false
	}
	contentType, encoding, found := strings.Cut(meta, ";")
	if !found || encoding != "base64" {
		return nil, "", false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", false
	}
	return data, contentType, true
}

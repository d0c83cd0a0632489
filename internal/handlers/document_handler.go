package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/remote"
)

// DocumentHandler serves a remote.Store's collections over HTTP.
type DocumentHandler struct {
	store remote.Store
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(store remote.Store) *DocumentHandler {
	return &DocumentHandler{store: store}
}

// DocumentRequest is the body of a document write or claim. The id comes
// from the path.
type DocumentRequest struct {
	OwnerID   string          `json:"owner_id" binding:"required"`
	CreatedAt time.Time       `json:"created_at" binding:"required"`
	UpdatedAt time.Time       `json:"updated_at" binding:"required"`
	Data      json.RawMessage `json:"data"`
}

func (r DocumentRequest) document(id string) remote.Document {
	data := r.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	return remote.Document{
		ID:        id,
		OwnerID:   r.OwnerID,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
		Data:      data,
	}
}

// ListResponse is the body of a document listing.
type ListResponse struct {
	Documents []remote.Document `json:"documents"`
}

// ClaimResponse reports whether a claim created the document.
type ClaimResponse struct {
	Created bool `json:"created"`
}

// ListDocuments returns every document the owner holds in a collection.
// GET /collections/:collection/documents?owner_id=
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	var uri collectionURI
	if err := bindURI(c, &uri); err != nil {
		_ = c.Error(err)
		return
	}
	ownerID, err := bindOwner(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	docs, err := h.store.List(c.Request.Context(), uri.Collection, ownerID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if docs == nil {
		docs = []remote.Document{}
	}
	c.JSON(http.StatusOK, ListResponse{Documents: docs})
}

// GetDocument returns one document.
// GET /collections/:collection/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	var uri documentURI
	if err := bindURI(c, &uri); err != nil {
		_ = c.Error(err)
		return
	}

	doc, ok, err := h.store.Get(c.Request.Context(), uri.Collection, uri.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !ok {
		_ = c.Error(apperrors.ErrNotFound)
		return
	}
	if err := requireOwner(c, doc.OwnerID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// PutDocument creates or replaces a document. Writes older than the stored
// copy are acknowledged without effect.
// PUT /collections/:collection/documents/:id
func (h *DocumentHandler) PutDocument(c *gin.Context) {
	var uri documentURI
	if err := bindURI(c, &uri); err != nil {
		_ = c.Error(err)
		return
	}
	var req DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	if err := requireOwner(c, req.OwnerID); err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.store.Put(c.Request.Context(), uri.Collection, req.document(uri.ID)); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteDocument removes a document. Deleting a missing id succeeds.
// DELETE /collections/:collection/documents/:id?owner_id=
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	var uri documentURI
	if err := bindURI(c, &uri); err != nil {
		_ = c.Error(err)
		return
	}
	ownerID, err := bindOwner(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.store.Delete(c.Request.Context(), uri.Collection, uri.ID, ownerID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClaimDocument creates a document only if its id is unused.
// POST /collections/:collection/documents/:id/claim
func (h *DocumentHandler) ClaimDocument(c *gin.Context) {
	var uri documentURI
	if err := bindURI(c, &uri); err != nil {
		_ = c.Error(err)
		return
	}
	var req DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	if err := requireOwner(c, req.OwnerID); err != nil {
		_ = c.Error(err)
		return
	}

	created, err := h.store.CreateIfAbsent(c.Request.Context(), uri.Collection, req.document(uri.ID))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ClaimResponse{Created: created})
}

// Health reports whether the backing store answers.
func Health(store remote.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

package handlers

import (
	"github.com/gin-gonic/gin"

	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/middleware"
	"ledgersync/internal/validator"
)

// collectionURI binds the collection path parameter.
type collectionURI struct {
	Collection string `uri:"collection" binding:"required,collection"`
}

// documentURI binds the collection and document id path parameters.
type documentURI struct {
	Collection string `uri:"collection" binding:"required,collection"`
	ID         string `uri:"id" binding:"required,max=128"`
}

// ownerQuery binds the owner_id query parameter.
type ownerQuery struct {
	OwnerID string `form:"owner_id" binding:"required"`
}

// bindURI binds path parameters into dst. An unknown collection is reported
// as UNKNOWN_COLLECTION, anything else as INVALID_INPUT.
func bindURI(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindUri(dst); err != nil {
		if !validator.IsCollection(c.Param("collection")) {
			return apperrors.ErrUnknownCollection
		}
		return apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
	}
	return nil
}

// bindOwner binds owner_id and checks that the verified subject may act for
// it.
func bindOwner(c *gin.Context) (string, error) {
	var q ownerQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "owner_id is required")
	}
	return q.OwnerID, requireOwner(c, q.OwnerID)
}

// requireOwner checks that the verified subject may act for ownerID.
func requireOwner(c *gin.Context, ownerID string) error {
	subject, ok := middleware.Subject(c)
	if !ok {
		return apperrors.ErrUnauthenticated
	}
	if subject != ownerID {
		return apperrors.ErrUnauthorized
	}
	return nil
}

package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/middleware"
	"github.com/peerlearn/peerlearn-api/internal/models"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
	"github.com/peerlearn/peerlearn-api/pkg/response"
)

// defaultMaxUpload caps multipart files when no limit is configured.
const defaultMaxUpload = 25 << 20

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// currentUser writes 401 and returns nil when the request carries no claims.
func currentUser(c *gin.Context) *models.JWTClaims {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil
	}
	return claims
}

// idParam reads a UUID path parameter, writing 400 "Invalid <entity> ID" when malformed.
func idParam(c *gin.Context, name, entity string) (string, bool) {
	raw := c.Param(name)
	if _, err := uuid.Parse(raw); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrBadRequest, fmt.Sprintf("Invalid %s ID", entity)))
		return "", false
	}
	return raw, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Validation(err, message))
		return false
	}
	return true
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, dst interface{}, message string) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, dst, message)
}

// formFile loads the named multipart file into memory. A missing file returns nil without error.
func formFile(c *gin.Context, field string, maxBytes int64) (*dto.Attachment, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, http.StatusBadRequest, "invalid multipart form")
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxUpload
	}
	if header.Size > maxBytes {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("File exceeds the %d MB limit", maxBytes>>20))
	}
	f, err := header.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, http.StatusBadRequest, "failed to read upload")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, http.StatusBadRequest, "failed to read upload")
	}
	if int64(len(data)) > maxBytes {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("File exceeds the %d MB limit", maxBytes>>20))
	}
	return &dto.Attachment{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}

func sendFile(c *gin.Context, file *dto.ExportFile) {
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

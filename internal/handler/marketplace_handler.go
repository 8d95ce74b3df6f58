package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/middleware"
	"github.com/peerlearn/peerlearn-api/internal/models"
	"github.com/peerlearn/peerlearn-api/internal/service"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
	"github.com/peerlearn/peerlearn-api/pkg/response"
)

// MarketplaceHandler exposes the notes marketplace and wallets.
type MarketplaceHandler struct {
	service   *service.MarketplaceService
	maxUpload int64
}

// NewMarketplaceHandler constructs the handler.
func NewMarketplaceHandler(svc *service.MarketplaceService, maxUpload int64) *MarketplaceHandler {
	return &MarketplaceHandler{service: svc, maxUpload: maxUpload}
}

// CreateNote godoc
// @Summary List a note for sale
// @Tags Marketplace
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param description formData string false "Description"
// @Param subject formData string true "Subject"
// @Param category formData string true "Category"
// @Param price formData number false "Price in credits"
// @Param is_free formData bool false "Free note"
// @Param tags formData string false "Comma separated tags"
// @Param file formData file true "PDF, DOCX, DOC, PPTX or TXT"
// @Success 201 {object} response.Envelope
// @Router /marketplace/notes [post]
func (h *MarketplaceHandler) CreateNote(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	file, err := formFile(c, "file", h.maxUpload)
	if err != nil {
		response.Error(c, err)
		return
	}
	req := dto.CreateNoteRequest{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Subject:     c.PostForm("subject"),
		Category:    c.PostForm("category"),
		File:        file,
	}
	if raw := strings.TrimSpace(c.PostForm("price")); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "price must be a number"))
			return
		}
		req.Price = price
	}
	req.IsFree, _ = strconv.ParseBool(c.DefaultPostForm("is_free", "false"))
	for _, tag := range strings.Split(c.PostForm("tags"), ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			req.Tags = append(req.Tags, tag)
		}
	}
	note, err := h.service.CreateNote(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, note)
}

// ListNotes godoc
// @Summary Browse notes
// @Tags Marketplace
// @Produce json
// @Param category query string false "Category"
// @Param is_free query bool false "Only free notes"
// @Param search query string false "Search"
// @Param sort query string false "recent, popular, price_low, price_high or rating"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} response.Envelope
// @Router /marketplace/notes [get]
func (h *MarketplaceHandler) ListNotes(c *gin.Context) {
	filter := models.NoteFilter{
		Category: c.Query("category"),
		Search:   strings.TrimSpace(c.Query("search")),
		Sort:     c.DefaultQuery("sort", "recent"),
		Limit:    queryInt(c, "limit", 50),
		Offset:   queryInt(c, "offset", 0),
	}
	if raw := c.Query("is_free"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			filter.IsFree = &v
		}
	}
	notes, err := h.service.ListNotes(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notes, nil)
}

// GetNote godoc
// @Summary Note detail
// @Tags Marketplace
// @Produce json
// @Param id path string true "Note ID"
// @Success 200 {object} response.Envelope
// @Router /marketplace/notes/{id} [get]
func (h *MarketplaceHandler) GetNote(c *gin.Context) {
	id, ok := idParam(c, "id", "note")
	if !ok {
		return
	}
	var viewerID string
	if claims := claimsFromContext(c); claims != nil {
		viewerID = claims.UserID
	}
	note, err := h.service.GetNote(c.Request.Context(), id, viewerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, note, nil)
}

// MyNotes godoc
// @Summary Notes I am selling
// @Tags Marketplace
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /marketplace/notes/user/my-notes [get]
func (h *MarketplaceHandler) MyNotes(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	notes, err := h.service.MyNotes(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notes, nil)
}

// Purchase godoc
// @Summary Purchase a note
// @Tags Marketplace
// @Produce json
// @Param id path string true "Note ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /marketplace/notes/{id}/purchase [post]
func (h *MarketplaceHandler) Purchase(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "note")
	if !ok {
		return
	}
	res, err := h.service.Purchase(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// MyPurchases godoc
// @Summary Notes I bought
// @Tags Marketplace
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /marketplace/purchases/my-purchases [get]
func (h *MarketplaceHandler) MyPurchases(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	purchases, err := h.service.MyPurchases(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, purchases, nil)
}

// Reviews godoc
// @Summary Note reviews
// @Tags Marketplace
// @Produce json
// @Param id path string true "Note ID"
// @Success 200 {object} response.Envelope
// @Router /marketplace/notes/{id}/reviews [get]
func (h *MarketplaceHandler) Reviews(c *gin.Context) {
	id, ok := idParam(c, "id", "note")
	if !ok {
		return
	}
	reviews, err := h.service.Reviews(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reviews, nil)
}

// AddReview godoc
// @Summary Review a purchased note
// @Tags Marketplace
// @Accept json
// @Produce json
// @Param id path string true "Note ID"
// @Param payload body dto.ReviewRequest true "Review"
// @Success 201 {object} response.Envelope
// @Router /marketplace/notes/{id}/reviews [post]
func (h *MarketplaceHandler) AddReview(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "note")
	if !ok {
		return
	}
	var req dto.ReviewRequest
	if !bindJSON(c, &req, "invalid review payload") {
		return
	}
	review, err := h.service.AddReview(c.Request.Context(), id, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, review)
}

// Wallet godoc
// @Summary My wallet
// @Tags Marketplace
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /marketplace/wallet [get]
func (h *MarketplaceHandler) Wallet(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	wallet, err := h.service.Wallet(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, wallet, nil)
}

// Leaderboard godoc
// @Summary Top sellers
// @Tags Marketplace
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /marketplace/leaderboard [get]
func (h *MarketplaceHandler) Leaderboard(c *gin.Context) {
	sellers, cacheHit, err := h.service.Leaderboard(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, sellers, nil, middleware.ExtractMeta(c))
}

// Download godoc
// @Summary Download a note
// @Tags Marketplace
// @Produce octet-stream
// @Param id path string true "Note ID"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /marketplace/notes/{id}/download [get]
func (h *MarketplaceHandler) Download(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "note")
	if !ok {
		return
	}
	file, err := h.service.Download(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	streamDownload(c, file)
}

// DownloadLink godoc
// @Summary Signed download link
// @Tags Marketplace
// @Produce json
// @Param id path string true "Note ID"
// @Success 200 {object} response.Envelope
// @Router /marketplace/notes/{id}/download-link [get]
func (h *MarketplaceHandler) DownloadLink(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "note")
	if !ok {
		return
	}
	link, err := h.service.DownloadLink(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// SignedFile godoc
// @Summary Stream a file from a signed link
// @Tags Files
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /files/{token} [get]
func (h *MarketplaceHandler) SignedFile(c *gin.Context) {
	file, err := h.service.ResolveSigned(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	streamDownload(c, file)
}

func streamDownload(c *gin.Context, file *service.NoteDownload) {
	defer file.Body.Close()
	response.Stream(c, file.Filename, file.ContentType, -1, file.Body)
}

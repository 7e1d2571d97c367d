package announcement

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/edusystems/school_management/internal/logging"
	authmw "github.com/edusystems/school_management/internal/middleware/auth"
	"github.com/edusystems/school_management/internal/models"
	"github.com/edusystems/school_management/internal/mykafka"
	"github.com/edusystems/school_management/internal/service/search"
	"github.com/edusystems/school_management/internal/util"
)

const eventsTopic = "announcement_events"

type AnnouncementHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
	ES       *elasticsearch.Client
	Index    string
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func (h *AnnouncementHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, eventsTopic, fmt.Sprint(event["announcement_id"]), event); err != nil {
		logging.FromContext(c.Request().Context()).Warn("kafka_publish_failed", "error", err)
	}
}

func (h *AnnouncementHandler) index(c echo.Context, a *models.Announcement) {
	if err := search.IndexAnnouncement(c.Request().Context(), h.ES, h.Index, a); err != nil {
		logging.FromContext(c.Request().Context()).Warn("es_index_failed", "error", err)
	}
}

func (h *AnnouncementHandler) Create(c echo.Context) error {
	ident, ok := authmw.CurrentIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req struct {
		Title    string `json:"title"`
		Body     string `json:"body"`
		BranchID uint   `json:"branch_id"`
		Audience string `json:"audience"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Title == "" || req.Body == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title and body required")
	}

	audience := models.RoleAny
	if req.Audience != "" && req.Audience != models.RoleAny.String() {
		parsed, err := models.ParseRole(req.Audience)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		audience = parsed
	}

	a := models.Announcement{
		Title:    req.Title,
		Body:     req.Body,
		BranchID: req.BranchID,
		Audience: audience,
		AuthorID: ident.ID,
	}
	if err := h.DB.Create(&a).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.index(c, &a)
	h.publish(c, map[string]any{
		"type":            "announcement_created",
		"announcement_id": a.ID,
		"author_id":       a.AuthorID,
	})

	return c.JSON(http.StatusCreated, a)
}

func (h *AnnouncementHandler) Get(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var a models.Announcement
	if err := h.DB.First(&a, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "announcement not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *AnnouncementHandler) List(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	q := h.DB.Model(&models.Announcement{})
	if branch := c.QueryParam("branch_id"); branch != "" {
		q = q.Where("branch_id = ?", parseIntDefault(branch, 0))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var items []models.Announcement
	if err := q.Order("id DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *AnnouncementHandler) Patch(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var a models.Announcement
	if err := h.DB.First(&a, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "announcement not found")
	}

	if req.Title != "" {
		a.Title = req.Title
	}
	if req.Body != "" {
		a.Body = req.Body
	}
	if err := h.DB.Save(&a).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.index(c, &a)
	h.publish(c, map[string]any{
		"type":            "announcement_updated",
		"announcement_id": a.ID,
	})

	return c.JSON(http.StatusOK, a)
}

func (h *AnnouncementHandler) Delete(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	res := h.DB.Delete(&models.Announcement{}, id)
	if res.Error != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if res.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "announcement not found")
	}

	if err := search.DeleteAnnouncement(c.Request().Context(), h.ES, h.Index, uint(id)); err != nil {
		logging.FromContext(c.Request().Context()).Warn("es_delete_failed", "error", err)
	}
	h.publish(c, map[string]any{
		"type":            "announcement_deleted",
		"announcement_id": id,
	})

	return c.NoContent(http.StatusNoContent)
}

func (h *AnnouncementHandler) Search(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}
	if h.ES == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search unavailable")
	}

	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	from, limit := util.Calculate(page, size)

	total, items, err := search.Announcements(c.Request().Context(), h.ES, h.Index, q, from, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "announcements": items})
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/undercover-game/internal/errors"
	"github.com/wfunc/undercover-game/internal/middleware"
	"github.com/wfunc/undercover-game/internal/service"
)

// RoomHandler 房间处理器
type RoomHandler struct {
	rooms service.RoomService
	stats service.StatsService
}

// NewRoomHandler 创建房间处理器
func NewRoomHandler(rooms service.RoomService, stats service.StatsService) *RoomHandler {
	return &RoomHandler{
		rooms: rooms,
		stats: stats,
	}
}

// CreateRoom 创建房间
// POST /api/v1/rooms
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req service.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
		return
	}

	ticket, err := h.rooms.CreateRoom(c.Request.Context(), &req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ticket)
}

// JoinRoom 加入房间
// POST /api/v1/rooms/:code/join
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var req service.JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
		return
	}

	ticket, err := h.rooms.JoinRoom(c.Request.Context(), c.Param("code"), &req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ticket)
}

// GetRoom 房间公开快照
// GET /api/v1/rooms/:code
func (h *RoomHandler) GetRoom(c *gin.Context) {
	view, err := h.rooms.GetRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// ListResults 房间历史对局
// GET /api/v1/rooms/:code/results?page=1&page_size=10
func (h *RoomHandler) ListResults(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	results, err := h.rooms.ListResults(c.Request.Context(), c.Param("code"), page, pageSize)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"page":    page,
	})
}

// GetStats 服务统计
// GET /api/v1/stats?hours=24
func (h *RoomHandler) GetStats(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if err != nil || hours <= 0 {
		middleware.AbortWithError(c, apperrors.New(apperrors.ErrInvalidParam, "hours必须为正整数"))
		return
	}

	end := time.Now()
	stats, err := h.stats.GetStats(c.Request.Context(), end.Add(-time.Duration(hours)*time.Hour), end)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

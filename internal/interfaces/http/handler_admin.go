package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"brigadebot/internal/entities"
	"brigadebot/internal/infrastructure"
	"brigadebot/internal/interfaces"
	"brigadebot/internal/logger"
	"brigadebot/internal/repository"
	"brigadebot/internal/usecases"

	"github.com/gin-gonic/gin"
)

const (
	defaultActionsLimit = 50
	maxActionsLimit     = 500
)

type AdminHandler struct {
	membership *usecases.MembershipUsecase
	invites    *usecases.InviteUsecase
	tasks      *usecases.TaskUsecase
	reports    *usecases.ReportUsecase
	actions    interfaces.ActionLog
	log        *logger.Logger
}

func NewAdminHandler(membership *usecases.MembershipUsecase, invites *usecases.InviteUsecase, tasks *usecases.TaskUsecase,
	reports *usecases.ReportUsecase, actions interfaces.ActionLog, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		membership: membership,
		invites:    invites,
		tasks:      tasks,
		reports:    reports,
		actions:    actions,
		log:        log,
	}
}

func (h *AdminHandler) ListTeams(c *gin.Context) {
	teams, err := h.membership.Teams(c.Request.Context())
	if err != nil {
		h.internalError(c, "list teams", err)
		return
	}
	c.JSON(http.StatusOK, teams)
}

// CreateTeam adds a team. The id is chosen by the caller.
func (h *AdminHandler) CreateTeam(c *gin.Context) {
	var payload struct {
		ID   int64  `json:"id" binding:"required"`
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id and name are required"})
		return
	}
	name := SanitizeString(payload.Name)
	if !ValidTeamName(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid team name"})
		return
	}

	team := entities.Team{ID: payload.ID, Name: name}
	err := h.membership.CreateTeam(c.Request.Context(), team)
	switch {
	case errors.Is(err, repository.ErrTeamIDRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Team id must be positive"})
		return
	case errors.Is(err, repository.ErrDuplicateTeam):
		c.JSON(http.StatusConflict, gin.H{"error": "Team already exists"})
		return
	case err != nil:
		h.internalError(c, "create team", err)
		return
	}

	h.log.Audit("team created", "team_id", team.ID, "request_id", c.GetString(requestIDKey))
	c.JSON(http.StatusCreated, team)
}

func (h *AdminHandler) TeamInvite(c *gin.Context) {
	teamID, ok := pathID(c, "id")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"team_id": teamID, "link": h.invites.Link(teamID)})
}

// TeamInviteQR renders the invite deep link as a PNG.
func (h *AdminHandler) TeamInviteQR(c *gin.Context) {
	teamID, ok := pathID(c, "id")
	if !ok {
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "256"))

	png, err := h.invites.QRCode(c.Request.Context(), teamID, size)
	if errors.Is(err, usecases.ErrUnknownTeam) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Team not found"})
		return
	}
	if err != nil {
		h.internalError(c, "render invite", err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.membership.Users(c.Request.Context())
	if err != nil {
		h.internalError(c, "list users", err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *AdminHandler) UpdateUserRole(c *gin.Context) {
	tgUserID, ok := pathID(c, "tg_user_id")
	if !ok {
		return
	}
	var payload struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	err := h.membership.AssignRole(c.Request.Context(), tgUserID, payload.Role)
	switch {
	case errors.Is(err, usecases.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role must be worker, foreman or admin"})
		return
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	case err != nil:
		h.internalError(c, "update role", err)
		return
	}

	h.log.Audit("role changed", "tg_user_id", tgUserID, "role", payload.Role, "request_id", c.GetString(requestIDKey))
	c.JSON(http.StatusOK, gin.H{"status": "updated", "role": payload.Role})
}

// ListTaskActions returns the newest log rows, optionally for one task.
func (h *AdminHandler) ListTaskActions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultActionsLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	if limit > maxActionsLimit {
		limit = maxActionsLimit
	}

	var actions []entities.TaskAction
	if raw := c.Query("task_id"); raw != "" {
		taskID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task_id"})
			return
		}
		actions, err = h.actions.ListByTask(c.Request.Context(), taskID, limit)
		if err != nil {
			h.internalError(c, "list task actions", err)
			return
		}
	} else {
		actions, err = h.actions.ListRecent(c.Request.Context(), limit)
		if err != nil {
			h.internalError(c, "list task actions", err)
			return
		}
	}
	if actions == nil {
		actions = []entities.TaskAction{}
	}
	c.JSON(http.StatusOK, actions)
}

// ListDeals pages through CRM deals. start is the offset Bitrix returned as next.
func (h *AdminHandler) ListDeals(c *gin.Context) {
	var categoryID *int64
	if raw := c.Query("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category_id"})
			return
		}
		categoryID = &id
	}
	start, err := strconv.Atoi(c.DefaultQuery("start", "0"))
	if err != nil || start < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start"})
		return
	}

	page, err := h.tasks.Deals(c.Request.Context(), categoryID, c.Query("stage_id"), start)
	if err != nil {
		h.internalError(c, "list deals", err)
		return
	}
	if page.Deals == nil {
		page.Deals = []map[string]any{}
	}
	c.JSON(http.StatusOK, page)
}

func (h *AdminHandler) ListDealStages(c *gin.Context) {
	categoryID, err := strconv.ParseInt(c.DefaultQuery("category_id", "0"), 10, 64)
	if err != nil || categoryID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category_id"})
		return
	}
	stages, err := h.tasks.DealStages(c.Request.Context(), categoryID)
	if err != nil {
		h.internalError(c, "list deal stages", err)
		return
	}
	if stages == nil {
		stages = []infrastructure.DealStage{}
	}
	c.JSON(http.StatusOK, stages)
}

// RunReport sends today's report now. With dry_run it only returns the text.
func (h *AdminHandler) RunReport(c *gin.Context) {
	var payload struct {
		ChatID int64 `json:"chat_id"`
		DryRun bool  `json:"dry_run"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}
	ctx := c.Request.Context()

	if payload.DryRun {
		text, err := h.reports.Build(ctx, time.Now())
		if err != nil {
			h.internalError(c, "build report", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "built", "text": text})
		return
	}

	var err error
	if payload.ChatID != 0 {
		err = h.reports.SendTo(ctx, payload.ChatID)
	} else {
		err = h.reports.SendDaily(ctx)
	}
	if err != nil {
		h.internalError(c, "send report", err)
		return
	}
	h.log.Audit("report sent manually", "chat_id", payload.ChatID, "request_id", c.GetString(requestIDKey))
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (h *AdminHandler) internalError(c *gin.Context, op string, err error) {
	h.log.Errorw(op, "error", err, "request_id", c.GetString(requestIDKey))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

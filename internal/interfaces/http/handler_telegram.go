package http

import (
	"crypto/subtle"
	"net/http"

	"brigadebot/internal/infrastructure"
	"brigadebot/internal/logger"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateDispatcher hands an update over to the bot.
type UpdateDispatcher interface {
	Dispatch(update tgbotapi.Update)
}

// TelegramHandler receives webhook calls from Telegram.
type TelegramHandler struct {
	secret     []byte
	dedup      infrastructure.UpdateDeduper
	dispatcher UpdateDispatcher
	log        *logger.Logger
}

func NewTelegramHandler(secret string, dedup infrastructure.UpdateDeduper, dispatcher UpdateDispatcher, log *logger.Logger) *TelegramHandler {
	return &TelegramHandler{
		secret:     []byte(secret),
		dedup:      dedup,
		dispatcher: dispatcher,
		log:        log,
	}
}

// Webhook accepts an update and answers {"ok": true} right away. Failures
// while handling the update are only logged so Telegram does not redeliver.
func (h *TelegramHandler) Webhook(c *gin.Context) {
	if !h.matches(c.Param("secret")) {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	if token := c.GetHeader(secretTokenHeader); token != "" && !h.matches(token) {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		h.log.Warnw("malformed update", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false})
		return
	}

	first, err := h.dedup.FirstSeen(c.Request.Context(), update.UpdateID)
	if err != nil {
		// dedup store is down; handling twice beats dropping the update
		h.log.Warnw("update dedup failed", "update_id", update.UpdateID, "error", err)
		first = true
	}
	if !first {
		h.log.Debugw("duplicate update dropped", "update_id", update.UpdateID)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	h.dispatcher.Dispatch(update)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *TelegramHandler) matches(s string) bool {
	return subtle.ConstantTimeCompare([]byte(s), h.secret) == 1
}

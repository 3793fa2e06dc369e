package linksync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/banklink_backend/config"
	"github.com/mmdatafocus/banklink_backend/models"
	"github.com/mmdatafocus/banklink_backend/utils"
)

// publishAccountEvent emits an account lifecycle event to the account events
// topic. Publishing is best-effort; callers log and continue on error.
func publishAccountEvent(ctx context.Context, kind string, old *models.Account, updated *models.Account) error {
	if !envBoolDefault("ENABLE_ACCOUNT_EVENTS", true) {
		return nil
	}

	msg := config.EventMessage{
		EntityType: config.EventEntityAccount,
		Kind:       kind,
		OccurredAt: time.Now(),
	}
	if updated != nil {
		msg.UserId = updated.UserId
		msg.EntityId = strconv.Itoa(updated.ID)
		msg.NewObj = utils.MustMarshal(updated)
	}
	if old != nil {
		msg.UserId = old.UserId
		msg.EntityId = strconv.Itoa(old.ID)
		msg.OldObj = utils.MustMarshal(old)
	}
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		msg.CorrelationId = correlationId
	}

	_, err := config.PublishEvent(ctx, config.AccountEventsTopic(), msg)
	return err
}

type pubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// BalanceEventsPushHandler consumes transaction lifecycle events when balance
// processing runs in pubsub mode. Malformed messages are acked (204) so they
// do not redeliver forever; processing failures return 500 so Pub/Sub retries.
func BalanceEventsPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_BALANCE_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope pubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var msg config.EventMessage
		if err := json.Unmarshal(envelope.Message.Data, &msg); err != nil {
			c.Status(204)
			return
		}
		if msg.EntityType != config.EventEntityTransaction || msg.Kind == "" {
			c.Status(204)
			return
		}

		var old, updated *models.Transaction
		if len(msg.OldObj) > 0 {
			old = &models.Transaction{}
			if err := json.Unmarshal(msg.OldObj, old); err != nil {
				c.Status(204)
				return
			}
		}
		if len(msg.NewObj) > 0 {
			updated = &models.Transaction{}
			if err := json.Unmarshal(msg.NewObj, updated); err != nil {
				c.Status(204)
				return
			}
		}
		if old == nil && updated == nil {
			c.Status(204)
			return
		}

		ctx := utils.SetUserIdInContext(c.Request.Context(), msg.UserId)
		if err := models.ApplyTransactionEvent(ctx, msg.Kind, old, updated); err != nil {
			config.LogError(config.GetLogger(), "linksync", "BalanceEventsPushHandler",
				"apply transaction event", msg.EntityId, err)
			c.Status(500)
			return
		}
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}

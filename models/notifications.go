package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/taminot_backend/config"
	"bitbucket.org/mmdatafocus/taminot_backend/telegram"
	"bitbucket.org/mmdatafocus/taminot_backend/utils"
)

// sendTelegram pushes a message on its own goroutine so a slow or
// misconfigured bot never blocks the request path. Failures are logged
// and swallowed.
func sendTelegram(funcName string, text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cfg, err := GetTelegramConfig(ctx)
		if err != nil {
			if !utils.IsNotFound(err) {
				config.LogError(config.GetLogger(), "models", funcName, "GetTelegramConfig", nil, err)
			}
			return
		}
		client, err := telegram.NewClient(cfg.BotToken)
		if err != nil {
			config.LogError(config.GetLogger(), "models", funcName, "telegram.NewClient", nil, err)
			return
		}
		if err := client.SendMessage(ctx, cfg.ChatId, text); err != nil {
			config.LogError(config.GetLogger(), "models", funcName, "SendMessage", text, err)
		}
	}()
}

func notifyRequisitionCreated(ctx context.Context, requisition *Requisition) {
	text := fmt.Sprintf("🩸 Yangi so'rov #%d\n%s: %s (%s) x %d %s",
		requisition.ID, requisition.OrgName, requisition.ProductName,
		requisition.Variant, requisition.Qty, requisition.Unit)
	if requisition.PatientName != "" {
		text += fmt.Sprintf("\nBemor: %s", requisition.PatientName)
	}
	sendTelegram("notifyRequisitionCreated", text)
}

func notifyRequisitionDecided(ctx context.Context, requisition *Requisition) {
	verdict := "✅ Tasdiqlandi"
	if requisition.Status == RequisitionStatusRejected {
		verdict = "❌ Rad etildi"
	}
	text := fmt.Sprintf("%s: so'rov #%d\n%s: %s (%s) x %d %s",
		verdict, requisition.ID, requisition.OrgName, requisition.ProductName,
		requisition.Variant, requisition.Qty, requisition.Unit)
	sendTelegram("notifyRequisitionDecided", text)
}

// SendTestMessage verifies a telegram configuration from the settings
// screen before it is saved.
func SendTestMessage(ctx context.Context, input *TelegramConfig) error {
	client, err := telegram.NewClient(input.BotToken)
	if err != nil {
		return fmt.Errorf("%w: %s", utils.ErrInvalidInput, err.Error())
	}
	if err := client.SendMessage(ctx, input.ChatId, "Taminot: test xabari ✅"); err != nil {
		return fmt.Errorf("%w: %s", utils.ErrServiceUnavailable, err.Error())
	}
	return nil
}

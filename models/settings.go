package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/taminot_backend/config"
	"bitbucket.org/mmdatafocus/taminot_backend/utils"
	"gorm.io/gorm"
)

// Setting is a single-row key/value store for operator-editable
// configuration (telegram channel, backup destination).
type Setting struct {
	Key       string    `gorm:"primary_key;size:50" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	settingKeyTelegram = "telegram"
	settingKeyBackup   = "backup"
)

type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatId   string `json:"chat_id"`
}

type BackupConfig struct {
	Bucket string `json:"bucket"`
	Object string `json:"object"`
}

func getSetting[T any](ctx context.Context, key string) (*T, error) {
	db := config.GetDB()
	var setting Setting
	err := db.WithContext(ctx).First(&setting, "`key` = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: setting %q is not configured", utils.ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	var value T
	if err := utils.UnmarshalFromJSON([]byte(setting.Value), &value); err != nil {
		return nil, err
	}
	return &value, nil
}

func saveSetting(ctx context.Context, key string, value interface{}) error {
	encoded, err := utils.MarshalToJSON(value)
	if err != nil {
		return err
	}
	db := config.GetDB()
	setting := Setting{Key: key, Value: encoded}
	return db.WithContext(ctx).Save(&setting).Error
}

func GetTelegramConfig(ctx context.Context) (*TelegramConfig, error) {
	return getSetting[TelegramConfig](ctx, settingKeyTelegram)
}

func SaveTelegramConfig(ctx context.Context, input *TelegramConfig) error {
	if input.BotToken == "" || input.ChatId == "" {
		return fmt.Errorf("%w: bot_token and chat_id are required", utils.ErrInvalidInput)
	}
	return saveSetting(ctx, settingKeyTelegram, input)
}

func GetBackupConfig(ctx context.Context) (*BackupConfig, error) {
	return getSetting[BackupConfig](ctx, settingKeyBackup)
}

func SaveBackupConfig(ctx context.Context, input *BackupConfig) error {
	if input.Bucket == "" || input.Object == "" {
		return fmt.Errorf("%w: bucket and object are required", utils.ErrInvalidInput)
	}
	return saveSetting(ctx, settingKeyBackup, input)
}

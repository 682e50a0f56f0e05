package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/taminot_backend/config"
	"bitbucket.org/mmdatafocus/taminot_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Snapshot is the full portable state of the system: every user, product,
// requisition and stock movement. Restoring a snapshot and folding its
// stock yields the same balances the source system reported.
type Snapshot struct {
	Version   int                 `json:"version"`
	CreatedAt time.Time           `json:"created_at"`
	Users     []*SnapshotUser     `json:"users"`
	Products  []*Product          `json:"products"`
	Requests  []*Requisition      `json:"requests"`
	Stock     []*StockTransaction `json:"stock"`
}

// SnapshotUser re-exposes the password hash the api representation hides,
// so restored users can still log in.
type SnapshotUser struct {
	User
	PasswordHash string `json:"password_hash"`
}

const snapshotVersion = 1

// BuildSnapshot reads the whole dataset inside one transaction so the
// snapshot is internally consistent.
func BuildSnapshot(ctx context.Context) (*Snapshot, error) {
	db := config.GetDB()
	snapshot := Snapshot{Version: snapshotVersion, CreatedAt: time.Now().UTC()}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var users []*User
		if err := tx.Order("id ASC").Find(&users).Error; err != nil {
			return err
		}
		for _, user := range users {
			snapshot.Users = append(snapshot.Users, &SnapshotUser{User: *user, PasswordHash: user.Password})
		}
		if err := tx.Preload("Variants", func(db *gorm.DB) *gorm.DB {
			return db.Order("product_variants.position ASC")
		}).Order("id ASC").Find(&snapshot.Products).Error; err != nil {
			return err
		}
		if err := tx.Order("id ASC").Find(&snapshot.Requests).Error; err != nil {
			return err
		}
		return tx.Order("created_at ASC").Find(&snapshot.Stock).Error
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// RestoreSnapshot replaces the current dataset wholesale. The operation is
// all-or-nothing; a failed restore leaves the previous data intact.
func RestoreSnapshot(ctx context.Context, snapshot *Snapshot) error {
	if snapshot.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported snapshot version %d", utils.ErrInvalidInput, snapshot.Version)
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range []interface{}{
			&StockTransaction{}, &Requisition{}, &ProductVariant{}, &Product{}, &User{},
		} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(table).Error; err != nil {
				return err
			}
		}
		if len(snapshot.Users) > 0 {
			users := make([]*User, 0, len(snapshot.Users))
			for _, su := range snapshot.Users {
				user := su.User
				user.Password = su.PasswordHash
				users = append(users, &user)
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&users).Error; err != nil {
				return err
			}
		}
		if len(snapshot.Products) > 0 {
			if err := tx.Create(&snapshot.Products).Error; err != nil {
				return err
			}
		}
		if len(snapshot.Requests) > 0 {
			if err := tx.Create(&snapshot.Requests).Error; err != nil {
				return err
			}
		}
		if len(snapshot.Stock) > 0 {
			if err := tx.Create(&snapshot.Stock).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Cached user records predate the restore.
	for _, su := range snapshot.Users {
		if err := su.User.RemoveInstanceRedis(); err != nil {
			config.LogError(config.GetLogger(), "models", "RestoreSnapshot", "RemoveInstanceRedis", su.Username, err)
		}
	}
	return nil
}

// BackupToStorage writes the current snapshot to the configured bucket.
func BackupToStorage(ctx context.Context) (*BackupConfig, error) {
	cfg, err := GetBackupConfig(ctx)
	if err != nil {
		return nil, err
	}
	snapshot, err := BuildSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	if err := utils.WriteSnapshotToGCS(ctx, cfg.Bucket, cfg.Object, data); err != nil {
		return nil, fmt.Errorf("%w: %s", utils.ErrServiceUnavailable, err.Error())
	}
	return cfg, nil
}

// RestoreFromStorage loads the snapshot from the configured bucket and
// replaces the current dataset with it.
func RestoreFromStorage(ctx context.Context) (*Snapshot, error) {
	cfg, err := GetBackupConfig(ctx)
	if err != nil {
		return nil, err
	}
	data, err := utils.ReadSnapshotFromGCS(ctx, cfg.Bucket, cfg.Object)
	if err != nil {
		return nil, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: snapshot is not valid json", utils.ErrInvalidInput)
	}
	if err := RestoreSnapshot(ctx, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

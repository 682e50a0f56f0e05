// seed-admin creates (or resets the password of) the administrator account.
// Run once against a fresh database before starting the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/taminot_backend/config"
	"bitbucket.org/mmdatafocus/taminot_backend/models"
	"bitbucket.org/mmdatafocus/taminot_backend/utils"
	"gorm.io/gorm"
)

func main() {
	username := flag.String("username", "admin", "administrator username")
	name := flag.String("name", "Administrator", "display name")
	password := flag.String("password", "", "password (required)")
	flag.Parse()

	if strings.TrimSpace(*password) == "" {
		fmt.Fprintln(os.Stderr, "-password is required")
		os.Exit(1)
	}

	ctx := context.Background()
	// Explicit DB connect (config no longer connects DB in init()).
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	models.MigrateTable()

	hashed, err := utils.HashPassword(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var admin models.User
	err = db.WithContext(ctx).Where("role = ?", models.UserRoleAdmin).Take(&admin).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		admin = models.User{
			Username: strings.TrimSpace(*username),
			Name:     strings.TrimSpace(*name),
			Password: string(hashed),
			Role:     models.UserRoleAdmin,
			IsActive: utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&admin).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create administrator: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("created administrator %q (id %d)\n", admin.Username, admin.ID)
	case err != nil:
		fmt.Fprintf(os.Stderr, "failed to look up administrator: %v\n", err)
		os.Exit(1)
	default:
		admin.Password = string(hashed)
		if err := db.WithContext(ctx).Save(&admin).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to reset administrator password: %v\n", err)
			os.Exit(1)
		}
		if err := admin.RemoveInstanceRedis(); err == nil {
			fmt.Println("cleared cached administrator record")
		}
		fmt.Printf("reset password for administrator %q (id %d)\n", admin.Username, admin.ID)
	}
}

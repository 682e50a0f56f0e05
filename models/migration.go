package models

import (
	"log"

	"bitbucket.org/mmdatafocus/taminot_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&Product{}, &ProductVariant{},
		&StockTransaction{},
		&Requisition{},
		&History{},
		&Setting{},
	)
	if err != nil {
		log.Fatal(err)
	}
}

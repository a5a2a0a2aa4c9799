package versions

import (
	"log"
	"worldkeeper/worldkeeper/schema"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func initialMigration(txn *gorm.DB) error {
	log.Println("performing initial schema migration")

	if err := txn.Migrator().AutoMigrate(schema.AllModels()...); err != nil {
		return err
	}

	log.Println("initial schema migration complete")
	return nil
}

func rollbackInitialMigration(txn *gorm.DB) error {
	for _, model := range schema.AllModels() {
		if err := txn.Migrator().DropTable(model); err != nil {
			return err
		}
	}
	return nil
}

// All returns the ordered migration list. New migrations are appended, never
// reordered or edited after release.
func All() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID:       "0_initial_migration",
			Migrate:  initialMigration,
			Rollback: rollbackInitialMigration,
		},
	}
}

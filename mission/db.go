package mission

import (
	"fmt"

	"gorm.io/gorm"
)

// InitDatabase 初始化任务引擎的数据库表结构。
// 支持: PostgreSQL, MySQL, SQLite
func InitDatabase(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Mission{},
		&Hop{},
		&ToolStep{},
		&Asset{},
		&MissionAssetMap{},
		&HopAssetMap{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// ============================================================================
// Mission Planner 任務紀錄存儲 - MySQL (gorm) 實作
// ============================================================================
//
// Package: internal/store
// 文件: gorm.go
// 功能: 以 gorm + MySQL 實作 Mission Record Store 與 Unit Availability Oracle
//
// 資料表:
//   missions: 任務紀錄
//   units:    部隊單位（ActiveUnitCount 計算 status = active 的列數）
//
// ============================================================================

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ChuLiYu/mission-planner/pkg/types"
)

// missionRecord missions 資料表的一列
type missionRecord struct {
	ID                   int64      `gorm:"primaryKey;autoIncrement"`
	Code                 string     `gorm:"size:32;index"`
	Name                 string     `gorm:"size:128"`
	Type                 string     `gorm:"size:32"`
	Status               string     `gorm:"size:16;index;not null"`
	Priority             string     `gorm:"size:16"`
	StartTime            *time.Time `gorm:"column:start_time"`
	EndTime              *time.Time `gorm:"column:end_time"`
	TargetLocation       string     `gorm:"size:256"`
	CompletionPercentage int        `gorm:"not null;default:0"`
	Notes                string     `gorm:"type:text"`
	UpdatedAt            time.Time
}

func (missionRecord) TableName() string { return "missions" }

// unitRecord units 資料表的一列
type unitRecord struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Designation string `gorm:"size:64;uniqueIndex"`
	Status      string `gorm:"size:16;index;not null"`
}

func (unitRecord) TableName() string { return "units" }

func toRecord(m *types.Mission) missionRecord {
	return missionRecord{
		ID:                   int64(m.ID),
		Code:                 m.Code,
		Name:                 m.Name,
		Type:                 string(m.Type),
		Status:               string(m.Status),
		Priority:             string(m.Priority),
		StartTime:            m.StartTime,
		EndTime:              m.EndTime,
		TargetLocation:       m.TargetLocation,
		CompletionPercentage: m.CompletionPercentage,
		Notes:                m.Notes,
		UpdatedAt:            m.UpdatedAt,
	}
}

func fromRecord(r missionRecord) *types.Mission {
	m := &types.Mission{
		ID:                   types.MissionID(r.ID),
		Code:                 r.Code,
		Name:                 r.Name,
		Type:                 types.MissionType(r.Type),
		Status:               types.MissionStatus(r.Status),
		Priority:             types.Priority(r.Priority),
		StartTime:            r.StartTime,
		EndTime:              r.EndTime,
		TargetLocation:       r.TargetLocation,
		CompletionPercentage: r.CompletionPercentage,
		Notes:                r.Notes,
		UpdatedAt:            r.UpdatedAt,
	}
	return m.Clone()
}

// OpenMySQL 開啟 gorm 連線；DSN 未指定時補上 parseTime 與 utf8mb4 字元集
func OpenMySQL(dsn string) (*gorm.DB, error) {
	dsn = ensureParam(dsn, "parseTime", "true")
	if !strings.Contains(dsn, "charset=") {
		dsn = ensureParam(dsn, "charset", "utf8mb4")
		dsn = ensureParam(dsn, "collation", "utf8mb4_unicode_ci")
	}

	gormLogger := gormlogger.New(
		slog.NewLogLogger(logger().Handler(), slog.LevelWarn),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}
	return db, nil
}

func ensureParam(dsn, key, val string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + val
}

// GormStore 以 gorm 存取 SQL 資料庫的任務與單位存儲
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 包裝已開啟的 gorm 連線
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate 建立或更新 missions 與 units 資料表
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&missionRecord{}, &unitRecord{})
}

func (s *GormStore) FindByID(ctx context.Context, id types.MissionID) (*types.Mission, error) {
	var rec missionRecord
	err := s.db.WithContext(ctx).First(&rec, int64(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("mission %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find mission %d: %w", id, err)
	}
	return fromRecord(rec), nil
}

func (s *GormStore) Save(ctx context.Context, m *types.Mission) error {
	if err := validate(m); err != nil {
		return err
	}
	rec := toRecord(m)
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("save mission %d: %w", m.ID, err)
	}
	return nil
}

// ListByStatus 依 ID 排序列出任務；不帶狀態時列出全部
func (s *GormStore) ListByStatus(ctx context.Context, statuses ...types.MissionStatus) ([]*types.Mission, error) {
	var recs []missionRecord
	err := s.db.WithContext(ctx).
		Scopes(statusIn(statuses)).
		Order("id").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}

	out := make([]*types.Mission, 0, len(recs))
	for _, r := range recs {
		out = append(out, fromRecord(r))
	}
	return out, nil
}

func (s *GormStore) ActiveUnitCount(ctx context.Context) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&unitRecord{}).
		Where("status = ?", string(types.UnitActive)).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count active units: %w", err)
	}
	return int(n), nil
}

func statusIn(statuses []types.MissionStatus) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if len(statuses) == 0 {
			return tx
		}
		values := make([]string, len(statuses))
		for i, st := range statuses {
			values[i] = string(st)
		}
		return tx.Where("status IN ?", values)
	}
}

// Package db persists each liquidation attempt's outcome for operator
// review, the same way the teacher's recorder persisted periodic strategy
// snapshots: a GORM model over MySQL, big.Int fields stored as decimal
// strings since the column type has no native 256-bit integer.
package db

import (
	"fmt"
	"math/big"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// LiquidationAttemptRecord is the database model for one submitted (or
// attempted) liquidation.
type LiquidationAttemptRecord struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp        time.Time `gorm:"index;not null"`
	Borrower         string    `gorm:"type:varchar(42);index;not null"`
	DebtAsset        string    `gorm:"type:varchar(42);not null"`
	CollateralAsset  string    `gorm:"type:varchar(42);not null"`
	RepayAmount      string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	EstimatedReward  string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	GasPriceWei      string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	TxHash           string    `gorm:"type:varchar(66);index"`
	Outcome          string    `gorm:"type:varchar(32);not null"`
	FailureReason    string    `gorm:"type:varchar(255)"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

func (LiquidationAttemptRecord) TableName() string {
	return "liquidation_attempts"
}

// LiquidationRecorder persists liquidation attempts to MySQL via GORM.
type LiquidationRecorder struct {
	db *gorm.DB
}

// NewLiquidationRecorder opens a MySQL connection at dsn and migrates the
// liquidation_attempts table.
func NewLiquidationRecorder(dsn string) (*LiquidationRecorder, error) {
	gormDB, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to MySQL: %w", err)
	}
	if err := gormDB.AutoMigrate(&LiquidationAttemptRecord{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &LiquidationRecorder{db: gormDB}, nil
}

// NewLiquidationRecorderWithDB wraps an already-open GORM handle, for
// tests running against sqlite or a shared connection pool.
func NewLiquidationRecorderWithDB(gormDB *gorm.DB) (*LiquidationRecorder, error) {
	if err := gormDB.AutoMigrate(&LiquidationAttemptRecord{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &LiquidationRecorder{db: gormDB}, nil
}

// Attempt is what the Liquidator records after each submission.
type Attempt struct {
	Timestamp       time.Time
	Borrower        string
	DebtAsset       string
	CollateralAsset string
	RepayAmount     *big.Int
	EstimatedReward *big.Int
	GasPriceWei     *big.Int
	TxHash          string
	Outcome         string
	FailureReason   string
}

// Record persists one liquidation attempt.
func (r *LiquidationRecorder) Record(a Attempt) error {
	record := LiquidationAttemptRecord{
		Timestamp:       a.Timestamp,
		Borrower:        a.Borrower,
		DebtAsset:       a.DebtAsset,
		CollateralAsset: a.CollateralAsset,
		RepayAmount:     bigIntToString(a.RepayAmount),
		EstimatedReward: bigIntToString(a.EstimatedReward),
		GasPriceWei:     bigIntToString(a.GasPriceWei),
		TxHash:          a.TxHash,
		Outcome:         a.Outcome,
		FailureReason:   a.FailureReason,
	}
	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("record liquidation attempt: %w", result.Error)
	}
	return nil
}

// RecentAttempts returns the most recent attempts, newest first, for
// operator dashboards.
func (r *LiquidationRecorder) RecentAttempts(limit int) ([]LiquidationAttemptRecord, error) {
	var records []LiquidationAttemptRecord
	result := r.db.Order("timestamp DESC").Limit(limit).Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("query recent attempts: %w", result.Error)
	}
	return records, nil
}

// Close releases the underlying connection pool.
func (r *LiquidationRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("underlying DB handle: %w", err)
	}
	return sqlDB.Close()
}

func bigIntToString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"guardex/config"
	"guardex/models"
	"strings"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// DB defines the database instance holding the gorm connection.
type DB struct {
	conn *gorm.DB
}

// New opens the configured database and migrates it.
func New(cfg config.DatabaseConfig) (*DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(logLevel(cfg.LogLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	db := &DB{conn: conn}
	if err = db.Migrate(); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate migrates the current database structures.
func (db *DB) Migrate() error {
	return db.conn.AutoMigrate(&UserDB{}, &ScanDB{})
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateUser stores a new user.
func (db *DB) CreateUser(ctx context.Context, user *UserDB) error {
	return db.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&UserDB{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateEmail
		}
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateEmail
			}
			return err
		}
		return nil
	})
}

// UserByEmail fetches a user by email.
func (db *DB) UserByEmail(ctx context.Context, email string) (*UserDB, error) {
	var user UserDB
	if err := db.conn.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UserByVerifyToken fetches the user owning a pending verification token.
func (db *DB) UserByVerifyToken(ctx context.Context, token string) (*UserDB, error) {
	var user UserDB
	if err := db.conn.WithContext(ctx).Where("verify_token = ?", token).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// MarkVerified flags the user as verified and clears its token.
func (db *DB) MarkVerified(ctx context.Context, userID string) error {
	res := db.conn.WithContext(ctx).Model(&UserDB{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"is_verified":  true,
		"verify_token": nil,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return db.exists(ctx, &UserDB{}, userID)
	}
	return nil
}

// CreateScan inserts an incomplete scan record.
func (db *DB) CreateScan(ctx context.Context, websiteLink, userID string) (*ScanDB, error) {
	scan := &ScanDB{
		WebsiteLink:  websiteLink,
		UserID:       userID,
		ScanComplete: false,
	}
	if err := db.conn.WithContext(ctx).Create(scan).Error; err != nil {
		return nil, err
	}
	return scan, nil
}

// CompleteScan stores the findings and marks the scan as complete.
func (db *DB) CompleteScan(ctx context.Context, scanID uint, vulns []models.Vulnerability) error {
	if vulns == nil {
		vulns = []models.Vulnerability{}
	}
	data, err := json.Marshal(vulns)
	if err != nil {
		return fmt.Errorf("encode vulnerabilities: %w", err)
	}

	res := db.conn.WithContext(ctx).Model(&ScanDB{}).Where("id = ?", scanID).Updates(map[string]interface{}{
		"vulnerabilities": datatypes.JSON(data),
		"scan_complete":   true,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return db.exists(ctx, &ScanDB{}, scanID)
	}
	return nil
}

// ScansByUser returns the user's scans, newest first.
func (db *DB) ScansByUser(ctx context.Context, userID string) ([]ScanDB, error) {
	var scans []ScanDB
	err := db.conn.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Order("id desc").
		Find(&scans).Error
	if err != nil {
		return nil, err
	}
	return scans, nil
}

// ScanByID fetches a single scan.
func (db *DB) ScanByID(ctx context.Context, id uint) (*ScanDB, error) {
	var scan ScanDB
	if err := db.conn.WithContext(ctx).First(&scan, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &scan, nil
}

// Fill converts the row into its API representation.
func (s *ScanDB) Fill(dto *models.ScanDTO) error {
	dto.ID = s.ID
	dto.WebsiteLink = s.WebsiteLink
	dto.UserID = s.UserID
	dto.ScanComplete = s.ScanComplete
	dto.CreatedAt = s.CreatedAt
	dto.Vulnerabilities = nil

	if len(s.Vulnerabilities) == 0 {
		return nil
	}
	if err := json.Unmarshal(s.Vulnerabilities, &dto.Vulnerabilities); err != nil {
		return fmt.Errorf("decode vulnerabilities of scan %d: %w", s.ID, err)
	}
	return nil
}

// Public returns the user fields safe to expose.
func (u *UserDB) Public() models.PublicUser {
	return models.PublicUser{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
	}
}

// exists reports ErrNotFound when no row of model has the given id. MySQL
// counts unchanged rows as unaffected, so a zero count alone proves nothing.
func (db *DB) exists(ctx context.Context, model interface{}, id interface{}) error {
	var count int64
	if err := db.conn.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func logLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

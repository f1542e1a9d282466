package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	likesTable = "likes"
	votesTable = "votes"
)

// PhotoRow is one cached stream page
type PhotoRow struct {
	Page      int    `gorm:"primaryKey;autoIncrement:false"`
	PageSize  int    `gorm:"primaryKey;autoIncrement:false"`
	Blob      []byte `gorm:"not null"`
	ETag      string `gorm:"column:etag"`
	UpdatedAt time.Time
}

func (PhotoRow) TableName() string { return "photos" }

// CommentRow is the cached comment list of one photo
type CommentRow struct {
	PhotoID   int    `gorm:"primaryKey;autoIncrement:false"`
	Blob      []byte `gorm:"not null"`
	ETag      string `gorm:"column:etag"`
	UpdatedAt time.Time
}

func (CommentRow) TableName() string { return "comments" }

// FlagRow is a per-photo boolean, stored in the likes and votes tables
type FlagRow struct {
	PhotoID int `gorm:"primaryKey;autoIncrement:false"`
	Value   bool
}

// PhotoTable caches stream pages keyed by page and page size
type PhotoTable struct {
	conn *Connection
}

// Get returns the cached page or nil when there is none
func (t *PhotoTable) Get(page, pageSize int) (*PhotoRow, error) {
	db, err := t.conn.DB()
	if err != nil {
		return nil, err
	}

	var row PhotoRow
	err = db.Where("page = ? AND page_size = ?", page, pageSize).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		t.conn.lookup(row.TableName(), false)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached page: %w", err)
	}
	t.conn.lookup(row.TableName(), true)
	return &row, nil
}

// Put replaces the cached page
func (t *PhotoTable) Put(page, pageSize int, blob []byte, etag string) error {
	db, err := t.conn.DB()
	if err != nil {
		return err
	}

	row := PhotoRow{Page: page, PageSize: pageSize, Blob: blob, ETag: etag}
	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to cache page: %w", err)
	}
	return nil
}

// Delete drops the cached page
func (t *PhotoTable) Delete(page, pageSize int) error {
	db, err := t.conn.DB()
	if err != nil {
		return err
	}
	return db.Where("page = ? AND page_size = ?", page, pageSize).Delete(&PhotoRow{}).Error
}

// All returns every cached page
func (t *PhotoTable) All() ([]PhotoRow, error) {
	db, err := t.conn.DB()
	if err != nil {
		return nil, err
	}
	var rows []PhotoRow
	err = db.Order("page_size, page").Find(&rows).Error
	return rows, err
}

// Clear drops every cached page
func (t *PhotoTable) Clear() error {
	db, err := t.conn.DB()
	if err != nil {
		return err
	}
	return db.Where("1 = 1").Delete(&PhotoRow{}).Error
}

// CommentTable caches comment lists keyed by photo id
type CommentTable struct {
	conn *Connection
}

// Get returns the cached comments or nil when there are none
func (t *CommentTable) Get(photoID int) (*CommentRow, error) {
	db, err := t.conn.DB()
	if err != nil {
		return nil, err
	}

	var row CommentRow
	err = db.Where("photo_id = ?", photoID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		t.conn.lookup(row.TableName(), false)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached comments: %w", err)
	}
	t.conn.lookup(row.TableName(), true)
	return &row, nil
}

// Put replaces the cached comments of a photo
func (t *CommentTable) Put(photoID int, blob []byte, etag string) error {
	db, err := t.conn.DB()
	if err != nil {
		return err
	}

	row := CommentRow{PhotoID: photoID, Blob: blob, ETag: etag}
	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to cache comments: %w", err)
	}
	return nil
}

// Delete drops the cached comments of a photo
func (t *CommentTable) Delete(photoID int) error {
	db, err := t.conn.DB()
	if err != nil {
		return err
	}
	return db.Where("photo_id = ?", photoID).Delete(&CommentRow{}).Error
}

// Clear drops every cached comment list
func (t *CommentTable) Clear() error {
	db, err := t.conn.DB()
	if err != nil {
		return err
	}
	return db.Where("1 = 1").Delete(&CommentRow{}).Error
}

type flagTable struct {
	conn  *Connection
	table string
}

// IsSet reports the stored flag; a missing row reads as false
func (t *flagTable) IsSet(photoID int) (bool, error) {
	db, err := t.conn.DB()
	if err != nil {
		return false, err
	}

	var row FlagRow
	err = db.Table(t.table).Where("photo_id = ?", photoID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		t.conn.lookup(t.table, false)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", t.table, err)
	}
	t.conn.lookup(t.table, true)
	return row.Value, nil
}

// Set stores the flag for a photo
func (t *flagTable) Set(photoID int, value bool) error {
	db, err := t.conn.DB()
	if err != nil {
		return err
	}

	row := FlagRow{PhotoID: photoID, Value: value}
	err = db.Table(t.table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "photo_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", t.table, err)
	}
	return nil
}

// Delete drops the flag for a photo
func (t *flagTable) Delete(photoID int) error {
	db, err := t.conn.DB()
	if err != nil {
		return err
	}
	return db.Table(t.table).Where("photo_id = ?", photoID).Delete(&FlagRow{}).Error
}

// Clear drops every flag
func (t *flagTable) Clear() error {
	db, err := t.conn.DB()
	if err != nil {
		return err
	}
	return db.Table(t.table).Where("1 = 1").Delete(&FlagRow{}).Error
}

// LikeTable stores whether this installation likes a photo
type LikeTable struct {
	flagTable
}

// VoteTable stores whether this installation has voted on a photo
type VoteTable struct {
	flagTable
}

package database

import (
	"time"

	"gorm.io/gorm"
)

// CallRecordRepository handles transmission database operations
type CallRecordRepository struct {
	db *gorm.DB
}

// NewCallRecordRepository creates a new transmission repository
func NewCallRecordRepository(db *gorm.DB) *CallRecordRepository {
	return &CallRecordRepository{db: db}
}

// Create adds a new transmission record
func (r *CallRecordRepository) Create(tx *CallRecord) error {
	return r.db.Create(tx).Error
}

// GetRecent retrieves the most recent N transmissions
func (r *CallRecordRepository) GetRecent(limit int) ([]CallRecord, error) {
	var transmissions []CallRecord
	err := r.db.Order("start_time DESC").Limit(limit).Find(&transmissions).Error
	return transmissions, err
}

// GetRecentPaginated retrieves transmissions with pagination
func (r *CallRecordRepository) GetRecentPaginated(page, perPage int) ([]CallRecord, int64, error) {
	var transmissions []CallRecord
	var total int64

	// Count total records
	if err := r.db.Model(&CallRecord{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Get paginated results
	offset := (page - 1) * perPage
	err := r.db.Order("start_time DESC").
		Offset(offset).
		Limit(perPage).
		Find(&transmissions).Error

	return transmissions, total, err
}

// GetByRadioID retrieves transmissions for a specific radio
func (r *CallRecordRepository) GetByRadioID(radioID uint32, limit int) ([]CallRecord, error) {
	var transmissions []CallRecord
	err := r.db.Where("radio_id = ?", radioID).
		Order("start_time DESC").
		Limit(limit).
		Find(&transmissions).Error
	return transmissions, err
}

// GetByTalkgroup retrieves transmissions for a specific talkgroup
func (r *CallRecordRepository) GetByTalkgroup(tgID uint32, limit int) ([]CallRecord, error) {
	var transmissions []CallRecord
	err := r.db.Where("talkgroup_id = ?", tgID).
		Order("start_time DESC").
		Limit(limit).
		Find(&transmissions).Error
	return transmissions, err
}

// GetByTimeRange retrieves transmissions within a time range
func (r *CallRecordRepository) GetByTimeRange(start, end time.Time, limit int) ([]CallRecord, error) {
	var transmissions []CallRecord
	err := r.db.Where("start_time BETWEEN ? AND ?", start, end).
		Order("start_time DESC").
		Limit(limit).
		Find(&transmissions).Error
	return transmissions, err
}

// DeleteOlderThan deletes transmissions older than the specified time
func (r *CallRecordRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.Where("start_time < ?", before).Delete(&CallRecord{})
	return result.RowsAffected, result.Error
}

// GetActiveStreamIDs retrieves stream IDs that are currently active (within last N seconds)
func (r *CallRecordRepository) GetActiveStreamIDs(withinSeconds int) ([]uint32, error) {
	var streamIDs []uint32
	cutoff := time.Now().Add(-time.Duration(withinSeconds) * time.Second)

	err := r.db.Model(&CallRecord{}).
		Where("end_time > ?", cutoff).
		Distinct("stream_id").
		Pluck("stream_id", &streamIDs).Error

	return streamIDs, err
}

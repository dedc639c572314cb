package model

// CacheRecord is the single stored feed snapshot. The store keeps at most one
// row in this table; Items cascade with it.
type CacheRecord struct {
	CacheID   uint64       `gorm:"column:cache_id;primaryKey;autoIncrement"`
	Timestamp string       `gorm:"column:timestamp;type:text;not null"`
	Items     []ItemRecord `gorm:"foreignKey:CacheID;references:CacheID;constraint:OnDelete:CASCADE"`
}

func (CacheRecord) TableName() string {
	return "feed_caches"
}

package model

// ItemRecord is one feed image of a CacheRecord. Position keeps the
// snapshot's item order.
type ItemRecord struct {
	ItemID      uint64  `gorm:"column:item_id;primaryKey;autoIncrement"`
	CacheID     uint64  `gorm:"column:cache_id;not null;uniqueIndex:idx_feed_cache_items_position"`
	Position    int     `gorm:"column:position;not null;uniqueIndex:idx_feed_cache_items_position"`
	ImageID     string  `gorm:"column:image_id;type:text;not null"`
	Description *string `gorm:"column:description;type:text"`
	Location    *string `gorm:"column:location;type:text"`
	URL         string  `gorm:"column:url;type:text;not null"`
}

func (ItemRecord) TableName() string {
	return "feed_cache_items"
}

// All returns every model the schema migrates, parents first.
func All() []any {
	return []any{&CacheRecord{}, &ItemRecord{}}
}

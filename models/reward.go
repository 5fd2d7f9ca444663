package models

// RewardType tags what a reward is; only coin rewards carry a Value
type RewardType string

const (
	RewardTypeBadge RewardType = "badge"
	RewardTypeCoin  RewardType = "coin"
	RewardTypePerk  RewardType = "perk"
)

// ConditionType tags the condition variant stored in ConditionConfig
type ConditionType string

const (
	ConditionTypeQuest   ConditionType = "quest"
	ConditionTypeChapter ConditionType = "chapter"
	ConditionTypeBook    ConditionType = "book"
	ConditionTypeCustom  ConditionType = "custom"
)

// Reward is a grantable reward definition. ConditionConfig is a jsonb blob
// whose shape is selected by ConditionType (see services.DecodeCondition).
type Reward struct {
	ID    string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Slug  string     `gorm:"uniqueIndex;not null" json:"slug"`
	Title string     `gorm:"not null" json:"title"`
	Type  RewardType `gorm:"type:varchar(16);not null" json:"type"`

	// Coin amount, meaningful only for Type == coin
	Value int64 `gorm:"default:0" json:"value"`

	ConditionType   ConditionType `gorm:"type:varchar(16);not null" json:"condition_type"`
	ConditionConfig string        `gorm:"type:jsonb" json:"condition_config"`

	IconURL  string `gorm:"type:text" json:"icon_url"`
	IsActive bool   `gorm:"default:true;index" json:"is_active"`

	Timestamps
}

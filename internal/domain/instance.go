package domain

import "time"

// ChatInstance is the durable record of one chat automation instance. One
// record per id; ids are assigned at creation and never reused. ConnectedAt
// is stamped on the first successful connect only.
type ChatInstance struct {
	Id          string     `json:"id" gorm:"primaryKey"`
	Name        string     `json:"name"`
	Number      string     `json:"number"`
	Status      string     `json:"status"`
	WebhookUrl  string     `json:"webhookUrl"`
	CreatedAt   time.Time  `json:"createdAt"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty"`
	UpdatedAt   time.Time  `json:"-"`
}

// TableName Specify table name
func (ChatInstance) TableName() string {
	return "chat_instance"
}

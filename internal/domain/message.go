package domain

import "time"

const (
	MsgDirectionIn  = "in"
	MsgDirectionOut = "out"
)

// ChatMessage logs one inbound or outbound message relayed through an
// instance session.
type ChatMessage struct {
	ID         int64     `json:"id,string" gorm:"primaryKey"`
	InstanceId string    `json:"instance_id" gorm:"index"`
	Direction  string    `json:"direction"`
	Peer       string    `json:"peer"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName Specify table name
func (ChatMessage) TableName() string {
	return "chat_message"
}

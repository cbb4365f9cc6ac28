package instance

import (
	"errors"
	"time"

	"github.com/koddahub/whatsbot/internal/domain"
	"gorm.io/gorm"
)

// Store persists instance records and the message log. Updates are per-record
// so concurrent writes for different ids cannot lose each other.
type Store interface {
	Create(rec *domain.ChatInstance) error
	Get(id string) (*domain.ChatInstance, error)
	List() ([]domain.ChatInstance, error)
	Update(id string, fields map[string]interface{}) error
	LogMessage(msg *domain.ChatMessage) error
	ListMessages(instanceID string, page, pageSize int) ([]domain.ChatMessage, int64, error)
}

// GormStore implements Store on the application database.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(rec *domain.ChatInstance) error {
	return s.db.Create(rec).Error
}

func (s *GormStore) Get(id string) (*domain.ChatInstance, error) {
	var rec domain.ChatInstance
	err := s.db.Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInstanceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) List() ([]domain.ChatInstance, error) {
	var recs []domain.ChatInstance
	err := s.db.Order("created_at ASC").Find(&recs).Error
	return recs, err
}

func (s *GormStore) Update(id string, fields map[string]interface{}) error {
	if _, ok := fields["updated_at"]; !ok {
		fields["updated_at"] = time.Now()
	}
	return s.db.Model(&domain.ChatInstance{}).Where("id = ?", id).Updates(fields).Error
}

func (s *GormStore) LogMessage(msg *domain.ChatMessage) error {
	return s.db.Create(msg).Error
}

func (s *GormStore) ListMessages(instanceID string, page, pageSize int) ([]domain.ChatMessage, int64, error) {
	base := s.db.Model(&domain.ChatMessage{})
	if instanceID != "" {
		base = base.Where("instance_id = ?", instanceID)
	}
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var msgs []domain.ChatMessage
	err := base.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&msgs).Error
	return msgs, total, err
}

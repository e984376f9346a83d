package whatsapp

import (
	"context"

	"github.com/ManuelReschke/Recurro/app/models"
	"github.com/ManuelReschke/Recurro/internal/pkg/security"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Sender abstracts the Cloud API client so the notifier can be tested
// without network access.
type Sender interface {
	SendTemplate(ctx context.Context, to, templateName string) error
	SendText(ctx context.Context, to, text string) error
}

// Repository is the persistence surface the notifier needs.
type Repository interface {
	GetShop(id uint) (*models.Shop, error)
	LogMessage(msg *models.WhatsAppMessage) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetShop(id uint) (*models.Shop, error) {
	var shop models.Shop
	if err := r.db.First(&shop, id).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

func (r *gormRepository) LogMessage(msg *models.WhatsAppMessage) error {
	return r.db.Create(msg).Error
}

// Notifier resolves a shop's WhatsApp credential and sends best-effort
// notifications. Errors never propagate to the billing/dunning core; a
// delivery log row is written regardless of outcome.
type Notifier struct {
	repo      Repository
	decrypt   func(string) (string, error)
	clientFor func(apiKey, phoneID string) Sender
}

func NewNotifier(repo Repository) *Notifier {
	return &Notifier{
		repo:    repo,
		decrypt: security.Decrypt,
		clientFor: func(apiKey, phoneID string) Sender {
			return NewClient(apiKey, phoneID)
		},
	}
}

func NewNotifierFromDB(db *gorm.DB) *Notifier {
	return NewNotifier(NewRepository(db))
}

// SendNotification tries the rich template first and falls back to plain
// text when the template is not approved. Returns whether the message
// went out; callers treat this as fire-and-forget.
func (n *Notifier) SendNotification(ctx context.Context, shopID, subscriberID uint, phone, templateName, fallbackText string) bool {
	shop, err := n.repo.GetShop(shopID)
	if err != nil {
		log.Warnf("[WhatsApp] shop %d lookup failed: %v", shopID, err)
		return false
	}
	if !shop.WhatsappEnabled || shop.WhatsappAPIKey == "" || shop.WhatsappPhoneID == "" {
		return false
	}

	apiKey, err := n.decrypt(shop.WhatsappAPIKey)
	if err != nil {
		log.Warnf("[WhatsApp] shop %d credential decrypt failed: %v", shopID, err)
		n.logDelivery(subscriberID, templateName, models.WhatsAppMessageStatusFailed)
		return false
	}

	client := n.clientFor(apiKey, shop.WhatsappPhoneID)
	if err := client.SendTemplate(ctx, phone, templateName); err != nil {
		// Template may not be approved yet, fall back to text.
		if err := client.SendText(ctx, phone, fallbackText); err != nil {
			log.Warnf("[WhatsApp] send to subscriber %d failed: %v", subscriberID, err)
			n.logDelivery(subscriberID, templateName, models.WhatsAppMessageStatusFailed)
			return false
		}
	}

	n.logDelivery(subscriberID, templateName, models.WhatsAppMessageStatusSent)
	return true
}

func (n *Notifier) logDelivery(subscriberID uint, templateName, status string) {
	err := n.repo.LogMessage(&models.WhatsAppMessage{
		SubscriberID: subscriberID,
		TemplateName: templateName,
		Status:       status,
	})
	if err != nil {
		log.Errorf("[WhatsApp] delivery log write failed for subscriber %d: %v", subscriberID, err)
	}
}

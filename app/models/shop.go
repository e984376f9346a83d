package models

import "time"

// Shop is a merchant tenant. Paystack and WhatsApp credentials are stored
// encrypted (AES-256-GCM, see internal/pkg/security) and never leave the
// process decrypted except inside the provider clients.
type Shop struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ShopDomain        string    `gorm:"uniqueIndex;type:varchar(191);not null" json:"shop_domain" validate:"required,min=3,max=191"`
	PaystackSecretKey string    `gorm:"type:text" json:"-"`
	PaystackPublicKey string    `gorm:"type:text" json:"-"`
	WhatsappEnabled   bool      `gorm:"default:false" json:"whatsapp_enabled"`
	WhatsappAPIKey    string    `gorm:"type:text" json:"-"`
	WhatsappPhoneID   string    `gorm:"type:varchar(100);default:''" json:"-"`
	Currency          string    `gorm:"type:varchar(10);not null;default:'NGN'" json:"currency"`
	PortalEnabled     bool      `gorm:"default:true" json:"portal_enabled"`
	InvoiceLogo       string    `gorm:"type:varchar(255);default:''" json:"invoice_logo"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasPaystackKeys reports whether the shop finished Paystack onboarding.
func (s *Shop) HasPaystackKeys() bool {
	return s.PaystackSecretKey != "" && s.PaystackPublicKey != ""
}

package models

import "gorm.io/gorm"

// Intent assigned when classification yields nothing but a response should
// still be attempted
const IntentGeneralInquiry = "general_inquiry"

// ReplyTemplate is an auto-response template keyed by message intent.
// Subject and Body are text/template bodies rendered against prospect fields.
type ReplyTemplate struct {
	gorm.Model

	Intent  string `gorm:"not null;index" json:"intent"`
	Name    string `gorm:"not null" json:"name"`
	Subject string `gorm:"not null" json:"subject"`
	Body    string `gorm:"type:text" json:"body"`

	IsActive bool `gorm:"default:true" json:"is_active"`
}

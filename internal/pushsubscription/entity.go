package pushsubscription

import "time"

// Subscription is one browser push endpoint registered for task alerts.
type Subscription struct {
	ID        string    `yaml:"id" json:"id"`
	PersonID  string    `yaml:"person_id,omitempty" json:"personId,omitempty"`
	Endpoint  string    `yaml:"endpoint" json:"endpoint"`
	P256dhKey string    `yaml:"p256dh_key" json:"p256dhKey"`
	AuthKey   string    `yaml:"auth_key" json:"authKey"`
	CreatedAt time.Time `yaml:"created_at" json:"createdAt"`
}

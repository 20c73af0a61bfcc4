package models

import "time"

// SubscribeRequest is the body of POST /api/subscribe.
type SubscribeRequest struct {
	Email string `json:"email"`
}

// SubscribeResponse is returned for both new and existing subscribers.
type SubscribeResponse struct {
	Message          string `json:"message"`
	TotalSubscribers int    `json:"totalSubscribers"`
	StorageType      string `json:"storageType,omitempty"`
}

// SubscriberList is the document kept under one key in the key-value store.
type SubscriberList struct {
	Key       string    `bson:"_id" json:"key"`
	Emails    []string  `bson:"emails" json:"emails"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// SubscriberFile is the JSON object written to the object store.
type SubscriberFile struct {
	Emails      []string  `json:"emails"`
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// AdminRequest is the body of POST /api/admin.
type AdminRequest struct {
	Secret string `json:"secret"`
	Action string `json:"action"`
}

// AdminResponse is returned by GET /api/admin.
type AdminResponse struct {
	TotalSubscribers int        `json:"totalSubscribers"`
	Emails           []string   `json:"emails"`
	LastUpdated      *time.Time `json:"lastUpdated,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
	StorageType      string     `json:"storageType"`
}

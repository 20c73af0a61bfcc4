package models

import "time"

// StoredObject describes one object in the object store.
type StoredObject struct {
	Key          string    `json:"key"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

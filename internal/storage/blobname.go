package storage

import "github.com/google/uuid"

func uuidBlobName() string {
	return uuid.New().String() + ".blob"
}

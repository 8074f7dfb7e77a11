package domain

import "time"

// BatchStatus enumerates try-on batch lifecycle states.
type BatchStatus string

const (
	BatchStatusQueued     BatchStatus = "queued"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusDone       BatchStatus = "done"
	BatchStatusFailed     BatchStatus = "failed"
)

// TryOnModel is a virtual model users dress garments on. Each model carries
// one reference image per pose.
type TryOnModel struct {
	ID          int64
	Name        string
	Description string
	Images      []ModelImage
}

// ModelImage is a single posed reference photo of a try-on model.
type ModelImage struct {
	ID        int64
	ModelID   int64
	PoseLabel string
	ImageURL  string
}

// Task groups a user's try-on batches against a chosen model.
type Task struct {
	ID        int64
	UserID    string
	ModelID   int64
	Name      string
	CreatedAt time.Time
}

// Batch is one generation run: every uploaded garment is rendered against
// every pose image of the task's model.
type Batch struct {
	ID         int64
	TaskID     int64
	Status     BatchStatus
	TokensUsed int
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Garments   []GarmentImage
}

// GarmentImage is an uploaded clothing photo attached to a batch.
type GarmentImage struct {
	ID       int64
	BatchID  int64
	ImageURL string
}

// GeneratedImage is a single try-on output for a garment and pose pair.
type GeneratedImage struct {
	ID            int64
	GarmentID     int64
	ModelImageURL string
	PoseLabel     string
	OutputURL     string
	CreatedAt     time.Time
}

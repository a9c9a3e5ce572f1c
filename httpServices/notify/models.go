package notify

import "time"

type CheckpointCodeRequest struct {
	Phone      string    `json:"phone"`
	Code       string    `json:"code"`
	Checkpoint string    `json:"checkpoint"`
	ExpiresAt  time.Time `json:"expires_at"`
}

package dto

// SeedMessageRow is one backfill row accepted by the seeding endpoint.
type SeedMessageRow struct {
	SenderID   string `json:"sender_id" validate:"required,max=64"`
	ReceiverID string `json:"receiver_id" validate:"required,max=64"`
	Body       string `json:"body" validate:"required,min=1,max=4000"`
}

// SeedMessagesRequest wraps a batch of backfill rows.
type SeedMessagesRequest struct {
	Rows []SeedMessageRow `json:"rows" validate:"required,min=1,max=5000,dive"`
}

// SeedResult summarises a completed backfill run.
type SeedResult struct {
	Inserted int64 `json:"inserted"`
	Batches  int   `json:"batches"`
}

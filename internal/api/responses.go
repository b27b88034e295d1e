package api

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
}

type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// WebhookResponse tells the gateway whether this delivery produced an
// effect. Duplicates still get transport success so the gateway stops
// retrying.
type WebhookResponse struct {
	Applied bool `json:"applied"`
}

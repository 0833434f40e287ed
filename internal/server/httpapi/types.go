package httpapi

// Request/response DTOs for the JSON API.

type uploadResponse struct {
	ArtifactID     string `json:"artifact_id"`
	OriginalName   string `json:"original_name"`
	Extension      string `json:"extension"`
	PlaintextSize  int64  `json:"plaintext_size"`
	CiphertextSize int64  `json:"ciphertext_size"`
}

type linkRequest struct {
	ArtifactID    string `json:"artifact_id"`
	ExpirySeconds int64  `json:"expiry_seconds"`
	Password      string `json:"password,omitempty"`
}

type linkResponse struct {
	Link        string `json:"link"`
	ExpiresAt   int64  `json:"expires_at"`
	HasPassword bool   `json:"has_password"`
}

type infoResponse struct {
	Name           string `json:"name"`
	Extension      string `json:"extension"`
	PlaintextSize  int64  `json:"plaintext_size"`
	CiphertextSize int64  `json:"ciphertext_size"`
	HasPassword    bool   `json:"has_password"`
	ExpiresAt      int64  `json:"expires_at,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

package domain

// Stats es una proyección agregada de los UserRecord.
type Stats struct {
	TotalUsers    int64 `json:"total_users"`
	VerifiedUsers int64 `json:"verified_users"`
	TotalAttempts int64 `json:"total_attempts"`
}

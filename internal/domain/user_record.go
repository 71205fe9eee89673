package domain

import "time"

// UserRecord guarda contadores y estado de verificación por usuario de Telegram.
type UserRecord struct {
	UserID           int64      `json:"user_id"`
	FreeAttemptsUsed int        `json:"free_attempts_used"`
	IsVerified       bool       `json:"is_verified"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	TotalAttempts    int64      `json:"total_attempts"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// RemainingFree devuelve cuántos intentos gratis le quedan al usuario.
// Para usuarios verificados no aplica y devuelve -1.
func (u UserRecord) RemainingFree(limit int) int {
	if u.IsVerified {
		return -1
	}
	remaining := limit - u.FreeAttemptsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

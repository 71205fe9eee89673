package domain

import "time"

// VerificationToken representa un token de verificación persistido.
// Solo se guarda el digest; el token en claro viaja una única vez en el link.
type VerificationToken struct {
	Digest     string     `json:"-"`
	UserID     int64      `json:"user_id"`
	IssuedAt   time.Time  `json:"issued_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

func (t VerificationToken) Consumed() bool {
	return t.ConsumedAt != nil
}

// ExpiresAt calcula el vencimiento a partir de la emisión.
func (t VerificationToken) ExpiresAt(timeout time.Duration) time.Time {
	return t.IssuedAt.Add(timeout)
}

// Expired aplica la regla now - issuedAt > timeout.
func (t VerificationToken) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(t.IssuedAt) > timeout
}

// ResolveOutcome es el resultado de resolver un token dentro de la transacción.
type ResolveOutcome string

const (
	ResolveSuccess         ResolveOutcome = "success"
	ResolveExpired         ResolveOutcome = "expired"
	ResolveNotFound        ResolveOutcome = "not_found"
	ResolveAlreadyConsumed ResolveOutcome = "already_consumed"
)

package domain

import "time"

// Artifact es una referencia opaca al resultado de un leech.
// El núcleo nunca inspecciona su contenido, solo lo reenvía.
type Artifact struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int    `json:"message_id"`
	Link      string `json:"link,omitempty"`
}

// ForwardEvent describe un reenvío best-effort al canal de respaldo. No se persiste.
type ForwardEvent struct {
	ID                   string    `json:"id"`
	Artifact             Artifact  `json:"artifact"`
	DestinationChannelID int64     `json:"destination_channel_id"`
	UserID               int64     `json:"user_id"`
	SenderName           string    `json:"sender_name,omitempty"`
	SenderUsername       string    `json:"sender_username,omitempty"`
	TotalAttempts        int64     `json:"total_attempts"`
	Verified             bool      `json:"verified"`
	CreatedAt            time.Time `json:"created_at"`
}

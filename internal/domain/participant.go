package domain

// ParticipantID identifies one connected client inside a room,
// assigned by the server when the session connects.
type ParticipantID string

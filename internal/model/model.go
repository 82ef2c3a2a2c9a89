package model

import "time"

// TimeLayout is the wire and storage format of meeting timestamps.
const TimeLayout = "2006-01-02 15:04:05"

// Meeting is one user's attendance at a booked meeting. A booking for N users
// produces N rows sharing name and window.
type Meeting struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	MeetingName string    `json:"meeting_name"`
	CreatedAt   time.Time `json:"created_at"`
}

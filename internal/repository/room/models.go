package room

import "time"

type Presence struct {
	IsOnline bool
	LastSeen time.Time
}

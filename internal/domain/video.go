package domain

import (
	"math"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"
)

type SourceKind string

const (
	SourceYouTube SourceKind = "youtube"
	SourceDirect  SourceKind = "direct"
	SourceUpload  SourceKind = "upload"
)

func (k SourceKind) Valid() bool {
	switch k {
	case SourceYouTube, SourceDirect, SourceUpload:
		return true
	}
	return false
}

type PlaybackStatus string

const (
	StatusIdle    PlaybackStatus = "idle"
	StatusReady   PlaybackStatus = "ready"
	StatusPlaying PlaybackStatus = "playing"
)

// VideoDescriptor says what should play; VideoState adds where the play head is.
type VideoDescriptor struct {
	Type       SourceKind `json:"type"`
	Url        string     `json:"url"`
	ExternalId string     `json:"id,omitempty"`
	Title      string     `json:"title,omitempty"`
	Duration   *float64   `json:"duration,omitempty"`
}

type VideoState struct {
	Type        SourceKind `json:"type"`
	Url         string     `json:"url"`
	ExternalId  string     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Duration    *float64   `json:"duration"`
	CurrentTime float64    `json:"currentTime"`
	IsPlaying   bool       `json:"isPlaying"`
	SetBy       string     `json:"setBy"`
	SetAt       time.Time  `json:"setAt"`
	LastUpdated time.Time  `json:"lastUpdated"`
	Version     int64      `json:"version"`
}

const DefaultVideoTitle = "Untitled Video"

var youtubeIdRegexp = regexp.MustCompile(`^.*(youtu\.be/|v/|u/\w/|embed/|watch\?v=|&v=)([^#&?]*).*`)

// ExtractYouTubeId returns the 11 character video id of a YouTube link.
func ExtractYouTubeId(rawURL string) (string, bool) {
	m := youtubeIdRegexp.FindStringSubmatch(rawURL)
	if len(m) < 3 || len(m[2]) != 11 {
		return "", false
	}
	return m[2], true
}

// ParseVideoURL classifies a link as a YouTube reference or a direct media URL.
func ParseVideoURL(rawURL string) (VideoDescriptor, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return VideoDescriptor{}, ErrInvalidVideoURL
	}

	if isYouTubeHost(u.Hostname()) {
		id, ok := ExtractYouTubeId(u.String())
		if !ok {
			return VideoDescriptor{}, ErrInvalidVideoURL
		}
		return VideoDescriptor{
			Type:       SourceYouTube,
			Url:        "https://www.youtube.com/watch?v=" + id,
			ExternalId: id,
		}, nil
	}

	return VideoDescriptor{
		Type: SourceDirect,
		Url:  u.String(),
	}, nil
}

func isYouTubeHost(host string) bool {
	host = strings.ToLower(host)
	return host == "youtu.be" ||
		host == "youtube.com" || strings.HasSuffix(host, ".youtube.com") ||
		host == "youtube-nocookie.com" || strings.HasSuffix(host, ".youtube-nocookie.com")
}

func (r *Room) Status() PlaybackStatus {
	switch {
	case r.CurrentVideo == nil:
		return StatusIdle
	case r.CurrentVideo.IsPlaying:
		return StatusPlaying
	default:
		return StatusReady
	}
}

// SetVideo replaces the video state wholesale and leaves the room Ready.
func (r *Room) SetVideo(d VideoDescriptor, setBy string, now time.Time) *VideoState {
	title := d.Title
	if title == "" {
		title = DefaultVideoTitle
	}

	r.VideoVersion++
	r.CurrentVideo = &VideoState{
		Type:        d.Type,
		Url:         d.Url,
		ExternalId:  d.ExternalId,
		Title:       title,
		Duration:    d.Duration,
		CurrentTime: 0,
		IsPlaying:   false,
		SetBy:       setBy,
		SetAt:       now,
		LastUpdated: now,
		Version:     r.VideoVersion,
	}
	r.UpdatedAt = now

	return r.CurrentVideo
}

// Play is accepted from Ready and, as a position overwrite, from Playing.
func (r *Room) Play(position float64, now time.Time) error {
	return r.transition(position, now, func(v *VideoState) {
		v.IsPlaying = true
	})
}

// Pause is accepted from Playing and, as a position overwrite, from Ready.
func (r *Room) Pause(position float64, now time.Time) error {
	return r.transition(position, now, func(v *VideoState) {
		v.IsPlaying = false
	})
}

// Seek keeps the playing flag as it is.
func (r *Room) Seek(position float64, now time.Time) error {
	return r.transition(position, now, func(*VideoState) {})
}

func (r *Room) transition(position float64, now time.Time, apply func(*VideoState)) error {
	if r.CurrentVideo == nil {
		return ErrNoVideo
	}

	pos, err := r.normalizePosition(position)
	if err != nil {
		return err
	}

	v := r.CurrentVideo
	apply(v)
	v.CurrentTime = pos
	v.LastUpdated = now
	r.VideoVersion++
	v.Version = r.VideoVersion
	r.UpdatedAt = now

	return nil
}

func (r *Room) normalizePosition(position float64) (float64, error) {
	if math.IsNaN(position) || math.IsInf(position, 0) || position < 0 {
		return 0, ErrInvalidPosition
	}
	if d := r.CurrentVideo.Duration; d != nil && position > *d {
		return *d, nil
	}
	return position, nil
}

// ReportDuration records the duration once a client learns it. Later reports are ignored.
func (r *Room) ReportDuration(duration float64, now time.Time) (bool, error) {
	if r.CurrentVideo == nil {
		return false, ErrNoVideo
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return false, ErrInvalidDuration
	}
	if r.CurrentVideo.Duration != nil {
		return false, nil
	}

	v := r.CurrentVideo
	v.Duration = &duration
	v.LastUpdated = now
	r.VideoVersion++
	v.Version = r.VideoVersion
	r.UpdatedAt = now

	return true, nil
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (r *Room) Clone() *Room {
	c := *r
	c.Participants = slices.Clone(r.Participants)
	if r.CurrentVideo != nil {
		v := *r.CurrentVideo
		if v.Duration != nil {
			d := *v.Duration
			v.Duration = &d
		}
		c.CurrentVideo = &v
	}
	return &c
}

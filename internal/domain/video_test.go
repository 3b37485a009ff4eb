package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVideoURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    VideoDescriptor
		wantErr error
	}{
		{
			name: "watch url",
			url:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42",
			want: VideoDescriptor{Type: SourceYouTube, Url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", ExternalId: "dQw4w9WgXcQ"},
		},
		{
			name: "short url",
			url:  "https://youtu.be/dQw4w9WgXcQ",
			want: VideoDescriptor{Type: SourceYouTube, Url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", ExternalId: "dQw4w9WgXcQ"},
		},
		{
			name: "embed url",
			url:  "https://www.youtube.com/embed/dQw4w9WgXcQ",
			want: VideoDescriptor{Type: SourceYouTube, Url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", ExternalId: "dQw4w9WgXcQ"},
		},
		{
			name: "direct url",
			url:  "https://cdn.example.com/dev/movie.mp4",
			want: VideoDescriptor{Type: SourceDirect, Url: "https://cdn.example.com/dev/movie.mp4"},
		},
		{
			name:    "youtube without id",
			url:     "https://www.youtube.com/feed/trending",
			wantErr: ErrInvalidVideoURL,
		},
		{
			name:    "not http",
			url:     "ftp://example.com/movie.mp4",
			wantErr: ErrInvalidVideoURL,
		},
		{
			name:    "garbage",
			url:     "movie night",
			wantErr: ErrInvalidVideoURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVideoURL(tt.url)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func readyRoom(t *testing.T) *Room {
	t.Helper()
	r := newTestRoom(10)
	r.SetVideo(VideoDescriptor{Type: SourceDirect, Url: "https://cdn.example.com/movie.mp4"}, "host", t0)
	return r
}

func TestTransitionsFromIdle(t *testing.T) {
	r := newTestRoom(10)

	assert.ErrorIs(t, r.Play(1, t0), ErrNoVideo)
	assert.ErrorIs(t, r.Pause(1, t0), ErrNoVideo)
	assert.ErrorIs(t, r.Seek(1, t0), ErrNoVideo)
	assert.Equal(t, StatusIdle, r.Status())
}

func TestSetVideoResetsPlayhead(t *testing.T) {
	r := readyRoom(t)
	require.NoError(t, r.Play(30, t0.Add(time.Second)))

	later := t0.Add(time.Minute)
	v := r.SetVideo(VideoDescriptor{Type: SourceYouTube, Url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", ExternalId: "dQw4w9WgXcQ", Title: "Song"}, "host", later)

	assert.Equal(t, StatusReady, r.Status())
	assert.Equal(t, 0.0, v.CurrentTime)
	assert.False(t, v.IsPlaying)
	assert.Equal(t, "host", v.SetBy)
	assert.Equal(t, later, v.SetAt)
	assert.Equal(t, later, v.LastUpdated)
	assert.Equal(t, "Song", v.Title)
	assert.Nil(t, v.Duration)
}

func TestSetVideoDefaultTitle(t *testing.T) {
	r := readyRoom(t)
	assert.Equal(t, DefaultVideoTitle, r.CurrentVideo.Title)
}

func TestPlayPauseSeek(t *testing.T) {
	r := readyRoom(t)

	require.NoError(t, r.Play(12.5, t0.Add(time.Second)))
	assert.Equal(t, StatusPlaying, r.Status())
	assert.Equal(t, 12.5, r.CurrentVideo.CurrentTime)

	require.NoError(t, r.Seek(40, t0.Add(2*time.Second)))
	assert.Equal(t, StatusPlaying, r.Status(), "seek keeps playing flag")
	assert.Equal(t, 40.0, r.CurrentVideo.CurrentTime)

	require.NoError(t, r.Pause(41, t0.Add(3*time.Second)))
	assert.Equal(t, StatusReady, r.Status())
	assert.Equal(t, 41.0, r.CurrentVideo.CurrentTime)

	require.NoError(t, r.Seek(5, t0.Add(4*time.Second)))
	assert.Equal(t, StatusReady, r.Status(), "seek keeps paused flag")
	assert.Equal(t, t0.Add(4*time.Second), r.CurrentVideo.LastUpdated)
}

func TestLastWriteWins(t *testing.T) {
	r := readyRoom(t)

	require.NoError(t, r.Pause(10, t0.Add(time.Second)))
	require.NoError(t, r.Play(9, t0.Add(2*time.Second)))
	require.NoError(t, r.Play(11, t0.Add(3*time.Second)))

	assert.Equal(t, StatusPlaying, r.Status())
	assert.Equal(t, 11.0, r.CurrentVideo.CurrentTime)
}

func TestVersionIsMonotonic(t *testing.T) {
	r := readyRoom(t)

	prev := r.CurrentVideo.Version
	for i, step := range []func() error{
		func() error { return r.Play(1, t0) },
		func() error { return r.Seek(2, t0) },
		func() error { return r.Pause(3, t0) },
		func() error { r.SetVideo(VideoDescriptor{Type: SourceDirect, Url: "https://x.test/a.mp4"}, "host", t0); return nil },
	} {
		require.NoError(t, step(), "step %d", i)
		assert.Greater(t, r.CurrentVideo.Version, prev)
		prev = r.CurrentVideo.Version
	}
}

func TestInvalidPositions(t *testing.T) {
	r := readyRoom(t)

	for _, pos := range []float64{-1, math.NaN(), math.Inf(1)} {
		assert.ErrorIs(t, r.Seek(pos, t0), ErrInvalidPosition)
	}
	assert.Equal(t, 0.0, r.CurrentVideo.CurrentTime)
}

func TestPositionClampedToDuration(t *testing.T) {
	r := readyRoom(t)

	changed, err := r.ReportDuration(100, t0)
	require.NoError(t, err)
	assert.True(t, changed)

	require.NoError(t, r.Seek(250, t0))
	assert.Equal(t, 100.0, r.CurrentVideo.CurrentTime)

	changed, err = r.ReportDuration(120, t0)
	require.NoError(t, err)
	assert.False(t, changed, "known duration is kept")
	assert.Equal(t, 100.0, *r.CurrentVideo.Duration)

	_, err = r.ReportDuration(-3, t0)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestCloneIsDeep(t *testing.T) {
	r := readyRoom(t)
	_, err := r.ReportDuration(60, t0)
	require.NoError(t, err)

	c := r.Clone()
	require.NoError(t, c.Play(5, t0))
	require.NoError(t, c.AddParticipant(User{Id: "u1"}, t0))
	*c.CurrentVideo.Duration = 1

	assert.False(t, r.CurrentVideo.IsPlaying)
	assert.Equal(t, 60.0, *r.CurrentVideo.Duration)
	assert.Len(t, r.Participants, 1)
}

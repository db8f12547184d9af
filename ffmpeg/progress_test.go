// ffwatcher/ffmpeg/progress_test.go
package ffmpeg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgress(t *testing.T) {
	t.Run("progress lines finalize snapshots", func(t *testing.T) {
		stream := strings.Join([]string{
			"frame=10",
			"progress=continue",
			"frame=20",
			"out_time_ms=2000000",
			"progress=end",
		}, "\n") + "\n"

		var got []Snapshot
		err := ParseProgress(strings.NewReader(stream), func(s Snapshot) {
			got = append(got, s)
		})
		require.NoError(t, err)

		require.Len(t, got, 2)
		assert.EqualValues(t, 10, got[0].Frame)
		assert.Equal(t, "continue", got[0].Phase)
		assert.EqualValues(t, 0, got[0].ElapsedSeconds())

		assert.EqualValues(t, 20, got[1].Frame)
		assert.EqualValues(t, 2, got[1].ElapsedSeconds())
		assert.Equal(t, "end", got[1].Phase)
	})

	t.Run("read loop stops at the terminator", func(t *testing.T) {
		stream := "progress=end\nframe=999\nprogress=continue\n"
		var count int
		err := ParseProgress(strings.NewReader(stream), func(Snapshot) { count++ })
		require.NoError(t, err)
		assert.Equal(t, 1, count, "nothing after progress=end may be consumed")
	})

	t.Run("all fields are parsed", func(t *testing.T) {
		stream := strings.Join([]string{
			"frame=120",
			"fps=29.97",
			"bitrate=1532.4kbits/s",
			"total_size=4096000",
			"out_time_us=8500000",
			"speed=1.5x",
			"progress=end",
		}, "\n") + "\n"

		var got Snapshot
		err := ParseProgress(strings.NewReader(stream), func(s Snapshot) { got = s })
		require.NoError(t, err)
		assert.EqualValues(t, 120, got.Frame)
		assert.Equal(t, 29.97, got.FPS)
		assert.Equal(t, "1532.4kbits/s", got.Bitrate)
		assert.EqualValues(t, 4096000, got.TotalSize)
		assert.EqualValues(t, 8, got.ElapsedSeconds())
		assert.Equal(t, 1.5, got.Speed)
	})

	t.Run("working record is cleared between cycles", func(t *testing.T) {
		stream := "frame=10\nprogress=continue\nprogress=end\n"
		var got []Snapshot
		err := ParseProgress(strings.NewReader(stream), func(s Snapshot) { got = append(got, s) })
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.EqualValues(t, 0, got[1].Frame, "second snapshot must not inherit the first frame count")
	})

	t.Run("truncated stream is an error", func(t *testing.T) {
		stream := "frame=10\nprogress=continue\nframe=20\n"
		var count int
		err := ParseProgress(strings.NewReader(stream), func(Snapshot) { count++ })
		assert.ErrorIs(t, err, ErrTruncatedProgress)
		assert.Equal(t, 1, count)
	})

	t.Run("unknown and malformed lines are ignored", func(t *testing.T) {
		stream := "garbage line\ndup_frames=0\nframe=5\nprogress=end\n"
		var got Snapshot
		err := ParseProgress(strings.NewReader(stream), func(s Snapshot) { got = s })
		require.NoError(t, err)
		assert.EqualValues(t, 5, got.Frame)
	})
}

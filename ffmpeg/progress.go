// ffwatcher/ffmpeg/progress.go
package ffmpeg

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// ErrTruncatedProgress is returned when the progress stream ends without the
// progress=end terminator, which means the tool died mid-encode even if its
// exit code claims otherwise.
var ErrTruncatedProgress = errors.New("progress stream ended without progress=end")

// Snapshot is one finalized record from ffmpeg's -progress key=value stream.
// A new snapshot replaces the previous one on every progress line.
type Snapshot struct {
	Frame     int64
	FPS       float64
	Bitrate   string
	TotalSize int64
	OutTimeUs int64
	Speed     float64
	Phase     string
}

// ElapsedSeconds converts the microsecond-scaled output time into whole
// seconds.
func (s Snapshot) ElapsedSeconds() int64 { return s.OutTimeUs / 1_000_000 }

// ParseProgress reads the key=value progress micro-protocol line by line,
// accumulating pairs into a working record. Each "progress" line finalizes
// the record into a Snapshot handed to fn; progress=end terminates the loop
// successfully. EOF without the terminator is ErrTruncatedProgress.
func ParseProgress(r io.Reader, fn func(Snapshot)) error {
	sc := bufio.NewScanner(r)
	var cur Snapshot

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "frame":
			if v, err := strconv.ParseInt(value, 10, 64); err == nil {
				cur.Frame = v
			}
		case "fps":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				cur.FPS = v
			}
		case "bitrate":
			cur.Bitrate = value
		case "total_size":
			if v, err := strconv.ParseInt(value, 10, 64); err == nil {
				cur.TotalSize = v
			}
		case "out_time_us":
			if v, err := strconv.ParseInt(value, 10, 64); err == nil && v >= 0 {
				cur.OutTimeUs = v
			}
		case "out_time_ms":
			// Despite the name this field is microsecond-scaled, same as
			// out_time_us.
			if v, err := strconv.ParseInt(value, 10, 64); err == nil && v >= 0 {
				cur.OutTimeUs = v
			}
		case "speed":
			if v, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
				cur.Speed = v
			}
		case "progress":
			cur.Phase = value
			if fn != nil {
				fn(cur)
			}
			if value == "end" {
				return nil
			}
			cur = Snapshot{}
		}
	}

	if err := sc.Err(); err != nil {
		return err
	}
	return ErrTruncatedProgress
}

package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"

	"github.com/hammamikhairi/chatgod/internal/domain"
)

// resampleQuality is passed to beep.Resample.
const resampleQuality = 4

// audioClip is a persisted mp3 artifact and its decoded samples.
type audioClip struct {
	path     string
	duration time.Duration
	pcm      []byte
	player   *oto.Player
}

func (c *audioClip) Path() string            { return c.path }
func (c *audioClip) Duration() time.Duration { return c.duration }

func asClip(c domain.Clip) (*audioClip, error) {
	ac, ok := c.(*audioClip)
	if !ok || ac == nil {
		return nil, fmt.Errorf("%w: foreign clip %T", domain.ErrPlaybackFailed, c)
	}
	return ac, nil
}

// persist writes audio to a new temporary file in dir.
func persist(dir string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", domain.ErrEmptyAudio
	}
	f, err := os.CreateTemp(dir, "chatgod-*.mp3")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := f.Write(audio); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return f.Name(), nil
}

// decode reads the mp3 at path. The duration is taken from the source
// stream; when pcm is requested, samples are resampled to rate and packed
// as interleaved signed 16-bit little-endian stereo.
func decode(path string, rate beep.SampleRate, pcm bool) (time.Duration, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, err
	}
	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return 0, nil, fmt.Errorf("decoding mp3: %w", err)
	}
	defer streamer.Close()

	duration := format.SampleRate.D(streamer.Len())
	if !pcm {
		return duration, nil, nil
	}

	var s beep.Streamer = streamer
	if format.SampleRate != rate {
		s = beep.Resample(resampleQuality, format.SampleRate, rate, streamer)
	}

	var out bytes.Buffer
	out.Grow(rate.N(duration) * ChannelCount * bytesPerSample)
	buf := make([][2]float64, 512)
	frame := make([]byte, ChannelCount*bytesPerSample)
	for {
		n, ok := s.Stream(buf)
		for _, sample := range buf[:n] {
			binary.LittleEndian.PutUint16(frame[0:], uint16(toInt16(sample[0])))
			binary.LittleEndian.PutUint16(frame[2:], uint16(toInt16(sample[1])))
			out.Write(frame)
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return 0, nil, fmt.Errorf("decoding mp3: %w", err)
	}
	return duration, out.Bytes(), nil
}

func toInt16(v float64) int16 {
	v = math.Max(-1, math.Min(1, v))
	return int16(v * math.MaxInt16)
}

// removeArtifact deletes a clip's file; a file that is already gone is
// not an error.
func removeArtifact(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

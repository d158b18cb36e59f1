package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
)

func quietLog() *logger.Logger { return logger.New(logger.LevelOff, nil) }

// countingSynth returns fixed audio or error and counts calls.
type countingSynth struct {
	mu    sync.Mutex
	calls int
	audio []byte
	err   error
}

func (s *countingSynth) Synthesize(context.Context, string, string, domain.TextType) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.audio, nil
}

func (s *countingSynth) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// ── Polly ────────────────────────────────────────────────────────

type fakePollyAPI struct {
	in  *polly.SynthesizeSpeechInput
	out *polly.SynthesizeSpeechOutput
	err error
}

func (f *fakePollyAPI) SynthesizeSpeech(_ context.Context, in *polly.SynthesizeSpeechInput, _ ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	f.in = in
	return f.out, f.err
}

func TestPollyBuildsRequest(t *testing.T) {
	api := &fakePollyAPI{out: &polly.SynthesizeSpeechOutput{AudioStream: io.NopCloser(strings.NewReader("mp3"))}}
	p, err := NewPolly(context.Background(), "eu-west-1", "", "", quietLog(), withAPI(api), WithSampleRate(16000))
	require.NoError(t, err)

	audio, err := p.Synthesize(context.Background(), "<speak>hi</speak>", "Brian", domain.TextSSML)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), audio)

	assert.Equal(t, "<speak>hi</speak>", aws.ToString(api.in.Text))
	assert.Equal(t, types.TextTypeSsml, api.in.TextType)
	assert.Equal(t, types.VoiceId("Brian"), api.in.VoiceId)
	assert.Equal(t, types.OutputFormatMp3, api.in.OutputFormat)
	assert.Equal(t, "16000", aws.ToString(api.in.SampleRate))
	assert.Equal(t, types.EngineStandard, api.in.Engine)
}

func TestPollyRequiresCredentials(t *testing.T) {
	for _, keys := range [][2]string{{"", ""}, {"AKIA", ""}, {"", "secret"}} {
		p, err := NewPolly(context.Background(), "us-east-1", keys[0], keys[1], quietLog())
		assert.ErrorIs(t, err, domain.ErrMissingConfig)
		assert.Nil(t, p)
	}
}

func TestPollyPlainText(t *testing.T) {
	api := &fakePollyAPI{out: &polly.SynthesizeSpeechOutput{AudioStream: io.NopCloser(strings.NewReader("mp3"))}}
	p := newPolly(quietLog(), withAPI(api))

	_, err := p.Synthesize(context.Background(), "hello", "Joanna", domain.TextPlain)
	require.NoError(t, err)
	assert.Equal(t, types.TextTypeText, api.in.TextType)
}

func TestPollyErrors(t *testing.T) {
	p := newPolly(quietLog(), withAPI(&fakePollyAPI{err: errors.New("throttled")}))
	_, err := p.Synthesize(context.Background(), "x", "Joanna", domain.TextPlain)
	assert.ErrorIs(t, err, domain.ErrSynthesisFailed)

	p = newPolly(quietLog(), withAPI(&fakePollyAPI{out: &polly.SynthesizeSpeechOutput{AudioStream: io.NopCloser(strings.NewReader(""))}}))
	_, err = p.Synthesize(context.Background(), "x", "Joanna", domain.TextPlain)
	assert.ErrorIs(t, err, domain.ErrEmptyAudio)

	p = newPolly(quietLog(), withAPI(&fakePollyAPI{out: &polly.SynthesizeSpeechOutput{}}))
	_, err = p.Synthesize(context.Background(), "x", "Joanna", domain.TextPlain)
	assert.ErrorIs(t, err, domain.ErrEmptyAudio)
}

// ── Google ───────────────────────────────────────────────────────

type fakeGenerator struct {
	text string
	err  error
}

func (f *fakeGenerator) GenerateSpeech(text string) (io.Reader, error) {
	f.text = text
	if f.err != nil {
		return nil, f.err
	}
	return strings.NewReader("gtts-mp3"), nil
}

func TestGoogleStripsMarkup(t *testing.T) {
	gen := &fakeGenerator{}
	g := &Google{speech: gen, log: quietLog()}

	audio, err := g.Synthesize(context.Background(), `<speak><prosody volume="x-loud">fish &amp; chips</prosody></speak>`, "Brian", domain.TextSSML)
	require.NoError(t, err)
	assert.Equal(t, []byte("gtts-mp3"), audio)
	assert.Equal(t, "fish & chips", gen.text)
}

func TestGoogleErrors(t *testing.T) {
	g := &Google{speech: &fakeGenerator{err: errors.New("429")}, log: quietLog()}
	_, err := g.Synthesize(context.Background(), "hello", "", domain.TextPlain)
	assert.ErrorIs(t, err, domain.ErrSynthesisFailed)

	_, err = g.Synthesize(context.Background(), "  ", "", domain.TextPlain)
	assert.ErrorIs(t, err, domain.ErrEmptyAudio)
}

// ── Fallback ─────────────────────────────────────────────────────

func TestFallbackSwitchesAfterMaxFailures(t *testing.T) {
	primary := &countingSynth{err: errors.New("down")}
	secondary := &countingSynth{audio: []byte("backup")}
	f := NewFallback(primary, secondary, 2, quietLog())

	_, err := f.Synthesize(context.Background(), "a", "v", domain.TextPlain)
	require.Error(t, err)
	assert.False(t, f.UsingFallback())
	assert.Equal(t, 0, secondary.count())

	audio, err := f.Synthesize(context.Background(), "b", "v", domain.TextPlain)
	require.NoError(t, err)
	assert.Equal(t, []byte("backup"), audio)
	assert.True(t, f.UsingFallback())

	_, err = f.Synthesize(context.Background(), "c", "v", domain.TextPlain)
	require.NoError(t, err)
	assert.Equal(t, 2, primary.count(), "primary is not retried after switching")
}

func TestFallbackSuccessResetsFailures(t *testing.T) {
	primary := &countingSynth{err: errors.New("flaky")}
	f := NewFallback(primary, &countingSynth{}, 2, quietLog())

	_, _ = f.Synthesize(context.Background(), "a", "v", domain.TextPlain)
	primary.mu.Lock()
	primary.err, primary.audio = nil, []byte("ok")
	primary.mu.Unlock()
	_, err := f.Synthesize(context.Background(), "b", "v", domain.TextPlain)
	require.NoError(t, err)

	primary.mu.Lock()
	primary.err = errors.New("flaky")
	primary.mu.Unlock()
	_, err = f.Synthesize(context.Background(), "c", "v", domain.TextPlain)
	require.Error(t, err)
	assert.False(t, f.UsingFallback())
}

func TestFallbackBothFail(t *testing.T) {
	pErr, sErr := errors.New("primary"), errors.New("secondary")
	f := NewFallback(&countingSynth{err: pErr}, &countingSynth{err: sErr}, 1, quietLog())

	_, err := f.Synthesize(context.Background(), "a", "v", domain.TextPlain)
	assert.ErrorIs(t, err, pErr)
	assert.ErrorIs(t, err, sErr)
}

func TestFallbackIgnoresCancellation(t *testing.T) {
	primary := &countingSynth{err: context.Canceled}
	f := NewFallback(primary, &countingSynth{}, 1, quietLog())

	_, err := f.Synthesize(context.Background(), "a", "v", domain.TextPlain)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.UsingFallback())
}

// ── Cache ────────────────────────────────────────────────────────

func TestCacheMemoryHit(t *testing.T) {
	next := &countingSynth{audio: []byte("audio")}
	c := NewCachedSynthesizer(next, "", "mp3", quietLog())

	for i := 0; i < 3; i++ {
		audio, err := c.Synthesize(context.Background(), "hello", "Joanna", domain.TextPlain)
		require.NoError(t, err)
		assert.Equal(t, []byte("audio"), audio)
	}
	assert.Equal(t, 1, next.count())
	hits, misses := c.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCacheKeyIncludesVoiceAndType(t *testing.T) {
	next := &countingSynth{audio: []byte("audio")}
	c := NewCachedSynthesizer(next, "", "mp3", quietLog())

	_, _ = c.Synthesize(context.Background(), "hello", "Joanna", domain.TextPlain)
	_, _ = c.Synthesize(context.Background(), "hello", "Brian", domain.TextPlain)
	_, _ = c.Synthesize(context.Background(), "hello", "Joanna", domain.TextSSML)
	assert.Equal(t, 3, next.count())
	assert.Equal(t, 3, c.Len())
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	next := &countingSynth{err: domain.ErrSynthesisFailed}
	c := NewCachedSynthesizer(next, "", "mp3", quietLog())

	_, err := c.Synthesize(context.Background(), "hello", "Joanna", domain.TextPlain)
	assert.ErrorIs(t, err, domain.ErrSynthesisFailed)
	assert.Zero(t, c.Len())
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	next := &countingSynth{audio: []byte("audio")}
	c := NewCachedSynthesizer(next, "", "mp3", quietLog(), WithMaxEntries(2))
	ctx := context.Background()

	_, _ = c.Synthesize(ctx, "one", "Joanna", domain.TextPlain)
	_, _ = c.Synthesize(ctx, "two", "Joanna", domain.TextPlain)
	_, _ = c.Synthesize(ctx, "one", "Joanna", domain.TextPlain) // hit, "two" is now oldest
	_, _ = c.Synthesize(ctx, "three", "Joanna", domain.TextPlain)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 3, next.count())

	_, _ = c.Synthesize(ctx, "one", "Joanna", domain.TextPlain)
	assert.Equal(t, 3, next.count(), "recently used entry survives")

	_, _ = c.Synthesize(ctx, "two", "Joanna", domain.TextPlain)
	assert.Equal(t, 4, next.count(), "oldest entry was evicted")
	assert.Equal(t, 2, c.Len())
}

func TestCacheStaysBoundedUnderDistinctText(t *testing.T) {
	next := &countingSynth{audio: []byte("audio")}
	c := NewCachedSynthesizer(next, "", "mp3", quietLog(), WithMaxEntries(10))

	for i := 0; i < 500; i++ {
		_, err := c.Synthesize(context.Background(), fmt.Sprintf("line %d", i), "Joanna", domain.TextPlain)
		require.NoError(t, err)
	}
	assert.Equal(t, 10, c.Len())
}

func TestCacheEvictionRemovesDiskFile(t *testing.T) {
	dir := t.TempDir()
	next := &countingSynth{audio: []byte("audio")}
	c := NewCachedSynthesizer(next, dir, "mp3", quietLog(), WithMaxEntries(1))

	_, err := c.Synthesize(context.Background(), "first", "Joanna", domain.TextPlain)
	require.NoError(t, err)
	_, err = c.Synthesize(context.Background(), "second", "Joanna", domain.TextPlain)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, hashKey("second", "Joanna", domain.TextPlain)+".mp3", entries[0].Name())
}

func TestCacheDiskSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	first := &countingSynth{audio: []byte("from-disk")}
	c := NewCachedSynthesizer(first, dir, "mp3", quietLog())
	_, err := c.Synthesize(context.Background(), "hello", "Joanna", domain.TextPlain)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".mp3"))

	second := &countingSynth{audio: []byte("fresh")}
	c2 := NewCachedSynthesizer(second, dir, "mp3", quietLog())
	audio, err := c2.Synthesize(context.Background(), "hello", "Joanna", domain.TextPlain)
	require.NoError(t, err)
	assert.Equal(t, []byte("from-disk"), audio)
	assert.Zero(t, second.count())
}

// ── Clips ────────────────────────────────────────────────────────

func TestSilentPlayerRejectsUndecodableAudio(t *testing.T) {
	dir := t.TempDir()
	p := NewSilentPlayer(quietLog(), WithTempDir(dir))

	_, err := p.Load([]byte("definitely not an mp3"))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed load must not leave an artifact")
}

func TestSilentPlayerEmptyAudio(t *testing.T) {
	p := NewSilentPlayer(quietLog(), WithTempDir(t.TempDir()))
	_, err := p.Load(nil)
	assert.ErrorIs(t, err, domain.ErrEmptyAudio)
}

func TestSilentPlayerUnloadRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path, err := persist(dir, []byte("bytes"))
	require.NoError(t, err)
	clip := &audioClip{path: path}

	p := NewSilentPlayer(quietLog(), WithTempDir(dir))
	require.NoError(t, p.Play(clip))
	require.NoError(t, p.Unload(clip))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// A second release is harmless.
	assert.NoError(t, p.Unload(clip))
}

type otherClip struct{ domain.Clip }

func TestForeignClipRejected(t *testing.T) {
	p := NewSilentPlayer(quietLog())
	assert.ErrorIs(t, p.Play(otherClip{}), domain.ErrPlaybackFailed)
	assert.ErrorIs(t, p.Unload(otherClip{}), domain.ErrPlaybackFailed)
}

func TestToInt16Clamps(t *testing.T) {
	assert.Equal(t, int16(32767), toInt16(2))
	assert.Equal(t, int16(-32767), toInt16(-2))
	assert.Equal(t, int16(0), toInt16(0))
}

package speech

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/dustin/go-humanize"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
)

// Compile-time interface check.
var _ domain.Synthesizer = (*Polly)(nil)

// pollyAPI is the subset of the Polly client used here.
type pollyAPI interface {
	SynthesizeSpeech(ctx context.Context, in *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyOption configures the Polly client.
type PollyOption func(*Polly)

// WithOutputFormat sets the audio format requested from Polly.
func WithOutputFormat(format string) PollyOption {
	return func(p *Polly) {
		p.format = types.OutputFormat(format)
	}
}

// WithSampleRate sets the sample rate requested from Polly.
func WithSampleRate(rate int) PollyOption {
	return func(p *Polly) {
		p.sampleRate = rate
	}
}

// WithEngine selects the Polly engine ("standard", "neural").
func WithEngine(engine string) PollyOption {
	return func(p *Polly) {
		p.engine = types.Engine(engine)
	}
}

// withAPI replaces the AWS client.
func withAPI(api pollyAPI) PollyOption {
	return func(p *Polly) {
		p.api = api
	}
}

// Polly synthesizes speech with Amazon Polly.
type Polly struct {
	api        pollyAPI
	format     types.OutputFormat
	sampleRate int
	engine     types.Engine
	log        *logger.Logger
}

// NewPolly creates a Polly client for region with static credentials.
// Both keys are required.
func NewPolly(ctx context.Context, region, accessKey, secretKey string, log *logger.Logger, opts ...PollyOption) (*Polly, error) {
	p := newPolly(log, opts...)
	if p.api != nil {
		return p, nil
	}
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("%w: polly access key and secret", domain.ErrMissingConfig)
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	p.api = polly.NewFromConfig(cfg)

	log.Debug("polly: client ready (region=%s, format=%s, rate=%d)", region, p.format, p.sampleRate)
	return p, nil
}

func newPolly(log *logger.Logger, opts ...PollyOption) *Polly {
	p := &Polly{
		format:     types.OutputFormat(DefaultOutputFormat),
		sampleRate: DefaultSampleRate,
		engine:     types.Engine(DefaultEngine),
		log:        log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Synthesize renders text with the given voice.
func (p *Polly) Synthesize(ctx context.Context, text, voice string, textType domain.TextType) ([]byte, error) {
	tt := types.TextTypeText
	if textType == domain.TextSSML {
		tt = types.TextTypeSsml
	}

	p.log.Debug("polly: synthesizing %d chars (%s) with voice %s", len(text), tt, voice)
	out, err := p.api.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(text),
		TextType:     tt,
		VoiceId:      types.VoiceId(voice),
		OutputFormat: p.format,
		SampleRate:   aws.String(strconv.Itoa(p.sampleRate)),
		Engine:       p.engine,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: polly: %w", domain.ErrSynthesisFailed, err)
	}
	if out.AudioStream == nil {
		return nil, domain.ErrEmptyAudio
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("%w: reading polly audio: %w", domain.ErrSynthesisFailed, err)
	}
	if len(audio) == 0 {
		return nil, domain.ErrEmptyAudio
	}

	p.log.Debug("polly: got %s of audio", humanize.Bytes(uint64(len(audio))))
	return audio, nil
}

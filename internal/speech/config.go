package speech

// Audio output requested from the synthesis backends and expected by the
// player.
const (
	DefaultOutputFormat = "mp3"
	DefaultSampleRate   = 22050
	ChannelCount        = 2
	bytesPerSample      = 2
)

// Polly defaults.
const (
	DefaultRegion = "us-east-1"
	DefaultEngine = "standard"
)

// DefaultLanguage is the Google Translate speech language.
const DefaultLanguage = "en"

// DefaultMaxFailures is how many consecutive primary failures switch the
// fallback synthesizer over to its secondary backend.
const DefaultMaxFailures = 3

// Package overlay toggles the per-slot stream overlay filter while a slot
// is speaking.
package overlay

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/andreykaipov/goobs"
	"github.com/andreykaipov/goobs/api/requests/filters"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
)

// Defaults for the OBS scene layout.
const (
	DefaultHost         = "localhost"
	DefaultPort         = 4455
	DefaultSource       = "Line In"
	DefaultFilterFormat = "Audio Move Filter %d"
)

// Compile-time interface checks.
var (
	_ domain.Overlay = (*OBS)(nil)
	_ domain.Overlay = NoOp{}
)

// filterAPI is the subset of the goobs filters client used here.
type filterAPI interface {
	SetSourceFilterEnabled(params *filters.SetSourceFilterEnabledParams) (*filters.SetSourceFilterEnabledResponse, error)
}

// Option configures the OBS bridge.
type Option func(*OBS)

// WithSource sets the OBS source that owns the slot filters.
func WithSource(source string) Option {
	return func(o *OBS) {
		o.source = source
	}
}

// WithFilterFormat sets the filter name template; %d is the slot number.
func WithFilterFormat(format string) Option {
	return func(o *OBS) {
		o.filterFormat = format
	}
}

// OBS drives filters through the OBS websocket API. Each call is sent once
// and never retried.
type OBS struct {
	mu           sync.Mutex
	api          filterAPI
	client       *goobs.Client
	source       string
	filterFormat string
	log          *logger.Logger
}

// Dial connects to OBS at host:port.
func Dial(host string, port int, password string, log *logger.Logger, opts ...Option) (*OBS, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	var clientOpts []goobs.Option
	if password != "" {
		clientOpts = append(clientOpts, goobs.WithPassword(password))
	}
	client, err := goobs.New(addr, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to obs at %s: %w", domain.ErrOverlayFailed, addr, err)
	}

	o := newOBS(client.Filters, log, opts...)
	o.client = client
	log.Info("overlay: connected to obs at %s (source %q)", addr, o.source)
	return o, nil
}

func newOBS(api filterAPI, log *logger.Logger, opts ...Option) *OBS {
	o := &OBS{
		api:          api,
		source:       DefaultSource,
		filterFormat: DefaultFilterFormat,
		log:          log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FilterName returns the filter toggled for slot.
func (o *OBS) FilterName(slot domain.SlotID) string {
	if !strings.Contains(o.filterFormat, "%d") {
		return fmt.Sprintf("%s %d", o.filterFormat, slot)
	}
	return fmt.Sprintf(o.filterFormat, slot)
}

// SetFilterEnabled switches the slot's filter on or off.
func (o *OBS) SetFilterEnabled(ctx context.Context, slot domain.SlotID, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	source, filter := o.source, o.FilterName(slot)
	o.mu.Lock()
	_, err := o.api.SetSourceFilterEnabled(&filters.SetSourceFilterEnabledParams{
		SourceName:    &source,
		FilterName:    &filter,
		FilterEnabled: &enabled,
	})
	o.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %s/%s enabled=%t: %w", domain.ErrOverlayFailed, source, filter, enabled, err)
	}

	o.log.Debug("overlay: %s enabled=%t", filter, enabled)
	return nil
}

// Close disconnects from OBS.
func (o *OBS) Close() error {
	if o.client == nil {
		return nil
	}
	return o.client.Disconnect()
}

// NoOp is the overlay used when OBS is disabled.
type NoOp struct{}

// SetFilterEnabled does nothing.
func (NoOp) SetFilterEnabled(context.Context, domain.SlotID, bool) error { return nil }

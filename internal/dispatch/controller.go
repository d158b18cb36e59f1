// Package dispatch owns the per-slot speaker state and routes chat messages
// from the active speakers to the render pipeline.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
	"github.com/hammamikhairi/chatgod/internal/pool"
)

// DefaultCommandPrefix is joined with the slot number to form the chat
// registration command, e.g. "!player1".
const DefaultCommandPrefix = "!player"

// Option configures the controller.
type Option func(*Controller)

// WithSlotCount sets the number of slots.
func WithSlotCount(n int) Option {
	return func(c *Controller) {
		c.slotCount = n
	}
}

// WithCommandPrefix sets the registration command prefix.
func WithCommandPrefix(prefix string) Option {
	return func(c *Controller) {
		c.prefix = prefix
	}
}

// WithDefaultVoice sets the voice every slot starts with.
func WithDefaultVoice(voice string) Option {
	return func(c *Controller) {
		c.defaultVoice = voice
	}
}

// WithPoolOptions configures every slot's pool.
func WithPoolOptions(opts ...pool.Option) Option {
	return func(c *Controller) {
		c.poolOpts = append(c.poolOpts, opts...)
	}
}

// WithEvents sets the sink for dashboard notifications.
func WithEvents(sink domain.EventSink) Option {
	return func(c *Controller) {
		c.events = sink
	}
}

// WithJobs sets where render jobs are submitted.
func WithJobs(jobs domain.JobSubmitter) Option {
	return func(c *Controller) {
		c.jobs = jobs
	}
}

// slot is one speaker channel. All fields are guarded by mu and are read
// and written as a unit.
type slot struct {
	mu            sync.Mutex
	id            domain.SlotID
	activeSpeaker string
	ttsEnabled    bool
	voice         string
	pool          *pool.Pool
}

func (s *slot) state() domain.SlotState {
	return domain.SlotState{
		ID:            s.id,
		ActiveSpeaker: s.activeSpeaker,
		TTSEnabled:    s.ttsEnabled,
		Voice:         s.voice,
		PoolSize:      s.pool.Len(),
	}
}

// Controller is the single owner of slot state. Message routing runs on the
// ingestion goroutine while commands arrive from the dashboard; each slot
// is locked independently.
type Controller struct {
	slots        []*slot
	commands     map[string]domain.SlotID
	slotCount    int
	prefix       string
	defaultVoice string
	poolOpts     []pool.Option
	events       domain.EventSink
	jobs         domain.JobSubmitter
	log          *logger.Logger
	now          func() time.Time
}

// New creates a controller with every slot enabled, using the default
// voice and no active speaker.
func New(log *logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		slotCount:    domain.DefaultSlotCount,
		prefix:       DefaultCommandPrefix,
		defaultVoice: domain.DefaultVoice,
		events:       domain.Events(nil),
		log:          log,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.commands = make(map[string]domain.SlotID, c.slotCount)
	for i := 1; i <= c.slotCount; i++ {
		id := domain.SlotID(i)
		c.slots = append(c.slots, &slot{
			id:         id,
			ttsEnabled: true,
			voice:      c.defaultVoice,
			pool:       pool.New(c.poolOpts...),
		})
		c.commands[c.RegistrationCommand(id)] = id
	}
	return c
}

// RegistrationCommand returns the chat text that registers into slot id.
func (c *Controller) RegistrationCommand(id domain.SlotID) string {
	return fmt.Sprintf("%s%d", c.prefix, id)
}

// SlotCount returns the number of slots.
func (c *Controller) SlotCount() int {
	return len(c.slots)
}

// Run consumes chat messages one at a time, in arrival order, until ctx is
// cancelled or in is closed. Rendering never blocks ingestion.
func (c *Controller) Run(ctx context.Context, in <-chan domain.ChatMessage) {
	c.log.Info("dispatch: ingestion started (%d slots)", len(c.slots))
	for {
		select {
		case <-ctx.Done():
			c.log.Info("dispatch: ingestion stopped")
			return
		case msg, ok := <-in:
			if !ok {
				c.log.Info("dispatch: chat stream closed")
				return
			}
			c.HandleMessage(ctx, msg)
		}
	}
}

// HandleMessage routes msg and submits the resulting job, if any.
func (c *Controller) HandleMessage(ctx context.Context, msg domain.ChatMessage) {
	job, ok := c.RouteMessage(msg)
	if !ok || c.jobs == nil {
		return
	}
	if err := c.jobs.Submit(job); err != nil {
		c.log.Warn("dispatch: slot %d: job dropped: %v", job.Slot, err)
	}
}

// RouteMessage decides what msg means for the slots.
//
// A message that exactly matches a registration command registers its
// author and is never spoken. Otherwise the first slot whose active
// speaker equals the author (case-sensitive, as stored) receives it: the
// dashboard is always told, and a job is returned only when the slot's
// speech is enabled.
func (c *Controller) RouteMessage(msg domain.ChatMessage) (domain.RenderJob, bool) {
	if id, ok := c.commands[msg.Text]; ok {
		c.register(id, msg)
		return domain.RenderJob{}, false
	}

	for _, s := range c.slots {
		s.mu.Lock()
		if s.activeSpeaker == "" || s.activeSpeaker != msg.Author {
			s.mu.Unlock()
			continue
		}
		id, enabled, voice := s.id, s.ttsEnabled, s.voice
		s.mu.Unlock()

		c.events.Publish(domain.Event{
			Kind:   domain.EventMessageArrived,
			Slot:   id,
			Author: msg.Author,
			Text:   msg.Text,
		})
		if !enabled {
			c.log.Debug("dispatch: slot %d muted, not speaking message from %s", id, msg.Author)
			return domain.RenderJob{}, false
		}
		return domain.RenderJob{Slot: id, Text: msg.Text, Voice: voice}, true
	}
	return domain.RenderJob{}, false
}

func (c *Controller) register(id domain.SlotID, msg domain.ChatMessage) {
	now := msg.Time
	if now.IsZero() {
		now = c.now()
	}

	s := c.slots[id-1]
	s.mu.Lock()
	ev, evicted := s.pool.Register(msg.Author, now)
	size := s.pool.Len()
	s.mu.Unlock()

	c.log.Debug("dispatch: slot %d: registered %s (pool=%d)", id, pool.Normalize(msg.Author), size)
	if evicted {
		c.log.Info("dispatch: slot %d: %s removed from pool (%s)", id, ev.Identity, ev.Reason)
	}
}

// Apply executes a dashboard command.
func (c *Controller) Apply(cmd domain.Command) error {
	switch cmd.Kind {
	case domain.CommandToggleTTS:
		return c.SetEnabled(cmd.Slot, cmd.Enabled)
	case domain.CommandPickRandom:
		_, err := c.PickRandom(cmd.Slot)
		return err
	case domain.CommandChooseUser:
		return c.SetActiveSpeaker(cmd.Slot, cmd.Identity)
	case domain.CommandChangeVoice:
		return c.SetVoice(cmd.Slot, cmd.Voice)
	default:
		return fmt.Errorf("unknown command %s", cmd.Kind)
	}
}

// SetActiveSpeaker makes identity the slot's active speaker, stored exactly
// as given. Routing compares authors against this stored casing, while pool
// registration lowercases; an identity chosen with different casing than
// the chat login will not match.
func (c *Controller) SetActiveSpeaker(id domain.SlotID, identity string) error {
	s, err := c.slot(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.activeSpeaker = s.pool.PickExplicit(identity)
	if !s.pool.Contains(identity) {
		c.log.Debug("dispatch: slot %d: %s chosen without registering (%v)", id, identity, domain.ErrNotRegistered)
	}
	s.mu.Unlock()

	c.picked(id, identity)
	return nil
}

// PickRandom chooses a random member of the slot's pool as its active
// speaker. An empty pool leaves the slot unchanged.
func (c *Controller) PickRandom(id domain.SlotID) (string, error) {
	s, err := c.slot(id)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	identity, ok := s.pool.PickRandom()
	if ok {
		s.activeSpeaker = identity
	}
	s.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("slot %d: %w", id, domain.ErrPoolEmpty)
	}
	c.picked(id, identity)
	return identity, nil
}

func (c *Controller) picked(id domain.SlotID, identity string) {
	c.log.Info("dispatch: slot %d: %s was picked", id, identity)
	c.events.Publish(domain.Event{
		Kind:   domain.EventUserPicked,
		Slot:   id,
		Author: identity,
		Text:   identity + " was picked!",
	})
}

// SetEnabled turns speech for the slot on or off.
func (c *Controller) SetEnabled(id domain.SlotID, enabled bool) error {
	s, err := c.slot(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ttsEnabled = enabled
	s.mu.Unlock()

	c.log.Info("dispatch: slot %d: tts enabled=%t", id, enabled)
	return nil
}

// SetVoice changes the synthesis voice for the slot.
func (c *Controller) SetVoice(id domain.SlotID, voice string) error {
	s, err := c.slot(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.voice = voice
	s.mu.Unlock()

	c.log.Info("dispatch: slot %d: voice set to %s", id, voice)
	return nil
}

// SetPoolLimits applies new bounds to every slot's pool.
func (c *Controller) SetPoolLimits(maxUsers int, window time.Duration) {
	for _, s := range c.slots {
		s.mu.Lock()
		s.pool.SetLimits(maxUsers, window)
		s.mu.Unlock()
	}
	c.log.Info("dispatch: pool limits set (max_users=%d, window=%s)", maxUsers, window)
}

// Slot returns a copy of one slot's state.
func (c *Controller) Slot(id domain.SlotID) (domain.SlotState, error) {
	s, err := c.slot(id)
	if err != nil {
		return domain.SlotState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state(), nil
}

// Snapshot returns a copy of every slot's state, ordered by id.
func (c *Controller) Snapshot() []domain.SlotState {
	out := make([]domain.SlotState, 0, len(c.slots))
	for _, s := range c.slots {
		s.mu.Lock()
		out = append(out, s.state())
		s.mu.Unlock()
	}
	return out
}

// Members returns the slot's pool in eviction order.
func (c *Controller) Members(id domain.SlotID) ([]string, error) {
	s, err := c.slot(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Members(), nil
}

func (c *Controller) slot(id domain.SlotID) (*slot, error) {
	if id < 1 || int(id) > len(c.slots) {
		return nil, fmt.Errorf("slot %d: %w", id, domain.ErrInvalidSlot)
	}
	return c.slots[id-1], nil
}

// Package memstore holds the in-memory mirror of conversation history used
// for rendering: keyed message and block collections, a per-topic ordered id
// index, per-topic loading/streaming flags and bounded error logs.
//
// The mirror never trusts arrival order. Topic indexes are always re-derived
// from message creation timestamps, since user and model activity can
// interleave out of creation order.
package memstore

import (
	"sort"
	"sync"
	"time"

	"historydb/pkg/events"
	"historydb/pkg/models"
)

const (
	defaultErrorLogSize      = 10
	defaultTopicErrorLogSize = 5
)

type topicState struct {
	ids       []string
	loading   bool
	streaming bool
	// loadGen guards the loading flag: a finished load only clears the
	// flag if no newer load has claimed it since.
	loadGen   uint64
	errs      []RecordedError
	apiKeyErr *RecordedError
}

// Store is the reactive in-memory mirror. One instance is created at
// startup and passed by handle through the composition root.
type Store struct {
	mu       sync.Mutex
	messages map[string]*models.Message
	blocks   map[string]*models.Block
	topics   map[string]*topicState

	currentTopicID string
	errs           []RecordedError

	maxErrors      int
	maxTopicErrors int

	pub      events.Publisher
	topicSrc TopicSource
	msgSrc   MessageSource
}

// Option customizes a Store.
type Option func(*Store)

// WithPublisher wires an event publisher; block inserts and mutations are
// announced through it.
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) { s.pub = p }
}

// WithErrorLogSizes overrides the bounded error log capacities.
func WithErrorLogSizes(global, perTopic int) Option {
	return func(s *Store) {
		if global > 0 {
			s.maxErrors = global
		}
		if perTopic > 0 {
			s.maxTopicErrors = perTopic
		}
	}
}

// New creates the mirror. topicSrc and msgSrc back LoadTopic; both may be
// nil for mirrors that are fed externally (tests, embedded use).
func New(topicSrc TopicSource, msgSrc MessageSource, opts ...Option) *Store {
	s := &Store{
		messages:       make(map[string]*models.Message),
		blocks:         make(map[string]*models.Block),
		topics:         make(map[string]*topicState),
		maxErrors:      defaultErrorLogSize,
		maxTopicErrors: defaultTopicErrorLogSize,
		topicSrc:       topicSrc,
		msgSrc:         msgSrc,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) topicStateLocked(topicID string) *topicState {
	ts, ok := s.topics[topicID]
	if !ok {
		ts = &topicState{}
		s.topics[topicID] = ts
	}
	return ts
}

// SetCurrentTopic marks the active topic and lazily initializes its state.
// An empty id clears the selection.
func (s *Store) SetCurrentTopic(topicID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentTopicID = topicID
	if topicID != "" {
		s.topicStateLocked(topicID)
	}
}

// CurrentTopic returns the active topic id, or empty if none.
func (s *Store) CurrentTopic() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTopicID
}

// sortIndexLocked re-derives the topic's id order from message creation
// times, ascending. Ties break on id for determinism.
func (s *Store) sortIndexLocked(ts *topicState) {
	sort.SliceStable(ts.ids, func(i, j int) bool {
		a, b := s.messages[ts.ids[i]], s.messages[ts.ids[j]]
		if a == nil || b == nil {
			return a != nil
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})
}

// ReceiveMessages merges a batch into the mirror. Existing ids are kept
// untouched; the topic index is re-sorted by creation time afterwards.
func (s *Store) ReceiveMessages(topicID string, msgs []*models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.topicStateLocked(topicID)
	for _, m := range msgs {
		if m == nil || m.ID == "" {
			continue
		}
		if _, exists := s.messages[m.ID]; exists {
			continue
		}
		cp := m.Clone()
		cp.TopicID = topicID
		s.messages[cp.ID] = cp
		ts.ids = append(ts.ids, cp.ID)
	}
	s.sortIndexLocked(ts)
}

// AddMessage inserts one message; a no-op when the id already exists.
func (s *Store) AddMessage(topicID string, msg *models.Message) {
	if msg == nil {
		return
	}
	s.ReceiveMessages(topicID, []*models.Message{msg})
}

// UpdateMessage shallow-merges fields into an existing message without
// touching ordering structures. Returns false if the id is unknown.
func (s *Store) UpdateMessage(id string, patch models.MessagePatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return false
	}
	m.Apply(patch)
	return true
}

// RemoveMessage drops a message, its index entry and its owned blocks.
func (s *Store) RemoveMessage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeMessageLocked(id)
}

func (s *Store) removeMessageLocked(id string) {
	m, ok := s.messages[id]
	if !ok {
		return
	}
	for _, bid := range m.Blocks {
		delete(s.blocks, bid)
	}
	delete(s.messages, id)
	if ts, ok := s.topics[m.TopicID]; ok {
		for i, mid := range ts.ids {
			if mid == id {
				ts.ids = append(ts.ids[:i], ts.ids[i+1:]...)
				break
			}
		}
	}
}

// ClearTopicMessages removes every message (and owned block) of a topic.
// The topic record itself stays.
func (s *Store) ClearTopicMessages(topicID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.topics[topicID]
	if !ok {
		return
	}
	for _, id := range append([]string(nil), ts.ids...) {
		s.removeMessageLocked(id)
	}
	ts.ids = nil
}

// SetTopicLoading sets the per-topic loading flag. LoadTopic manages the
// flag itself; this is exposed for collaborators that fetch out of band.
func (s *Store) SetTopicLoading(topicID string, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.topicStateLocked(topicID)
	ts.loading = v
	if v {
		ts.loadGen++
	}
}

// SetTopicStreaming marks a topic as having an in-flight reply stream.
func (s *Store) SetTopicStreaming(topicID string, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topicStateLocked(topicID).streaming = v
}

// TopicLoading reports whether a load is in flight for the topic.
func (s *Store) TopicLoading(topicID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.topics[topicID]
	return ok && ts.loading
}

// TopicStreaming reports whether the topic has an in-flight stream.
func (s *Store) TopicStreaming(topicID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.topics[topicID]
	return ok && ts.streaming
}

// RecordError appends to the bounded global log and, when topicID is
// non-empty, to that topic's bounded log.
func (s *Store) RecordError(err error, topicID string) {
	if err == nil {
		return
	}
	rec := RecordedError{
		Time:    time.Now().UTC().UnixNano(),
		TopicID: topicID,
		Message: err.Error(),
	}
	if se, ok := err.(*StoreError); ok {
		rec.Code = se.Code
		if rec.TopicID == "" {
			rec.TopicID = se.TopicID
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = appendBounded(s.errs, rec, s.maxErrors)
	if rec.TopicID != "" {
		ts := s.topicStateLocked(rec.TopicID)
		ts.errs = appendBounded(ts.errs, rec, s.maxTopicErrors)
	}
}

// RecordAPIKeyError stores the latest API-key failure for a topic. It is a
// single latest-wins slot: a blocking condition, not a history.
func (s *Store) RecordAPIKeyError(topicID, messageID string, err error) {
	if err == nil {
		return
	}
	rec := RecordedError{
		Time:      time.Now().UTC().UnixNano(),
		TopicID:   topicID,
		MessageID: messageID,
		Message:   err.Error(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topicStateLocked(topicID).apiKeyErr = &rec
}

// APIKeyError returns the blocking API-key failure for a topic, if any.
func (s *Store) APIKeyError(topicID string) *RecordedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.topics[topicID]
	if !ok || ts.apiKeyErr == nil {
		return nil
	}
	rec := *ts.apiKeyErr
	return &rec
}

// ClearAPIKeyError clears the blocking API-key failure for a topic.
func (s *Store) ClearAPIKeyError(topicID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts, ok := s.topics[topicID]; ok {
		ts.apiKeyErr = nil
	}
}

// Errors returns a copy of the global error log, oldest first.
func (s *Store) Errors() []RecordedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedError(nil), s.errs...)
}

// TopicErrors returns a copy of a topic's error log, oldest first.
func (s *Store) TopicErrors(topicID string) []RecordedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.topics[topicID]
	if !ok {
		return nil
	}
	return append([]RecordedError(nil), ts.errs...)
}

func appendBounded(log []RecordedError, rec RecordedError, max int) []RecordedError {
	log = append(log, rec)
	if len(log) > max {
		log = log[len(log)-max:]
	}
	return log
}

// UpsertBlock mirrors a block and announces the change.
func (s *Store) UpsertBlock(b *models.Block) {
	if b == nil || b.ID == "" {
		return
	}
	s.mu.Lock()
	_, existed := s.blocks[b.ID]
	s.blocks[b.ID] = b.Clone()
	pub := s.pub
	s.mu.Unlock()

	if pub == nil {
		return
	}
	ev := events.BlockEvent{BlockID: b.ID, MessageID: b.MessageID, Type: b.Type, Status: b.Status}
	if existed {
		pub.PublishBlockUpdated(ev)
	} else {
		pub.PublishBlockCreated(ev)
	}
}

// UpsertBlocks mirrors a batch of blocks.
func (s *Store) UpsertBlocks(blocks []*models.Block) {
	for _, b := range blocks {
		s.UpsertBlock(b)
	}
}

// UpdateBlock patches a mirrored block in place. Returns false if unknown.
func (s *Store) UpdateBlock(id string, patch models.BlockPatch) bool {
	s.mu.Lock()
	b, ok := s.blocks[id]
	if ok {
		b.Apply(patch)
	}
	pub := s.pub
	var ev events.BlockEvent
	if ok {
		ev = events.BlockEvent{BlockID: b.ID, MessageID: b.MessageID, Type: b.Type, Status: b.Status}
	}
	s.mu.Unlock()
	if ok && pub != nil {
		pub.PublishBlockUpdated(ev)
	}
	return ok
}

// Message returns a copy of the message with the given id, or nil.
func (s *Store) Message(id string) *models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id].Clone()
}

// Block returns a copy of the block with the given id, or nil.
func (s *Store) Block(id string) *models.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks[id].Clone()
}

// Messages returns copies of every mirrored message, in no particular
// order. Version switches scan this; switches are rare and interactive, so
// no dedicated version index is kept.
func (s *Store) Messages() []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m.Clone())
	}
	return out
}

// TopicMessageIDs returns the topic's ordered id index.
func (s *Store) TopicMessageIDs(topicID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.topics[topicID]
	if !ok {
		return nil
	}
	return append([]string(nil), ts.ids...)
}

// TopicMessages returns copies of the topic's messages in index order.
func (s *Store) TopicMessages(topicID string) []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.topics[topicID]
	if !ok {
		return nil
	}
	out := make([]*models.Message, 0, len(ts.ids))
	for _, id := range ts.ids {
		if m, ok := s.messages[id]; ok {
			out = append(out, m.Clone())
		}
	}
	return out
}

// MessageBlocks returns copies of the message's blocks in block-list order.
func (s *Store) MessageBlocks(messageID string) []*models.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return nil
	}
	out := make([]*models.Block, 0, len(m.Blocks))
	for _, bid := range m.Blocks {
		if b, ok := s.blocks[bid]; ok {
			out = append(out, b.Clone())
		}
	}
	return out
}

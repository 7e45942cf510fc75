// Package inmemory implements storage.Driver with mutex-guarded maps. It
// honors the same uniqueness keys and cascades as the SQL drivers and is
// intended for tests and ephemeral runs.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/mnemo/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	mu  sync.RWMutex
	now func() time.Time
	seq int64

	users        map[int64]*storage.User
	messages     map[int64]*storage.Message
	media        map[int64]*storage.MediaFile
	links        map[int64]*storage.MessageMedia
	memories     map[int64]*storage.Memory
	interactions map[int64]*storage.Interaction
}

var _ storage.Driver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithClock overrides the clock used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// NewDriver creates a new in-memory store.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		now:          time.Now,
		users:        make(map[int64]*storage.User),
		messages:     make(map[int64]*storage.Message),
		media:        make(map[int64]*storage.MediaFile),
		links:        make(map[int64]*storage.MessageMedia),
		memories:     make(map[int64]*storage.Memory),
		interactions: make(map[int64]*storage.Interaction),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) nextID() int64 {
	d.seq++
	return d.seq
}

func (d *Driver) timestamp() time.Time {
	return d.now().UTC().Truncate(time.Microsecond)
}

func constraint(format string, args ...any) error {
	return storage.Classify(storage.ErrConstraint, fmt.Errorf(format, args...))
}

// InsertUser stores u unless its external id is already known.
func (d *Driver) InsertUser(_ context.Context, u *storage.User) (*storage.User, bool, error) {
	if u == nil {
		return nil, false, errors.New("cannot store nil user")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.users {
		if existing.ExternalID == u.ExternalID {
			return copyUser(existing), false, nil
		}
	}
	for _, existing := range d.users {
		if u.PhoneNumber != "" && existing.PhoneNumber == u.PhoneNumber {
			return nil, false, constraint("phone number %s already belongs to user %d", u.PhoneNumber, existing.ID)
		}
	}

	now := d.timestamp()
	stored := copyUser(u)
	stored.ID = d.nextID()
	if stored.Timezone == "" {
		stored.Timezone = "UTC"
	}
	stored.Active = true
	stored.CreatedAt = now
	stored.UpdatedAt = now
	d.users[stored.ID] = stored
	return copyUser(stored), true, nil
}

// GetUser retrieves a user by id.
func (d *Driver) GetUser(_ context.Context, id int64) (*storage.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[id]
	if !ok {
		return nil, storage.NotFound("user", id)
	}
	return copyUser(u), nil
}

// GetUserByExternalID retrieves a user by external identifier.
func (d *Driver) GetUserByExternalID(_ context.Context, externalID string) (*storage.User, error) {
	return d.findUser(func(u *storage.User) bool { return u.ExternalID == externalID }, externalID)
}

// GetUserByPhone retrieves a user by phone number.
func (d *Driver) GetUserByPhone(_ context.Context, phone string) (*storage.User, error) {
	return d.findUser(func(u *storage.User) bool { return u.PhoneNumber == phone }, phone)
}

func (d *Driver) findUser(match func(*storage.User) bool, key string) (*storage.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, u := range d.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, storage.NotFound("user", key)
}

// SetUserTimezone changes a user's timezone.
func (d *Driver) SetUserTimezone(_ context.Context, id int64, tz string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[id]
	if !ok {
		return storage.NotFound("user", id)
	}
	u.Timezone = tz
	u.UpdatedAt = d.timestamp()
	return nil
}

// DeleteUser deletes a user with its messages, memories and interactions.
func (d *Driver) DeleteUser(_ context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[id]; !ok {
		return storage.NotFound("user", id)
	}
	delete(d.users, id)

	for mid, m := range d.messages {
		if m.UserID == id {
			d.deleteMessageLocked(mid)
		}
	}
	for mid, m := range d.memories {
		if m.UserID == id {
			d.deleteMemoryLocked(mid)
		}
	}
	for iid, in := range d.interactions {
		if in.UserID == id {
			delete(d.interactions, iid)
		}
	}
	return nil
}

// InsertMessage records m unless its provider message id is already known.
func (d *Driver) InsertMessage(_ context.Context, m *storage.Message) (*storage.Message, bool, error) {
	if m == nil {
		return nil, false, errors.New("cannot store nil message")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.messages {
		if existing.ProviderMessageID == m.ProviderMessageID {
			return copyMessage(existing), false, nil
		}
	}
	if _, ok := d.users[m.UserID]; !ok {
		return nil, false, constraint("message references unknown user %d", m.UserID)
	}

	now := d.timestamp()
	stored := copyMessage(m)
	stored.ID = d.nextID()
	if stored.Kind == "" {
		stored.Kind = storage.KindText
	}
	if stored.Status == "" {
		stored.Status = storage.StatusReceived
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	d.messages[stored.ID] = stored
	return copyMessage(stored), true, nil
}

// GetMessage retrieves a message by id.
func (d *Driver) GetMessage(_ context.Context, id int64) (*storage.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.messages[id]
	if !ok {
		return nil, storage.NotFound("message", id)
	}
	return copyMessage(m), nil
}

// GetMessageByProviderID retrieves a message by provider message id.
func (d *Driver) GetMessageByProviderID(_ context.Context, providerID string) (*storage.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, m := range d.messages {
		if m.ProviderMessageID == providerID {
			return copyMessage(m), nil
		}
	}
	return nil, storage.NotFound("message", providerID)
}

// SetMessageStatus updates a message's status.
func (d *Driver) SetMessageStatus(_ context.Context, id int64, status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.messages[id]
	if !ok {
		return storage.NotFound("message", id)
	}
	m.Status = status
	m.UpdatedAt = d.timestamp()
	return nil
}

// DeleteMessage deletes a message with its memory, interaction and links.
func (d *Driver) DeleteMessage(_ context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.messages[id]; !ok {
		return storage.NotFound("message", id)
	}
	d.deleteMessageLocked(id)
	return nil
}

func (d *Driver) deleteMessageLocked(id int64) {
	delete(d.messages, id)
	for lid, l := range d.links {
		if l.MessageID == id {
			delete(d.links, lid)
		}
	}
	for mid, m := range d.memories {
		if m.SourceMessageID != nil && *m.SourceMessageID == id {
			d.deleteMemoryLocked(mid)
		}
	}
	for iid, in := range d.interactions {
		if in.SourceMessageID != nil && *in.SourceMessageID == id {
			delete(d.interactions, iid)
		}
	}
}

// ListPendingMessages returns messages without an interaction that have not
// exhausted their memory attempts, least recently touched first.
func (d *Driver) ListPendingMessages(_ context.Context, limit int) ([]*storage.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	recorded := make(map[int64]bool, len(d.interactions))
	for _, in := range d.interactions {
		if in.SourceMessageID != nil {
			recorded[*in.SourceMessageID] = true
		}
	}

	var out []*storage.Message
	for _, m := range d.messages {
		if !recorded[m.ID] && m.Status != storage.StatusMemoryFailed {
			out = append(out, copyMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InsertMedia records m unless its content hash is known, in which case the
// existing record's reuse count is incremented.
func (d *Driver) InsertMedia(_ context.Context, m *storage.MediaFile) (*storage.MediaFile, bool, error) {
	if m == nil {
		return nil, false, errors.New("cannot store nil media file")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.timestamp()
	for _, existing := range d.media {
		if existing.ContentHash == m.ContentHash {
			existing.ReuseCount++
			existing.UpdatedAt = now
			return copyMedia(existing), false, nil
		}
	}

	stored := copyMedia(m)
	stored.ID = d.nextID()
	stored.ReuseCount = 0
	stored.IsDuplicate = false
	stored.CanonicalID = nil
	stored.CreatedAt = now
	stored.UpdatedAt = now
	d.media[stored.ID] = stored
	return copyMedia(stored), true, nil
}

// GetMedia retrieves a media file by id.
func (d *Driver) GetMedia(_ context.Context, id int64) (*storage.MediaFile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.media[id]
	if !ok {
		return nil, storage.NotFound("media", id)
	}
	return copyMedia(m), nil
}

// GetMediaByHash retrieves a media file by content hash.
func (d *Driver) GetMediaByHash(_ context.Context, hash string) (*storage.MediaFile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, m := range d.media {
		if m.ContentHash == hash {
			return copyMedia(m), nil
		}
	}
	return nil, storage.NotFound("media", hash)
}

// SetMediaLocation records where a media file's bytes were uploaded.
func (d *Driver) SetMediaLocation(_ context.Context, id int64, key, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.media[id]
	if !ok {
		return storage.NotFound("media", id)
	}
	m.StorageKey = key
	m.StorageURL = url
	m.UpdatedAt = d.timestamp()
	return nil
}

// LinkMedia associates a media file with a message.
func (d *Driver) LinkMedia(_ context.Context, link *storage.MessageMedia) (bool, error) {
	if link == nil {
		return false, errors.New("cannot store nil media link")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, l := range d.links {
		if l.MessageID == link.MessageID && l.MediaID == link.MediaID {
			return false, nil
		}
	}
	if _, ok := d.messages[link.MessageID]; !ok {
		return false, constraint("media link references unknown message %d", link.MessageID)
	}
	if _, ok := d.media[link.MediaID]; !ok {
		return false, constraint("media link references unknown media %d", link.MediaID)
	}

	stored := *link
	stored.ID = d.nextID()
	stored.CreatedAt = d.timestamp()
	d.links[stored.ID] = &stored
	return true, nil
}

// ListMessageMedia returns the media files linked to a message in link order.
func (d *Driver) ListMessageMedia(_ context.Context, messageID int64) ([]*storage.MediaFile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var links []*storage.MessageMedia
	for _, l := range d.links {
		if l.MessageID == messageID {
			links = append(links, l)
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i].ID < links[j].ID })

	out := make([]*storage.MediaFile, 0, len(links))
	for _, l := range links {
		if m, ok := d.media[l.MediaID]; ok {
			out = append(out, copyMedia(m))
		}
	}
	return out, nil
}

// InsertTurn stores a conversational memory and its interaction together.
func (d *Driver) InsertTurn(_ context.Context, mem *storage.Memory, in *storage.Interaction) (*storage.Memory, *storage.Interaction, bool, error) {
	if mem == nil || in == nil {
		return nil, nil, false, errors.New("cannot store nil memory or interaction")
	}
	if mem.SourceMessageID == nil {
		return nil, nil, false, errors.New("conversational memory requires a source message id")
	}
	messageID := *mem.SourceMessageID

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing := d.interactionByMessageLocked(messageID); existing != nil {
		var mem *storage.Memory
		if m := d.memoryByMessageLocked(messageID); m != nil {
			mem = copyMemory(m)
		}
		return mem, copyInteraction(existing), false, nil
	}
	if _, ok := d.messages[messageID]; !ok {
		return nil, nil, false, constraint("memory references unknown message %d", messageID)
	}
	if _, ok := d.users[mem.UserID]; !ok {
		return nil, nil, false, constraint("memory references unknown user %d", mem.UserID)
	}

	now := d.timestamp()
	storedMem := copyMemory(mem)
	storedMem.ID = d.nextID()
	storedMem.SourceMessageID = storage.Int64Ptr(messageID)
	storedMem.RequestKey = ""
	if storedMem.Kind == "" {
		storedMem.Kind = storage.MemoryConversation
	}
	storedMem.CreatedAt = now
	storedMem.UpdatedAt = now

	storedIn := copyInteraction(in)
	storedIn.ID = d.nextID()
	storedIn.SourceMessageID = storage.Int64Ptr(messageID)
	storedIn.MemoryID = storage.Int64Ptr(storedMem.ID)
	if storedIn.Kind == "" {
		storedIn.Kind = storage.InteractionConversation
	}
	if storedIn.Sources == nil {
		storedIn.Sources = []string{}
	}
	storedIn.CreatedAt = now

	d.memories[storedMem.ID] = storedMem
	d.interactions[storedIn.ID] = storedIn
	return copyMemory(storedMem), copyInteraction(storedIn), true, nil
}

// InsertDirectMemory stores a memory keyed on its request key.
func (d *Driver) InsertDirectMemory(_ context.Context, mem *storage.Memory) (*storage.Memory, bool, error) {
	if mem == nil {
		return nil, false, errors.New("cannot store nil memory")
	}
	if mem.RequestKey == "" {
		return nil, false, errors.New("direct memory requires a request key")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.memories {
		if existing.RequestKey == mem.RequestKey {
			return copyMemory(existing), false, nil
		}
	}
	if _, ok := d.users[mem.UserID]; !ok {
		return nil, false, constraint("memory references unknown user %d", mem.UserID)
	}

	now := d.timestamp()
	stored := copyMemory(mem)
	stored.ID = d.nextID()
	stored.SourceMessageID = nil
	stored.Kind = storage.MemoryDirect
	stored.CreatedAt = now
	stored.UpdatedAt = now
	d.memories[stored.ID] = stored
	return copyMemory(stored), true, nil
}

// GetMemoryByMessage retrieves the memory derived from a message.
func (d *Driver) GetMemoryByMessage(_ context.Context, messageID int64) (*storage.Memory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m := d.memoryByMessageLocked(messageID)
	if m == nil {
		return nil, storage.NotFound("memory", messageID)
	}
	return copyMemory(m), nil
}

// GetMemoryByRequestKey retrieves a direct memory by its request key.
func (d *Driver) GetMemoryByRequestKey(_ context.Context, requestKey string) (*storage.Memory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, m := range d.memories {
		if requestKey != "" && m.RequestKey == requestKey {
			return copyMemory(m), nil
		}
	}
	return nil, storage.NotFound("memory", requestKey)
}

// GetMemoryByExternalID retrieves a memory by its externally assigned id.
func (d *Driver) GetMemoryByExternalID(_ context.Context, externalID string) (*storage.Memory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m := d.memoryByExternalIDLocked(externalID)
	if m == nil {
		return nil, storage.NotFound("memory", externalID)
	}
	return copyMemory(m), nil
}

// UpdateMemoryContent replaces the content of a memory.
func (d *Driver) UpdateMemoryContent(_ context.Context, externalID, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	m := d.memoryByExternalIDLocked(externalID)
	if m == nil {
		return storage.NotFound("memory", externalID)
	}
	m.Content = content
	m.UpdatedAt = d.timestamp()
	return nil
}

// DeleteMemory deletes a memory; its interaction keeps a null memory id.
func (d *Driver) DeleteMemory(_ context.Context, externalID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	m := d.memoryByExternalIDLocked(externalID)
	if m == nil {
		return storage.NotFound("memory", externalID)
	}
	d.deleteMemoryLocked(m.ID)
	return nil
}

func (d *Driver) deleteMemoryLocked(id int64) {
	delete(d.memories, id)
	for _, in := range d.interactions {
		if in.MemoryID != nil && *in.MemoryID == id {
			in.MemoryID = nil
		}
	}
}

// SearchMemories returns a user's memories, newest first.
func (d *Driver) SearchMemories(_ context.Context, q storage.MemoryQuery) ([]*storage.Memory, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	needle := strings.ToLower(q.Text)

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*storage.Memory
	for _, m := range d.memories {
		if m.UserID != q.UserID {
			continue
		}
		if !q.Start.IsZero() && m.CreatedAt.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && !m.CreatedAt.Before(q.End) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(m.Content), needle) {
			continue
		}
		out = append(out, copyMemory(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetInteractionByMessage retrieves the interaction for a message.
func (d *Driver) GetInteractionByMessage(_ context.Context, messageID int64) (*storage.Interaction, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	in := d.interactionByMessageLocked(messageID)
	if in == nil {
		return nil, storage.NotFound("interaction", messageID)
	}
	return copyInteraction(in), nil
}

// ListInteractions returns a user's most recent interactions.
func (d *Driver) ListInteractions(_ context.Context, userID int64, limit int) ([]*storage.Interaction, error) {
	if limit <= 0 {
		limit = 10
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*storage.Interaction
	for _, in := range d.interactions {
		if in.UserID == userID {
			out = append(out, copyInteraction(in))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats returns row counts per table.
func (d *Driver) Stats(_ context.Context) (*storage.Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return &storage.Stats{
		Users:        len(d.users),
		Messages:     len(d.messages),
		MediaFiles:   len(d.media),
		MediaLinks:   len(d.links),
		Memories:     len(d.memories),
		Interactions: len(d.interactions),
	}, nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) memoryByMessageLocked(messageID int64) *storage.Memory {
	for _, m := range d.memories {
		if m.SourceMessageID != nil && *m.SourceMessageID == messageID {
			return m
		}
	}
	return nil
}

func (d *Driver) memoryByExternalIDLocked(externalID string) *storage.Memory {
	var found *storage.Memory
	for _, m := range d.memories {
		if m.ExternalID == externalID && (found == nil || m.ID < found.ID) {
			found = m
		}
	}
	return found
}

func (d *Driver) interactionByMessageLocked(messageID int64) *storage.Interaction {
	for _, in := range d.interactions {
		if in.SourceMessageID != nil && *in.SourceMessageID == messageID {
			return in
		}
	}
	return nil
}

func copyUser(u *storage.User) *storage.User {
	c := *u
	return &c
}

func copyMessage(m *storage.Message) *storage.Message {
	c := *m
	if m.RawPayload != nil {
		c.RawPayload = append([]byte(nil), m.RawPayload...)
	}
	return &c
}

func copyMedia(m *storage.MediaFile) *storage.MediaFile {
	c := *m
	if m.CanonicalID != nil {
		c.CanonicalID = storage.Int64Ptr(*m.CanonicalID)
	}
	return &c
}

func copyMemory(m *storage.Memory) *storage.Memory {
	c := *m
	if m.SourceMessageID != nil {
		c.SourceMessageID = storage.Int64Ptr(*m.SourceMessageID)
	}
	if m.Metadata != nil {
		c.Metadata = append([]byte(nil), m.Metadata...)
	}
	return &c
}

func copyInteraction(in *storage.Interaction) *storage.Interaction {
	if in == nil {
		return nil
	}
	c := *in
	if in.SourceMessageID != nil {
		c.SourceMessageID = storage.Int64Ptr(*in.SourceMessageID)
	}
	if in.MemoryID != nil {
		c.MemoryID = storage.Int64Ptr(*in.MemoryID)
	}
	if in.Sources != nil {
		c.Sources = make([]string, len(in.Sources))
		copy(c.Sources, in.Sources)
	}
	return &c
}

package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
	"go.uber.org/zap"
)

// world is shared in-memory state behind the fake repositories, so the
// services under test see one consistent data set the way they would with
// one database.
type world struct {
	mu sync.Mutex

	users  map[uuid.UUID]*domain.User
	admins map[uuid.UUID]bool

	convs   map[uuid.UUID]*domain.Conversation
	members map[uuid.UUID]map[uuid.UUID]*domain.Membership

	msgs      []*domain.Message
	reactions map[uuid.UUID]map[uuid.UUID]string // messageID → userID → emoji

	friends map[uuid.UUID]map[uuid.UUID]bool
	blocks  map[uuid.UUID]map[uuid.UUID]bool
	invites map[uuid.UUID]*domain.Invite

	cleared map[string]time.Time // userID|convID
	hidden  map[uuid.UUID]map[uuid.UUID]bool
	pinHash map[uuid.UUID]string

	scheduled map[uuid.UUID]*domain.ScheduledMessage
	reports   map[uuid.UUID]*domain.Report
	notes     map[uuid.UUID]*domain.Note

	notifications []*domain.AppNotification
	deactivated   map[uuid.UUID]bool // users whose devices were deactivated
}

func newWorld() *world {
	return &world{
		users:       make(map[uuid.UUID]*domain.User),
		admins:      make(map[uuid.UUID]bool),
		convs:       make(map[uuid.UUID]*domain.Conversation),
		members:     make(map[uuid.UUID]map[uuid.UUID]*domain.Membership),
		reactions:   make(map[uuid.UUID]map[uuid.UUID]string),
		friends:     make(map[uuid.UUID]map[uuid.UUID]bool),
		blocks:      make(map[uuid.UUID]map[uuid.UUID]bool),
		invites:     make(map[uuid.UUID]*domain.Invite),
		cleared:     make(map[string]time.Time),
		hidden:      make(map[uuid.UUID]map[uuid.UUID]bool),
		pinHash:     make(map[uuid.UUID]string),
		scheduled:   make(map[uuid.UUID]*domain.ScheduledMessage),
		reports:     make(map[uuid.UUID]*domain.Report),
		notes:       make(map[uuid.UUID]*domain.Note),
		deactivated: make(map[uuid.UUID]bool),
	}
}

func pairKey(a, b uuid.UUID) string {
	return a.String() + "|" + b.String()
}

// --- builders used by tests ---

func (w *world) addUser(name string) *domain.User {
	u := &domain.User{
		ID:          uuid.New(),
		Email:       name + "@example.com",
		Username:    name,
		DisplayName: strings.ToUpper(name[:1]) + name[1:],
		Status:      domain.UserStatusActive,
		CreatedAt:   time.Now(),
	}
	w.users[u.ID] = u
	return u
}

func (w *world) addDirect(a, b uuid.UUID) *domain.Conversation {
	c := &domain.Conversation{
		ID:        uuid.New(),
		Type:      domain.ConversationTypeDirect,
		Status:    domain.ConversationStatusActive,
		CreatedAt: time.Now(),
	}
	w.convs[c.ID] = c
	w.members[c.ID] = map[uuid.UUID]*domain.Membership{
		a: {ConversationID: c.ID, UserID: a, Role: domain.RoleMember, JoinedAt: time.Now()},
		b: {ConversationID: c.ID, UserID: b, Role: domain.RoleMember, JoinedAt: time.Now()},
	}
	return c
}

func (w *world) addGroup(ownerID uuid.UUID, memberIDs ...uuid.UUID) *domain.Conversation {
	title := "Test Group"
	c := &domain.Conversation{
		ID:        uuid.New(),
		Type:      domain.ConversationTypeGroup,
		Status:    domain.ConversationStatusActive,
		Title:     &title,
		CreatedAt: time.Now(),
	}
	w.convs[c.ID] = c
	w.members[c.ID] = map[uuid.UUID]*domain.Membership{
		ownerID: {ConversationID: c.ID, UserID: ownerID, Role: domain.RoleOwner, JoinedAt: time.Now()},
	}
	for _, id := range memberIDs {
		w.members[c.ID][id] = &domain.Membership{ConversationID: c.ID, UserID: id, Role: domain.RoleMember, JoinedAt: time.Now()}
	}
	return c
}

func (w *world) addMessage(convID, senderID uuid.UUID, text string) *domain.Message {
	m := &domain.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		SenderID:       senderID,
		Type:           domain.MessageTypeText,
		Text:           &text,
		CreatedAt:      time.Now().Add(time.Duration(len(w.msgs)) * time.Millisecond),
	}
	w.msgs = append(w.msgs, m)
	return m
}

func (w *world) befriend(a, b uuid.UUID) {
	if w.friends[a] == nil {
		w.friends[a] = make(map[uuid.UUID]bool)
	}
	if w.friends[b] == nil {
		w.friends[b] = make(map[uuid.UUID]bool)
	}
	w.friends[a][b] = true
	w.friends[b][a] = true
}

// --- fake user repository ---

type fakeUserRepo struct{ w *world }

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	r.w.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	u, ok := r.w.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	for _, u := range r.w.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	for _, u := range r.w.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) BumpTokenVersion(_ context.Context, id uuid.UUID) (int, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	u, ok := r.w.users[id]
	if !ok {
		return 0, fmt.Errorf("no such user")
	}
	u.TokenVersion++
	return u.TokenVersion, nil
}

func (r *fakeUserRepo) Sanction(_ context.Context, id uuid.UUID, status string) (string, int, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	u, ok := r.w.users[id]
	if !ok {
		return "", 0, fmt.Errorf("no such user")
	}
	old := u.Status
	u.Status = status
	u.TokenVersion++
	r.w.deactivated[id] = true
	return old, u.TokenVersion, nil
}

func (r *fakeUserRepo) IsAdmin(_ context.Context, id uuid.UUID) (bool, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	return r.w.admins[id], nil
}

func (r *fakeUserRepo) SeedAdmin(_ context.Context, id uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	r.w.admins[id] = true
	return nil
}

func (r *fakeUserRepo) List(_ context.Context, status, query string, limit, offset int) ([]domain.User, int, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []domain.User
	for _, u := range r.w.users {
		if r.w.admins[u.ID] {
			continue
		}
		if status != "" && u.Status != status {
			continue
		}
		if query != "" && !strings.Contains(u.Username, query) && !strings.Contains(u.Email, query) {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

// --- fake conversation repository ---

type fakeConvRepo struct{ w *world }

func (r *fakeConvRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	c, ok := r.w.convs[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeConvRepo) GetMember(_ context.Context, conversationID, userID uuid.UUID) (*domain.Membership, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	m, ok := r.w.members[conversationID][userID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *fakeConvRepo) ListMembers(_ context.Context, conversationID uuid.UUID) ([]domain.Membership, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []domain.Membership
	for _, m := range r.w.members[conversationID] {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out, nil
}

func (r *fakeConvRepo) ListMemberIDs(_ context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []uuid.UUID
	for id := range r.w.members[conversationID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (r *fakeConvRepo) FindDirect(_ context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	for id, c := range r.w.convs {
		if c.Type != domain.ConversationTypeDirect {
			continue
		}
		ms := r.w.members[id]
		if _, okA := ms[a]; okA {
			if _, okB := ms[b]; okB {
				cp := *c
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (r *fakeConvRepo) CreateDirect(_ context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	// Get-or-create under the lock: a racing first contact for the same
	// pair must not produce a second conversation.
	for id, c := range r.w.convs {
		if c.Type != domain.ConversationTypeDirect {
			continue
		}
		ms := r.w.members[id]
		if _, okA := ms[a]; okA {
			if _, okB := ms[b]; okB {
				cp := *c
				return &cp, nil
			}
		}
	}
	c := r.w.addDirect(a, b)
	cp := *c
	return &cp, nil
}

func (r *fakeConvRepo) CreateGroup(_ context.Context, conv *domain.Conversation, ownerID uuid.UUID, memberIDs []uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	r.w.convs[conv.ID] = conv
	r.w.members[conv.ID] = map[uuid.UUID]*domain.Membership{
		ownerID: {ConversationID: conv.ID, UserID: ownerID, Role: domain.RoleOwner, JoinedAt: time.Now()},
	}
	for _, id := range memberIDs {
		if _, exists := r.w.users[id]; !exists {
			continue
		}
		r.w.members[conv.ID][id] = &domain.Membership{ConversationID: conv.ID, UserID: id, Role: domain.RoleMember, JoinedAt: time.Now()}
	}
	return nil
}

func (r *fakeConvRepo) AddMembers(_ context.Context, conversationID uuid.UUID, userIDs []uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	for _, id := range userIDs {
		if _, exists := r.w.users[id]; !exists {
			continue
		}
		if _, already := r.w.members[conversationID][id]; already {
			continue
		}
		r.w.members[conversationID][id] = &domain.Membership{ConversationID: conversationID, UserID: id, Role: domain.RoleMember, JoinedAt: time.Now()}
	}
	return nil
}

func (r *fakeConvRepo) RemoveMember(_ context.Context, conversationID, userID uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	delete(r.w.members[conversationID], userID)
	return nil
}

func (r *fakeConvRepo) UpdateMemberRole(_ context.Context, conversationID, userID uuid.UUID, role string) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	if m, ok := r.w.members[conversationID][userID]; ok {
		m.Role = role
	}
	return nil
}

func (r *fakeConvRepo) SetMemberMuted(_ context.Context, conversationID, userID uuid.UUID, muted bool) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	if m, ok := r.w.members[conversationID][userID]; ok {
		m.IsMuted = muted
	}
	return nil
}

func (r *fakeConvRepo) TransferOwnership(_ context.Context, conversationID, oldOwnerID, newOwnerID uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	ms := r.w.members[conversationID]
	if old, ok := ms[oldOwnerID]; ok {
		old.Role = domain.RoleAdmin
	}
	if next, ok := ms[newOwnerID]; ok {
		next.Role = domain.RoleOwner
		next.IsMuted = false
	}
	return nil
}

func (r *fakeConvRepo) UpdateInfo(_ context.Context, conversationID uuid.UUID, title, avatarURL *string) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	if c, ok := r.w.convs[conversationID]; ok {
		if title != nil {
			c.Title = title
		}
		if avatarURL != nil {
			c.AvatarURL = avatarURL
		}
	}
	return nil
}

func (r *fakeConvRepo) SetGroupStatus(_ context.Context, conversationID uuid.UUID, status string) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	c, ok := r.w.convs[conversationID]
	if !ok {
		return nil
	}
	if status == domain.ConversationStatusBanned {
		kept := r.w.msgs[:0]
		for _, m := range r.w.msgs {
			if m.ConversationID != conversationID {
				kept = append(kept, m)
			}
		}
		r.w.msgs = kept
	}
	c.Status = status
	return nil
}

func (r *fakeConvRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	delete(r.w.convs, id)
	delete(r.w.members, id)
	return nil
}

func (r *fakeConvRepo) SetLastRead(_ context.Context, conversationID, userID uuid.UUID, messageID *uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	if m, ok := r.w.members[conversationID][userID]; ok {
		m.LastReadMsgID = messageID
	}
	return nil
}

func (r *fakeConvRepo) ListSummaries(_ context.Context, userID uuid.UUID) ([]domain.ConversationSummary, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []domain.ConversationSummary
	for convID := range r.w.convs {
		if _, member := r.w.members[convID][userID]; !member {
			continue
		}
		if r.w.hidden[userID][convID] {
			continue
		}
		out = append(out, domain.ConversationSummary{Conversation: *r.w.convs[convID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r *fakeConvRepo) ListGroups(_ context.Context, status, query string, limit, offset int) ([]domain.GroupOverview, int, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []domain.GroupOverview
	for id, c := range r.w.convs {
		if c.Type != domain.ConversationTypeGroup {
			continue
		}
		if status != "" && status != "all" && c.Status != status {
			continue
		}
		if query != "" {
			title := ""
			if c.Title != nil {
				title = strings.ToLower(*c.Title)
			}
			if !strings.Contains(title, strings.ToLower(query)) {
				continue
			}
		}
		out = append(out, domain.GroupOverview{Conversation: *c, MemberCount: len(r.w.members[id])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

// --- fake message repository ---

type fakeMsgRepo struct{ w *world }

func (r *fakeMsgRepo) guard(conversationID, senderID uuid.UUID) error {
	conv, ok := r.w.convs[conversationID]
	if !ok {
		return repository.ErrNotMember
	}
	m, member := r.w.members[conversationID][senderID]
	if !member {
		return repository.ErrNotMember
	}
	if conv.Type == domain.ConversationTypeGroup {
		switch conv.Status {
		case domain.ConversationStatusLocked:
			return repository.ErrConversationLocked
		case domain.ConversationStatusBanned:
			return repository.ErrConversationBanned
		}
		if m.IsMuted {
			return repository.ErrMemberMuted
		}
	}
	return nil
}

func (r *fakeMsgRepo) CreateGuarded(_ context.Context, msg *domain.Message) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	if err := r.guard(msg.ConversationID, msg.SenderID); err != nil {
		return err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	cp := *msg
	r.w.msgs = append(r.w.msgs, &cp)
	return nil
}

func (r *fakeMsgRepo) find(id uuid.UUID) *domain.Message {
	for _, m := range r.w.msgs {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (r *fakeMsgRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	m := r.find(id)
	if m == nil {
		return nil, nil
	}
	cp := *m
	for userID, emoji := range r.w.reactions[id] {
		cp.Reactions = append(cp.Reactions, domain.Reaction{MessageID: id, UserID: userID, Emoji: emoji})
	}
	sort.Slice(cp.Reactions, func(i, j int) bool {
		return cp.Reactions[i].UserID.String() < cp.Reactions[j].UserID.String()
	})
	return &cp, nil
}

func (r *fakeMsgRepo) List(_ context.Context, conversationID, viewerID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	clearedAt, hasCleared := r.w.cleared[pairKey(viewerID, conversationID)]
	var out []domain.Message
	for _, m := range r.w.msgs {
		if m.ConversationID != conversationID {
			continue
		}
		if hasCleared && !m.CreatedAt.After(clearedAt) {
			continue
		}
		cp := *m
		if cp.DeletedAt != nil {
			cp.Text = nil
			cp.AssetURL = nil
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if before != nil {
		for i, m := range out {
			if m.ID == *before {
				out = out[:i]
				break
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *fakeMsgRepo) LatestIDs(_ context.Context, conversationID uuid.UUID, limit int) ([]uuid.UUID, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var msgs []*domain.Message
	for _, m := range r.w.msgs {
		if m.ConversationID == conversationID {
			msgs = append(msgs, m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt) })
	var out []uuid.UUID
	for i := 0; i < len(msgs) && i < limit; i++ {
		out = append(out, msgs[i].ID)
	}
	return out, nil
}

func (r *fakeMsgRepo) React(_ context.Context, messageID, userID uuid.UUID, emoji string) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	if r.w.reactions[messageID] == nil {
		r.w.reactions[messageID] = make(map[uuid.UUID]string)
	}
	if r.w.reactions[messageID][userID] == emoji {
		delete(r.w.reactions[messageID], userID)
		return nil
	}
	r.w.reactions[messageID][userID] = emoji
	return nil
}

func (r *fakeMsgRepo) SetPinned(_ context.Context, id uuid.UUID, pinned bool) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	if m := r.find(id); m != nil {
		m.IsPinned = pinned
	}
	return nil
}

func (r *fakeMsgRepo) Tombstone(_ context.Context, id uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	if m := r.find(id); m != nil {
		now := time.Now()
		m.DeletedAt = &now
	}
	return nil
}

func (r *fakeMsgRepo) HardDelete(_ context.Context, id uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	kept := r.w.msgs[:0]
	for _, m := range r.w.msgs {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	r.w.msgs = kept
	delete(r.w.reactions, id)
	return nil
}

func (r *fakeMsgRepo) Forward(_ context.Context, actorID uuid.UUID, sourceIDs, targetIDs []uuid.UUID) ([]uuid.UUID, int, int, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()

	var sources []*domain.Message
	for _, id := range sourceIDs {
		m := r.find(id)
		if m == nil || m.DeletedAt != nil {
			continue
		}
		if _, member := r.w.members[m.ConversationID][actorID]; !member {
			continue
		}
		sources = append(sources, m)
	}

	var targets []uuid.UUID
	for _, id := range targetIDs {
		if r.guard(id, actorID) == nil {
			targets = append(targets, id)
		}
	}

	var newIDs []uuid.UUID
	for _, src := range sources {
		for _, target := range targets {
			cp := *src
			cp.ID = uuid.New()
			cp.ConversationID = target
			cp.SenderID = actorID
			cp.IsForwarded = true
			cp.ReplyToID = nil
			cp.ReplyToNote = nil
			cp.CreatedAt = time.Now()
			r.w.msgs = append(r.w.msgs, &cp)
			newIDs = append(newIDs, cp.ID)
		}
	}
	return newIDs, len(sources), len(targets), nil
}

// --- fake relationship repository ---

type fakeRelRepo struct{ w *world }

func (r *fakeRelRepo) IsFriend(_ context.Context, a, b uuid.UUID) (bool, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	return r.w.friends[a][b], nil
}

func (r *fakeRelRepo) Blocks(_ context.Context, a, b uuid.UUID) (bool, bool, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	return r.w.blocks[a][b], r.w.blocks[b][a], nil
}

func (r *fakeRelRepo) PendingInvite(_ context.Context, senderID, receiverID uuid.UUID) (*domain.Invite, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	for _, inv := range r.w.invites {
		if inv.SenderID == senderID && inv.ReceiverID == receiverID && inv.Status == domain.InviteStatusPending {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRelRepo) UpsertInvite(_ context.Context, senderID, receiverID uuid.UUID) (*domain.Invite, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	for _, inv := range r.w.invites {
		if inv.SenderID == senderID && inv.ReceiverID == receiverID && inv.Status == domain.InviteStatusPending {
			cp := *inv
			return &cp, nil
		}
	}
	inv := &domain.Invite{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     domain.InviteStatusPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	r.w.invites[inv.ID] = inv
	cp := *inv
	return &cp, nil
}

func (r *fakeRelRepo) Accept(_ context.Context, inviteID, receiverID uuid.UUID) (*domain.Invite, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	inv, ok := r.w.invites[inviteID]
	if !ok || inv.ReceiverID != receiverID || inv.Status != domain.InviteStatusPending {
		return nil, nil
	}
	inv.Status = domain.InviteStatusAccepted
	r.w.befriend(inv.SenderID, inv.ReceiverID)
	cp := *inv
	return &cp, nil
}

func (r *fakeRelRepo) Decline(_ context.Context, inviteID, receiverID uuid.UUID) (bool, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	inv, ok := r.w.invites[inviteID]
	if !ok || inv.ReceiverID != receiverID || inv.Status != domain.InviteStatusPending {
		return false, nil
	}
	inv.Status = domain.InviteStatusDeclined
	return true, nil
}

func (r *fakeRelRepo) CancelSent(_ context.Context, inviteID, senderID uuid.UUID) (*uuid.UUID, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	inv, ok := r.w.invites[inviteID]
	if !ok || inv.SenderID != senderID || inv.Status != domain.InviteStatusPending {
		return nil, nil
	}
	inv.Status = domain.InviteStatusCanceled
	receiver := inv.ReceiverID
	return &receiver, nil
}

func (r *fakeRelRepo) Block(_ context.Context, blockerID, targetID uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	if r.w.blocks[blockerID] == nil {
		r.w.blocks[blockerID] = make(map[uuid.UUID]bool)
	}
	r.w.blocks[blockerID][targetID] = true
	delete(r.w.friends[blockerID], targetID)
	delete(r.w.friends[targetID], blockerID)
	for _, inv := range r.w.invites {
		if inv.Status != domain.InviteStatusPending {
			continue
		}
		between := (inv.SenderID == blockerID && inv.ReceiverID == targetID) ||
			(inv.SenderID == targetID && inv.ReceiverID == blockerID)
		if between {
			inv.Status = domain.InviteStatusCanceled
		}
	}
	return nil
}

func (r *fakeRelRepo) Unblock(_ context.Context, blockerID, targetID uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	delete(r.w.blocks[blockerID], targetID)
	return nil
}

func (r *fakeRelRepo) RemoveFriendship(_ context.Context, a, b uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	delete(r.w.friends[a], b)
	delete(r.w.friends[b], a)
	return nil
}

func (r *fakeRelRepo) ListFriends(_ context.Context, userID uuid.UUID) ([]domain.Friend, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []domain.Friend
	for friendID := range r.w.friends[userID] {
		f := domain.Friend{UserID: friendID}
		if u, ok := r.w.users[friendID]; ok {
			f.DisplayName = u.DisplayName
			f.Status = u.Status
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out, nil
}

func (r *fakeRelRepo) ListInvites(_ context.Context, userID uuid.UUID, received bool) ([]domain.Invite, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []domain.Invite
	for _, inv := range r.w.invites {
		if inv.Status != domain.InviteStatusPending {
			continue
		}
		if received && inv.ReceiverID == userID || !received && inv.SenderID == userID {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r *fakeRelRepo) SearchUsers(_ context.Context, userID uuid.UUID, query string, limit int) ([]domain.UserSearchResult, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []domain.UserSearchResult
	for _, u := range r.w.users {
		if u.ID == userID || r.w.friends[userID][u.ID] {
			continue
		}
		if r.w.blocks[userID][u.ID] || r.w.blocks[u.ID][userID] {
			continue
		}
		if query != "" && !strings.Contains(u.Username, query) {
			continue
		}
		out = append(out, domain.UserSearchResult{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- fake visibility repository ---

type fakeVisRepo struct{ w *world }

func (r *fakeVisRepo) ClearedAt(_ context.Context, userID, conversationID uuid.UUID) (*time.Time, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	if t, ok := r.w.cleared[pairKey(userID, conversationID)]; ok {
		return &t, nil
	}
	return nil, nil
}

func (r *fakeVisRepo) SetClearedAt(_ context.Context, userID, conversationID uuid.UUID, at time.Time) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	r.w.cleared[pairKey(userID, conversationID)] = at
	return nil
}

func (r *fakeVisRepo) Hide(_ context.Context, userID, conversationID uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	if r.w.hidden[userID] == nil {
		r.w.hidden[userID] = make(map[uuid.UUID]bool)
	}
	r.w.hidden[userID][conversationID] = true
	return nil
}

func (r *fakeVisRepo) Unhide(_ context.Context, userID, conversationID uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	delete(r.w.hidden[userID], conversationID)
	return nil
}

func (r *fakeVisRepo) ListHidden(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []uuid.UUID
	for id := range r.w.hidden[userID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (r *fakeVisRepo) GetPINHash(_ context.Context, userID uuid.UUID) (*string, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	if h, ok := r.w.pinHash[userID]; ok {
		return &h, nil
	}
	return nil, nil
}

func (r *fakeVisRepo) SetPINHash(_ context.Context, userID uuid.UUID, hash string) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	r.w.pinHash[userID] = hash
	return nil
}

func (r *fakeVisRepo) ClearPIN(_ context.Context, userID uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	delete(r.w.pinHash, userID)
	return nil
}

func (r *fakeVisRepo) WipeHidden(_ context.Context, userID uuid.UUID, at time.Time) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	for convID := range r.w.hidden[userID] {
		r.w.cleared[pairKey(userID, convID)] = at
	}
	delete(r.w.hidden, userID)
	delete(r.w.pinHash, userID)
	return nil
}

// --- fake scheduled repository ---

type fakeSchedRepo struct {
	w       *world
	msgRepo *fakeMsgRepo
	// settleErr injects a non-guard failure for specific items during a
	// sweep; those items stay pending instead of stalling the batch.
	settleErr map[uuid.UUID]error
}

func (r *fakeSchedRepo) Create(_ context.Context, sm *domain.ScheduledMessage) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	cp := *sm
	r.w.scheduled[sm.ID] = &cp
	return nil
}

func (r *fakeSchedRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.ScheduledMessage, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	sm, ok := r.w.scheduled[id]
	if !ok {
		return nil, nil
	}
	cp := *sm
	return &cp, nil
}

func (r *fakeSchedRepo) ListPending(_ context.Context, userID uuid.UUID, conversationID *uuid.UUID, limit int) ([]domain.ScheduledMessage, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []domain.ScheduledMessage
	for _, sm := range r.w.scheduled {
		if sm.UserID != userID || sm.Status != domain.ScheduledStatusPending {
			continue
		}
		if conversationID != nil && sm.ConversationID != *conversationID {
			continue
		}
		out = append(out, *sm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduleAt.Before(out[j].ScheduleAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeSchedRepo) Cancel(_ context.Context, id, userID uuid.UUID) (bool, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	sm, ok := r.w.scheduled[id]
	if !ok || sm.UserID != userID || sm.Status != domain.ScheduledStatusPending {
		return false, nil
	}
	sm.Status = domain.ScheduledStatusCanceled
	return true, nil
}

func (r *fakeSchedRepo) Reschedule(_ context.Context, id, userID uuid.UUID, at time.Time) (bool, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	sm, ok := r.w.scheduled[id]
	if !ok || sm.UserID != userID || sm.Status != domain.ScheduledStatusPending {
		return false, nil
	}
	sm.ScheduleAt = at
	return true, nil
}

// promote mirrors the production path: guard re-check, message insert,
// status flip. Caller holds the lock.
func (r *fakeSchedRepo) promote(sm *domain.ScheduledMessage) error {
	if err := r.msgRepo.guard(sm.ConversationID, sm.UserID); err != nil {
		return err
	}
	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: sm.ConversationID,
		SenderID:       sm.UserID,
		Type:           domain.MessageTypeText,
		Text:           sm.Text,
		AssetURL:       sm.AssetURL,
		ReplyToID:      sm.ReplyToID,
		ReplyToNote:    sm.ReplyToNote,
		CreatedAt:      time.Now(),
	}
	if sm.AssetURL != nil {
		msg.Type = domain.MessageTypeImage
	}
	r.w.msgs = append(r.w.msgs, msg)
	sm.Status = domain.ScheduledStatusSent
	sm.SentMessageID = &msg.ID
	return nil
}

func (r *fakeSchedRepo) SendNow(_ context.Context, id, userID uuid.UUID) (*domain.ScheduledMessage, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	sm, ok := r.w.scheduled[id]
	if !ok || sm.UserID != userID || sm.Status != domain.ScheduledStatusPending {
		return nil, nil
	}
	if err := r.promote(sm); err != nil {
		return nil, err
	}
	cp := *sm
	return &cp, nil
}

func (r *fakeSchedRepo) ClaimDueBatch(_ context.Context, batch int) ([]repository.SweepOutcome, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var due []*domain.ScheduledMessage
	for _, sm := range r.w.scheduled {
		if sm.Status == domain.ScheduledStatusPending && !sm.ScheduleAt.After(time.Now()) {
			due = append(due, sm)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduleAt.Before(due[j].ScheduleAt) })
	if batch > 0 && len(due) > batch {
		due = due[:batch]
	}

	var out []repository.SweepOutcome
	for _, sm := range due {
		if _, failed := r.settleErr[sm.ID]; failed {
			continue
		}
		if err := r.promote(sm); err != nil {
			sm.Status = domain.ScheduledStatusCanceled
			out = append(out, repository.SweepOutcome{Scheduled: *sm, Sent: false})
			continue
		}
		out = append(out, repository.SweepOutcome{Scheduled: *sm, Sent: true, MessageID: sm.SentMessageID})
	}
	return out, nil
}

// --- fake report repository ---

type fakeReportRepo struct {
	w        *world
	userRepo *fakeUserRepo
	convRepo *fakeConvRepo
	msgRepo  *fakeMsgRepo
}

func (r *fakeReportRepo) Create(_ context.Context, report *domain.Report) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	cp := *report
	r.w.reports[report.ID] = &cp
	return nil
}

func (r *fakeReportRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Report, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	rep, ok := r.w.reports[id]
	if !ok {
		return nil, nil
	}
	cp := *rep
	return &cp, nil
}

func (r *fakeReportRepo) List(_ context.Context, status string, limit, offset int) ([]domain.Report, int, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []domain.Report
	for _, rep := range r.w.reports {
		if status != "" && rep.Status != status {
			continue
		}
		out = append(out, *rep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *fakeReportRepo) Resolve(ctx context.Context, reportID, adminID uuid.UUID, status string, note *string, plan *repository.SanctionPlan) (*repository.SanctionResult, error) {
	r.w.mu.Lock()
	rep, ok := r.w.reports[reportID]
	if !ok {
		r.w.mu.Unlock()
		return nil, nil
	}
	if rep.IsTerminal() {
		r.w.mu.Unlock()
		return nil, repository.ErrReportTerminal
	}
	r.w.mu.Unlock()

	result := &repository.SanctionResult{}
	if plan != nil {
		if plan.UserID != nil {
			old, version, err := r.userRepo.Sanction(ctx, *plan.UserID, plan.UserStatus)
			if err != nil {
				return nil, err
			}
			result.OldUserStatus = old
			result.NewTokenVersion = version
		}
		if plan.ConversationID != nil {
			if err := r.convRepo.SetGroupStatus(ctx, *plan.ConversationID, plan.GroupStatus); err != nil {
				return nil, err
			}
		}
		if plan.DeleteMessageID != nil {
			if err := r.msgRepo.Tombstone(ctx, *plan.DeleteMessageID); err != nil {
				return nil, err
			}
		}
		if plan.DeleteNoteID != nil {
			r.w.mu.Lock()
			delete(r.w.notes, *plan.DeleteNoteID)
			r.w.mu.Unlock()
		}
	}

	r.w.mu.Lock()
	now := time.Now()
	rep.Status = status
	rep.ResolvedBy = &adminID
	rep.ResolvedAt = &now
	rep.ResolutionNote = note
	cp := *rep
	r.w.mu.Unlock()

	result.Report = &cp
	return result, nil
}

// --- fake note / notification repositories ---

type fakeNoteRepo struct{ w *world }

func (r *fakeNoteRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Note, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	n, ok := r.w.notes[id]
	if !ok {
		return nil, nil
	}
	cp := *n
	return &cp, nil
}

func (r *fakeNoteRepo) Upsert(_ context.Context, n *domain.Note) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	for id, existing := range r.w.notes {
		if existing.OwnerID == n.OwnerID {
			delete(r.w.notes, id)
		}
	}
	cp := *n
	if u, ok := r.w.users[n.OwnerID]; ok {
		cp.OwnerDisplayName = u.DisplayName
	}
	r.w.notes[n.ID] = &cp
	return nil
}

func (r *fakeNoteRepo) GetByOwner(_ context.Context, ownerID uuid.UUID) (*domain.Note, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	for _, n := range r.w.notes {
		if n.OwnerID == ownerID {
			cp := *n
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeNoteRepo) ListFeed(_ context.Context, userID uuid.UUID) ([]domain.Note, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []domain.Note
	for _, n := range r.w.notes {
		if n.ExpiresAt.Before(time.Now()) {
			continue
		}
		if n.OwnerID != userID && !r.w.friends[userID][n.OwnerID] {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeNoteRepo) DeleteByOwner(_ context.Context, ownerID uuid.UUID) (bool, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	for id, n := range r.w.notes {
		if n.OwnerID == ownerID {
			delete(r.w.notes, id)
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeNoteRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	delete(r.w.notes, id)
	return nil
}

type fakeNotifRepo struct{ w *world }

func (r *fakeNotifRepo) Create(_ context.Context, n *domain.AppNotification) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	cp := *n
	r.w.notifications = append(r.w.notifications, &cp)
	return nil
}

func (r *fakeNotifRepo) List(_ context.Context, userID uuid.UUID, limit, offset int) ([]domain.AppNotification, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []domain.AppNotification
	for _, n := range r.w.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (r *fakeNotifRepo) MarkRead(_ context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	for _, n := range r.w.notifications {
		if n.UserID != userID {
			continue
		}
		if len(ids) == 0 {
			n.IsRead = true
			continue
		}
		for _, id := range ids {
			if n.ID == id {
				n.IsRead = true
			}
		}
	}
	return nil
}

// --- fake device repository ---

type fakeDeviceRepo struct {
	w        *world
	devices  map[uuid.UUID]*domain.Device
	settings map[uuid.UUID]*domain.NotificationSettings
}

func newFakeDeviceRepo(w *world) *fakeDeviceRepo {
	return &fakeDeviceRepo{
		w:        w,
		devices:  make(map[uuid.UUID]*domain.Device),
		settings: make(map[uuid.UUID]*domain.NotificationSettings),
	}
}

func (r *fakeDeviceRepo) Register(_ context.Context, userID uuid.UUID, token, platform string) (*string, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var displaced *string
	for owner, d := range r.devices {
		if d.Token == token && owner != userID {
			delete(r.devices, owner)
		}
	}
	if old, ok := r.devices[userID]; ok && old.Token != token {
		t := old.Token
		displaced = &t
	}
	r.devices[userID] = &domain.Device{
		ID:           uuid.New(),
		UserID:       userID,
		Token:        token,
		Platform:     platform,
		IsActive:     true,
		RegisteredAt: time.Now(),
	}
	return displaced, nil
}

func (r *fakeDeviceRepo) ActiveTokens(_ context.Context, userIDs []uuid.UUID, kind string) ([]string, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []string
	for _, id := range userIDs {
		d, ok := r.devices[id]
		if !ok || !d.IsActive {
			continue
		}
		if kind != "" {
			s, has := r.settings[id]
			if has {
				switch kind {
				case "dm":
					if !s.DMPushEnabled {
						continue
					}
				case "group":
					if !s.GroupPushEnabled {
						continue
					}
				case "call":
					if !s.CallPushEnabled {
						continue
					}
				}
			}
		}
		out = append(out, d.Token)
	}
	return out, nil
}

func (r *fakeDeviceRepo) Deactivate(_ context.Context, userID uuid.UUID) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	delete(r.devices, userID)
	return nil
}

func (r *fakeDeviceRepo) GetSettings(_ context.Context, userID uuid.UUID) (*domain.NotificationSettings, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	if s, ok := r.settings[userID]; ok {
		cp := *s
		return &cp, nil
	}
	return &domain.NotificationSettings{
		UserID:           userID,
		DMPushEnabled:    true,
		GroupPushEnabled: true,
		CallPushEnabled:  true,
	}, nil
}

func (r *fakeDeviceRepo) UpdateSettings(_ context.Context, s *domain.NotificationSettings) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	cp := *s
	r.settings[s.UserID] = &cp
	return nil
}

// --- recording notifier and pusher ---

type recNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recNotifier) record(ev string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recNotifier) count(prefix string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if strings.HasPrefix(ev, prefix) {
			c++
		}
	}
	return c
}

func (n *recNotifier) MessageNew(msg *domain.Message) { n.record("message:new:" + msg.ID.String()) }
func (n *recNotifier) MessageUpdated(msg *domain.Message) {
	n.record("message:updated:" + msg.ID.String())
}
func (n *recNotifier) MessageDeleted(conversationID, messageID uuid.UUID) {
	n.record("message:deleted:" + messageID.String())
}
func (n *recNotifier) ConversationDeleted(conversationID uuid.UUID) {
	n.record("conversation:deleted:" + conversationID.String())
}
func (n *recNotifier) InvitesChanged(userID uuid.UUID, kind string) {
	n.record("invites:" + kind + ":" + userID.String())
}
func (n *recNotifier) FriendsChanged(userID uuid.UUID) { n.record("friends:" + userID.String()) }
func (n *recNotifier) ForceLogout(userID uuid.UUID, reason, message string) {
	n.record("force-logout:" + userID.String())
}

type recPusher struct {
	mu     sync.Mutex
	events []string
}

func (p *recPusher) record(ev string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recPusher) count(prefix string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := 0
	for _, ev := range p.events {
		if strings.HasPrefix(ev, prefix) {
			c++
		}
	}
	return c
}

func (p *recPusher) ChatMessage(_ context.Context, conversationID, senderID uuid.UUID, preview string) {
	p.record("chat:" + conversationID.String() + ":" + preview)
}
func (p *recPusher) ForceLogout(_ context.Context, userID uuid.UUID, reason, message string) {
	p.record("force-logout:" + userID.String())
}
func (p *recPusher) ForceLogoutToken(_ context.Context, token, reason, message string) {
	p.record("force-logout-token:" + token)
}
func (p *recPusher) IncomingCall(_ context.Context, conversationID, callerID uuid.UUID, kind string) {
	p.record("call:" + conversationID.String())
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/relay/internal/domain"
)

func newModerationService(w *world) (*ModerationService, *recNotifier, *recPusher) {
	userRepo := &fakeUserRepo{w}
	convRepo := &fakeConvRepo{w}
	msgRepo := &fakeMsgRepo{w}
	reportRepo := &fakeReportRepo{w: w, userRepo: userRepo, convRepo: convRepo, msgRepo: msgRepo}
	svc := NewModerationService(reportRepo, userRepo, convRepo, &fakeNoteRepo{w}, &fakeNotifRepo{w}, testLogger())
	n := &recNotifier{}
	p := &recPusher{}
	svc.SetNotifier(n)
	svc.SetPusher(p)
	return svc, n, p
}

func notificationsFor(w *world, userID uuid.UUID) []domain.AppNotification {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []domain.AppNotification
	for _, n := range w.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out
}

func TestCreateReport(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	svc, _, _ := newModerationService(w)

	reporter := w.addUser("reporter")
	offender := w.addUser("offender")

	t.Run("valid report lands pending", func(t *testing.T) {
		report, err := svc.CreateReport(ctx, reporter.ID, CreateReportInput{
			TargetType: domain.ReportTargetUser,
			TargetID:   offender.ID,
			Reasons:    []string{"spam", "  harassment  "},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.ReportStatusPending, report.Status)
		assert.Equal(t, []string{"spam", "harassment"}, report.Reasons)
	})

	t.Run("unknown target type rejected", func(t *testing.T) {
		_, err := svc.CreateReport(ctx, reporter.ID, CreateReportInput{
			TargetType: "planet",
			TargetID:   offender.ID,
			Reasons:    []string{"spam"},
		})
		assert.ErrorIs(t, err, ErrInvalidReport)
	})

	t.Run("reason count is bounded", func(t *testing.T) {
		_, err := svc.CreateReport(ctx, reporter.ID, CreateReportInput{
			TargetType: domain.ReportTargetUser,
			TargetID:   offender.ID,
			Reasons:    []string{"  ", ""},
		})
		assert.ErrorIs(t, err, ErrInvalidReport)

		_, err = svc.CreateReport(ctx, reporter.ID, CreateReportInput{
			TargetType: domain.ReportTargetUser,
			TargetID:   offender.ID,
			Reasons:    []string{"a", "b", "c", "d"},
		})
		assert.ErrorIs(t, err, ErrInvalidReport)
	})
}

func TestResolveReport(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	svc, rec, pushRec := newModerationService(w)

	admin := w.addUser("admin")
	w.admins[admin.ID] = true
	reporter := w.addUser("reporter")
	offender := w.addUser("offender")

	newReport := func(t *testing.T) *domain.Report {
		t.Helper()
		report, err := svc.CreateReport(ctx, reporter.ID, CreateReportInput{
			TargetType: domain.ReportTargetUser,
			TargetID:   offender.ID,
			Reasons:    []string{"spam"},
		})
		require.NoError(t, err)
		return report
	}

	t.Run("warn resolves with no side effect on the target", func(t *testing.T) {
		report := newReport(t)
		got, err := svc.ResolveReport(ctx, admin.ID, report.ID, ResolveReportInput{Action: Warn{}})
		require.NoError(t, err)
		assert.Equal(t, domain.ReportStatusResolved, got.Status)
		assert.Equal(t, domain.UserStatusActive, w.users[offender.ID].Status)
		assert.NotEmpty(t, notificationsFor(w, reporter.ID))
	})

	t.Run("resolved reports are terminal", func(t *testing.T) {
		report := newReport(t)
		_, err := svc.ResolveReport(ctx, admin.ID, report.ID, ResolveReportInput{})
		require.NoError(t, err)
		_, err = svc.ResolveReport(ctx, admin.ID, report.ID, ResolveReportInput{})
		assert.ErrorIs(t, err, ErrReportTerminal)
	})

	t.Run("reject keeps the target untouched", func(t *testing.T) {
		report := newReport(t)
		got, err := svc.ResolveReport(ctx, admin.ID, report.ID, ResolveReportInput{Reject: true})
		require.NoError(t, err)
		assert.Equal(t, domain.ReportStatusRejected, got.Status)
	})

	t.Run("lock sanction fires force-logout exactly once", func(t *testing.T) {
		report := newReport(t)
		_, err := svc.ResolveReport(ctx, admin.ID, report.ID, ResolveReportInput{
			Action: UserSanction{Status: domain.UserStatusLocked},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.UserStatusLocked, w.users[offender.ID].Status)
		assert.Equal(t, 1, rec.count("force-logout:"+offender.ID.String()))
		assert.Equal(t, 1, pushRec.count("force-logout:"+offender.ID.String()))

		// Escalating lock to ban: no second force-logout, the sessions are
		// already gone.
		report = newReport(t)
		_, err = svc.ResolveReport(ctx, admin.ID, report.ID, ResolveReportInput{
			Action: UserSanction{Status: domain.UserStatusBanned},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.UserStatusBanned, w.users[offender.ID].Status)
		assert.Equal(t, 1, rec.count("force-logout:"+offender.ID.String()))

		w.users[offender.ID].Status = domain.UserStatusActive
	})

	t.Run("admins cannot be sanctioned", func(t *testing.T) {
		second := w.addUser("second")
		w.admins[second.ID] = true
		report, err := svc.CreateReport(ctx, reporter.ID, CreateReportInput{
			TargetType: domain.ReportTargetUser,
			TargetID:   second.ID,
			Reasons:    []string{"abuse of power"},
		})
		require.NoError(t, err)
		_, err = svc.ResolveReport(ctx, admin.ID, report.ID, ResolveReportInput{
			Action: UserSanction{Status: domain.UserStatusBanned},
		})
		assert.ErrorIs(t, err, ErrCannotSanctionAdmin)
	})

	t.Run("self sanction is rejected", func(t *testing.T) {
		report, err := svc.CreateReport(ctx, reporter.ID, CreateReportInput{
			TargetType: domain.ReportTargetUser,
			TargetID:   admin.ID,
			Reasons:    []string{"reported the admin"},
		})
		require.NoError(t, err)
		_, err = svc.ResolveReport(ctx, admin.ID, report.ID, ResolveReportInput{
			Action: UserSanction{Status: domain.UserStatusLocked},
		})
		assert.ErrorIs(t, err, ErrCannotSanctionSelf)
	})

	t.Run("unknown report", func(t *testing.T) {
		_, err := svc.ResolveReport(ctx, admin.ID, uuid.New(), ResolveReportInput{})
		assert.ErrorIs(t, err, ErrReportNotFound)
	})
}

func TestSanctionTargetDerivation(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	svc, _, _ := newModerationService(w)

	admin := w.addUser("admin")
	w.admins[admin.ID] = true
	reporter := w.addUser("reporter")
	offender := w.addUser("offender")

	t.Run("note reports sanction the note owner", func(t *testing.T) {
		note := &domain.Note{ID: uuid.New(), OwnerID: offender.ID, Text: "offensive"}
		w.notes[note.ID] = note

		report, err := svc.CreateReport(ctx, reporter.ID, CreateReportInput{
			TargetType: domain.ReportTargetNote,
			TargetID:   note.ID,
			Reasons:    []string{"offensive"},
		})
		require.NoError(t, err)
		_, err = svc.ResolveReport(ctx, admin.ID, report.ID, ResolveReportInput{
			Action: UserSanction{Status: domain.UserStatusLocked},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.UserStatusLocked, w.users[offender.ID].Status)
		w.users[offender.ID].Status = domain.UserStatusActive
	})

	t.Run("direct conversation reports sanction the other member", func(t *testing.T) {
		conv := w.addDirect(reporter.ID, offender.ID)
		report, err := svc.CreateReport(ctx, reporter.ID, CreateReportInput{
			TargetType: domain.ReportTargetConversation,
			TargetID:   conv.ID,
			Reasons:    []string{"harassment"},
		})
		require.NoError(t, err)
		_, err = svc.ResolveReport(ctx, admin.ID, report.ID, ResolveReportInput{
			Action: UserSanction{Status: domain.UserStatusLocked},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.UserStatusLocked, w.users[offender.ID].Status)
		w.users[offender.ID].Status = domain.UserStatusActive
	})

	t.Run("group reports imply no single user", func(t *testing.T) {
		group := w.addGroup(offender.ID, reporter.ID)
		report, err := svc.CreateReport(ctx, reporter.ID, CreateReportInput{
			TargetType: domain.ReportTargetConversation,
			TargetID:   group.ID,
			Reasons:    []string{"spam ring"},
		})
		require.NoError(t, err)
		_, err = svc.ResolveReport(ctx, admin.ID, report.ID, ResolveReportInput{
			Action: UserSanction{Status: domain.UserStatusBanned},
		})
		assert.ErrorIs(t, err, ErrNoSanctionTarget)
	})
}

func TestResolveWithGroupSanction(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	svc, _, _ := newModerationService(w)

	admin := w.addUser("admin")
	w.admins[admin.ID] = true
	reporter := w.addUser("reporter")
	owner := w.addUser("owner")
	group := w.addGroup(owner.ID, reporter.ID)

	report, err := svc.CreateReport(ctx, reporter.ID, CreateReportInput{
		TargetType: domain.ReportTargetConversation,
		TargetID:   group.ID,
		Reasons:    []string{"spam"},
	})
	require.NoError(t, err)

	_, err = svc.ResolveReport(ctx, admin.ID, report.ID, ResolveReportInput{
		Action: GroupSanction{Status: domain.ConversationStatusLocked},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationStatusLocked, w.convs[group.ID].Status)

	t.Run("direct conversations cannot take a group sanction", func(t *testing.T) {
		direct := w.addDirect(reporter.ID, owner.ID)
		rep, err := svc.CreateReport(ctx, reporter.ID, CreateReportInput{
			TargetType: domain.ReportTargetConversation,
			TargetID:   direct.ID,
			Reasons:    []string{"x"},
		})
		require.NoError(t, err)
		_, err = svc.ResolveReport(ctx, admin.ID, rep.ID, ResolveReportInput{
			Action: GroupSanction{Status: domain.ConversationStatusLocked},
		})
		assert.ErrorIs(t, err, ErrNotAGroup)
	})
}

func TestResolveWithContentRemoval(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	svc, _, _ := newModerationService(w)

	admin := w.addUser("admin")
	w.admins[admin.ID] = true
	reporter := w.addUser("reporter")
	offender := w.addUser("offender")
	conv := w.addDirect(reporter.ID, offender.ID)
	msg := w.addMessage(conv.ID, offender.ID, "rule-breaking")

	report, err := svc.CreateReport(ctx, reporter.ID, CreateReportInput{
		TargetType:     domain.ReportTargetMessage,
		TargetID:       msg.ID,
		ConversationID: &conv.ID,
		Reasons:        []string{"illegal content"},
	})
	require.NoError(t, err)

	_, err = svc.ResolveReport(ctx, admin.ID, report.ID, ResolveReportInput{Action: ContentRemoval{}})
	require.NoError(t, err)
	assert.NotNil(t, msg.DeletedAt)

	t.Run("removal only fits message and note reports", func(t *testing.T) {
		rep, err := svc.CreateReport(ctx, reporter.ID, CreateReportInput{
			TargetType: domain.ReportTargetUser,
			TargetID:   offender.ID,
			Reasons:    []string{"x"},
		})
		require.NoError(t, err)
		_, err = svc.ResolveReport(ctx, admin.ID, rep.ID, ResolveReportInput{Action: ContentRemoval{}})
		assert.ErrorIs(t, err, ErrInvalidReport)
	})
}

func TestSetUserStatus(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	svc, rec, _ := newModerationService(w)

	admin := w.addUser("admin")
	w.admins[admin.ID] = true
	target := w.addUser("target")

	t.Run("lock bumps the epoch and forces logout", func(t *testing.T) {
		before := w.users[target.ID].TokenVersion
		got, err := svc.SetUserStatus(ctx, admin.ID, target.ID, domain.UserStatusLocked)
		require.NoError(t, err)
		assert.Equal(t, domain.UserStatusLocked, got.Status)
		assert.Greater(t, got.TokenVersion, before)
		assert.Equal(t, 1, rec.count("force-logout:"+target.ID.String()))
	})

	t.Run("unlock does not force logout", func(t *testing.T) {
		_, err := svc.SetUserStatus(ctx, admin.ID, target.ID, domain.UserStatusActive)
		require.NoError(t, err)
		assert.Equal(t, 1, rec.count("force-logout:"+target.ID.String()))
	})

	t.Run("guards", func(t *testing.T) {
		_, err := svc.SetUserStatus(ctx, admin.ID, admin.ID, domain.UserStatusBanned)
		assert.ErrorIs(t, err, ErrCannotSanctionSelf)

		second := w.addUser("second")
		w.admins[second.ID] = true
		_, err = svc.SetUserStatus(ctx, admin.ID, second.ID, domain.UserStatusBanned)
		assert.ErrorIs(t, err, ErrCannotSanctionAdmin)

		_, err = svc.SetUserStatus(ctx, admin.ID, uuid.New(), domain.UserStatusBanned)
		assert.ErrorIs(t, err, ErrUserNotFound)

		_, err = svc.SetUserStatus(ctx, admin.ID, target.ID, "frozen")
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})
}

func TestSetGroupStatus(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	svc, _, _ := newModerationService(w)

	owner := w.addUser("owner")
	member := w.addUser("member")
	group := w.addGroup(owner.ID, member.ID)
	w.addMessage(group.ID, member.ID, "will be purged")

	t.Run("direct conversations rejected", func(t *testing.T) {
		direct := w.addDirect(owner.ID, member.ID)
		_, err := svc.SetGroupStatus(ctx, direct.ID, domain.ConversationStatusLocked)
		assert.ErrorIs(t, err, ErrNotAGroup)
	})

	t.Run("banning purges the ledger", func(t *testing.T) {
		got, err := svc.SetGroupStatus(ctx, group.ID, domain.ConversationStatusBanned)
		require.NoError(t, err)
		assert.Equal(t, domain.ConversationStatusBanned, got.Status)
		for _, m := range w.msgs {
			assert.NotEqual(t, group.ID, m.ConversationID)
		}
	})
}

func TestAdminOverview(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	svc, _, _ := newModerationService(w)

	alice := w.addUser("alice")
	bob := w.addUser("bob")
	carol := w.addUser("carol")
	book := w.addGroup(alice.ID, bob.ID)
	chess := w.addGroup(alice.ID, bob.ID, carol.ID)
	w.convs[chess.ID].Status = domain.ConversationStatusLocked

	t.Run("list groups with member counts", func(t *testing.T) {
		groups, total, err := svc.ListGroups(ctx, "", "", 20, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		counts := map[uuid.UUID]int{}
		for _, g := range groups {
			counts[g.ID] = g.MemberCount
		}
		assert.Equal(t, 2, counts[book.ID])
		assert.Equal(t, 3, counts[chess.ID])
	})

	t.Run("status filter narrows the page", func(t *testing.T) {
		groups, total, err := svc.ListGroups(ctx, domain.ConversationStatusLocked, "", 20, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, groups, 1)
		assert.Equal(t, chess.ID, groups[0].ID)
	})

	t.Run("group members", func(t *testing.T) {
		members, err := svc.GroupMembers(ctx, chess.ID)
		require.NoError(t, err)
		assert.Len(t, members, 3)

		direct := w.addDirect(alice.ID, bob.ID)
		_, err = svc.GroupMembers(ctx, direct.ID)
		assert.ErrorIs(t, err, ErrNotAGroup)

		_, err = svc.GroupMembers(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})

	t.Run("stats count users, groups and open reports", func(t *testing.T) {
		_, err := svc.CreateReport(ctx, carol.ID, CreateReportInput{
			TargetType: domain.ReportTargetUser,
			TargetID:   bob.ID,
			Reasons:    []string{"spam"},
		})
		require.NoError(t, err)

		stats, err := svc.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Users)
		assert.Equal(t, 2, stats.Groups)
		assert.Equal(t, 1, stats.PendingReports)
	})
}

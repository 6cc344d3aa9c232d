package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vedran77/relay/internal/config"
	"github.com/vedran77/relay/internal/database"
	"github.com/vedran77/relay/internal/logging"
	"github.com/vedran77/relay/internal/push"
	postgresrepo "github.com/vedran77/relay/internal/repository/postgres"
	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/handlers"
	"github.com/vedran77/relay/internal/transport/http/middleware"
	"github.com/vedran77/relay/internal/transport/ws"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		logger.Fatalw("connecting to database", "error", err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Repositories
	userRepo := postgresrepo.NewUserRepo(pool)
	convRepo := postgresrepo.NewConversationRepo(pool)
	visRepo := postgresrepo.NewVisibilityRepo(pool)
	msgRepo := postgresrepo.NewMessageRepo(pool)
	relRepo := postgresrepo.NewRelationshipRepo(pool)
	schedRepo := postgresrepo.NewScheduledRepo(pool)
	reportRepo := postgresrepo.NewReportRepo(pool)
	deviceRepo := postgresrepo.NewDeviceRepo(pool)
	notifRepo := postgresrepo.NewNotificationRepo(pool)
	noteRepo := postgresrepo.NewNoteRepo(pool)

	// Services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.AdminEmail)
	contactService := service.NewContactService(relRepo, userRepo, logger)
	convService := service.NewConversationService(convRepo, msgRepo, visRepo, userRepo, logger)
	groupService := service.NewGroupService(convRepo, userRepo, logger)
	messageService := service.NewMessageService(msgRepo, convRepo, relRepo, userRepo, noteRepo, logger)
	scheduledService := service.NewScheduledService(schedRepo, msgRepo, convRepo, logger)
	moderationService := service.NewModerationService(reportRepo, userRepo, convRepo, noteRepo, notifRepo, logger)
	deviceService := service.NewDeviceService(deviceRepo, logger)
	notificationService := service.NewNotificationService(notifRepo)
	noteService := service.NewNoteService(noteRepo, relRepo, notifRepo, logger)

	// Realtime fan-out and push
	hub := ws.NewHub(convRepo, relRepo)
	notifier := ws.NewHubNotifier(hub)
	pusher := push.NewService(&push.LogSender{Log: logger}, deviceRepo, convRepo, userRepo, logger)
	hub.SetPusher(pusher)

	contactService.SetNotifier(notifier)
	convService.SetNotifier(notifier)
	groupService.SetNotifier(notifier)
	messageService.SetNotifier(notifier)
	messageService.SetPusher(pusher)
	scheduledService.SetNotifier(notifier)
	scheduledService.SetPusher(pusher)
	moderationService.SetNotifier(notifier)
	moderationService.SetPusher(pusher)
	deviceService.SetPusher(pusher)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	contactHandler := handlers.NewContactHandler(contactService)
	convHandler := handlers.NewConversationHandler(convService)
	groupHandler := handlers.NewGroupHandler(groupService)
	messageHandler := handlers.NewMessageHandler(messageService)
	scheduledHandler := handlers.NewScheduledHandler(scheduledService)
	reportHandler := handlers.NewReportHandler(moderationService)
	adminHandler := handlers.NewAdminHandler(moderationService)
	notificationHandler := handlers.NewNotificationHandler(notificationService, deviceService)
	noteHandler := handlers.NewNoteHandler(noteService)

	// Middleware
	auth := middleware.Auth(authService)
	adminOnly := middleware.AdminOnly(authService)
	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }
	admin := func(h http.HandlerFunc) http.Handler { return auth(adminOnly(h)) }

	// Routes
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	// Protected - Auth
	mux.Handle("POST /api/v1/auth/logout", protected(authHandler.Logout))
	mux.Handle("GET /api/v1/auth/me", protected(authHandler.Me))

	// Protected - Contacts
	mux.Handle("GET /api/v1/users/search", protected(contactHandler.Search))
	mux.Handle("GET /api/v1/users/{id}/relation", protected(contactHandler.Relation))
	mux.Handle("POST /api/v1/contacts/invites", protected(contactHandler.SendInvite))
	mux.Handle("GET /api/v1/contacts/invites", protected(contactHandler.ListInvites))
	mux.Handle("POST /api/v1/contacts/invites/{id}/accept", protected(contactHandler.AcceptInvite))
	mux.Handle("POST /api/v1/contacts/invites/{id}/decline", protected(contactHandler.DeclineInvite))
	mux.Handle("DELETE /api/v1/contacts/invites/{id}", protected(contactHandler.CancelInvite))
	mux.Handle("GET /api/v1/contacts/friends", protected(contactHandler.ListFriends))
	mux.Handle("DELETE /api/v1/contacts/friends/{id}", protected(contactHandler.RemoveFriend))
	mux.Handle("POST /api/v1/contacts/blocks/{id}", protected(contactHandler.Block))
	mux.Handle("DELETE /api/v1/contacts/blocks/{id}", protected(contactHandler.Unblock))

	// Protected - Conversations
	mux.Handle("POST /api/v1/conversations/direct", protected(convHandler.OpenDirect))
	mux.Handle("GET /api/v1/conversations", protected(convHandler.List))
	mux.Handle("GET /api/v1/conversations/{id}/members", protected(convHandler.ListMembers))
	mux.Handle("POST /api/v1/conversations/{id}/read", protected(convHandler.MarkRead))
	mux.Handle("POST /api/v1/conversations/{id}/unread", protected(convHandler.MarkUnread))
	mux.Handle("POST /api/v1/conversations/{id}/clear", protected(convHandler.ClearHistory))
	mux.Handle("POST /api/v1/conversations/{id}/hide", protected(convHandler.Hide))
	mux.Handle("POST /api/v1/conversations/{id}/unhide", protected(convHandler.Unhide))
	mux.Handle("POST /api/v1/conversations/hidden", protected(convHandler.ListHidden))
	mux.Handle("PUT /api/v1/conversations/hidden/pin", protected(convHandler.SetPIN))
	mux.Handle("DELETE /api/v1/conversations/hidden", protected(convHandler.WipeHidden))

	// Protected - Groups
	mux.Handle("POST /api/v1/groups", protected(groupHandler.Create))
	mux.Handle("PATCH /api/v1/groups/{id}", protected(groupHandler.UpdateInfo))
	mux.Handle("DELETE /api/v1/groups/{id}", protected(groupHandler.Dissolve))
	mux.Handle("POST /api/v1/groups/{id}/members", protected(groupHandler.AddMembers))
	mux.Handle("DELETE /api/v1/groups/{id}/members/{uid}", protected(groupHandler.RemoveMember))
	mux.Handle("PUT /api/v1/groups/{id}/members/{uid}/role", protected(groupHandler.UpdateMemberRole))
	mux.Handle("PUT /api/v1/groups/{id}/members/{uid}/mute", protected(groupHandler.SetMemberMuted))
	mux.Handle("POST /api/v1/groups/{id}/transfer/{uid}", protected(groupHandler.TransferOwnership))
	mux.Handle("POST /api/v1/groups/{id}/leave", protected(groupHandler.Leave))

	// Protected - Messages
	mux.Handle("POST /api/v1/conversations/{id}/messages", protected(messageHandler.Send))
	mux.Handle("GET /api/v1/conversations/{id}/messages", protected(messageHandler.List))
	mux.Handle("PUT /api/v1/messages/{id}/reaction", protected(messageHandler.React))
	mux.Handle("POST /api/v1/messages/{id}/revoke", protected(messageHandler.Revoke))
	mux.Handle("DELETE /api/v1/messages/{id}", protected(messageHandler.HardDelete))
	mux.Handle("PUT /api/v1/messages/{id}/pin", protected(messageHandler.SetPinned))
	mux.Handle("POST /api/v1/messages/forward", protected(messageHandler.Forward))

	// Protected - Scheduled messages
	mux.Handle("POST /api/v1/scheduled", protected(scheduledHandler.Create))
	mux.Handle("GET /api/v1/scheduled", protected(scheduledHandler.List))
	mux.Handle("DELETE /api/v1/scheduled/{id}", protected(scheduledHandler.Cancel))
	mux.Handle("PUT /api/v1/scheduled/{id}", protected(scheduledHandler.Reschedule))
	mux.Handle("POST /api/v1/scheduled/{id}/send", protected(scheduledHandler.SendNow))

	// Protected - Notes
	mux.Handle("PUT /api/v1/notes", protected(noteHandler.Upsert))
	mux.Handle("GET /api/v1/notes/me", protected(noteHandler.Mine))
	mux.Handle("GET /api/v1/notes/feed", protected(noteHandler.Feed))
	mux.Handle("DELETE /api/v1/notes", protected(noteHandler.Delete))

	// Protected - Reports and notifications
	mux.Handle("POST /api/v1/reports", protected(reportHandler.Create))
	mux.Handle("GET /api/v1/notifications", protected(notificationHandler.List))
	mux.Handle("POST /api/v1/notifications/read", protected(notificationHandler.MarkRead))
	mux.Handle("POST /api/v1/devices", protected(notificationHandler.RegisterDevice))
	mux.Handle("DELETE /api/v1/devices", protected(notificationHandler.UnregisterDevice))
	mux.Handle("GET /api/v1/notifications/settings", protected(notificationHandler.GetSettings))
	mux.Handle("PUT /api/v1/notifications/settings", protected(notificationHandler.UpdateSettings))

	// Admin
	mux.Handle("GET /api/v1/admin/users", admin(adminHandler.ListUsers))
	mux.Handle("PUT /api/v1/admin/users/{id}/status", admin(adminHandler.SetUserStatus))
	mux.Handle("GET /api/v1/admin/groups", admin(adminHandler.ListGroups))
	mux.Handle("GET /api/v1/admin/groups/{id}/members", admin(adminHandler.GroupMembers))
	mux.Handle("PUT /api/v1/admin/groups/{id}/status", admin(adminHandler.SetGroupStatus))
	mux.Handle("GET /api/v1/admin/stats", admin(adminHandler.Stats))
	mux.Handle("GET /api/v1/admin/reports", admin(adminHandler.ListReports))
	mux.Handle("GET /api/v1/admin/reports/{id}", admin(adminHandler.GetReport))
	mux.Handle("POST /api/v1/admin/reports/{id}/resolve", admin(adminHandler.ResolveReport))

	// WebSocket
	mux.HandleFunc("GET /ws", ws.ServeWS(hub, authService))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: middleware.CORS(mux),
	}

	go hub.Run()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduledService.Run(gctx, cfg.SchedulerInterval, cfg.SchedulerBatch)
	})

	g.Go(func() error {
		logger.Infow("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatalw("server exited", "error", err)
	}
	logger.Info("shutdown complete")
}

package main

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/handler"
	"github.com/peerlearn/peerlearn-api/internal/middleware"
	"github.com/peerlearn/peerlearn-api/internal/models"
	"github.com/peerlearn/peerlearn-api/pkg/config"
	"github.com/peerlearn/peerlearn-api/pkg/logger"
	corsmiddleware "github.com/peerlearn/peerlearn-api/pkg/middleware/cors"
	reqidmiddleware "github.com/peerlearn/peerlearn-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, app *application, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metrics))
	r.Use(middleware.WithResponseMeta())

	maxUpload := cfg.Uploads.MaxFileSizeBytes

	metricsHandler := handler.NewMetricsHandler(app.metrics, map[string]handler.Pinger{
		"postgres": app.db,
		"redis": handler.PingFunc(func(ctx context.Context) error {
			return app.redis.Ping(ctx).Err()
		}),
	})
	authHandler := handler.NewAuthHandler(app.auth, maxUpload)
	friendHandler := handler.NewFriendHandler(app.friends)
	classroomHandler := handler.NewClassroomHandler(app.classrooms)
	chatHandler := handler.NewChatHandler(app.chat)
	dmHandler := handler.NewDirectMessageHandler(app.direct, maxUpload)
	youtubeHandler := handler.NewYouTubeHandler(app.youtube, app.slides)
	notesHandler := handler.NewNotesHandler(app.documents, app.sessions, app.slides, maxUpload)
	marketplaceHandler := handler.NewMarketplaceHandler(app.marketplace, maxUpload)
	teacherHandler := handler.NewTeacherHandler(app.teachers, maxUpload)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/ws", gin.WrapH(app.gateway))
	r.GET("/files/:token", marketplaceHandler.SignedFile)

	if cfg.Storage.Driver == "" || cfg.Storage.Driver == "local" {
		if base := cfg.Storage.PublicBaseURL; strings.HasPrefix(base, "/") {
			r.Static(base, cfg.Storage.LocalDir)
		}
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	secured := api.Group("")
	secured.Use(middleware.JWT(app.auth))

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/verify-email", authHandler.VerifyEmail)
	auth.POST("/resend-verification", authHandler.ResendVerification)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.GET("/user/:id", authHandler.PublicProfile)

	securedAuth := secured.Group("/auth")
	securedAuth.POST("/logout", authHandler.Logout)
	securedAuth.GET("/me", authHandler.Me)
	securedAuth.PUT("/me", authHandler.UpdateMe)
	securedAuth.POST("/me/avatar", authHandler.UploadAvatar)

	friends := secured.Group("/friends")
	friends.GET("", friendHandler.List)
	friends.POST("/send-request/:receiver_id", friendHandler.SendRequest)
	friends.GET("/requests", friendHandler.Requests)
	friends.POST("/accept-request/:id", friendHandler.Accept)
	friends.POST("/decline-request/:id", friendHandler.Decline)
	friends.DELETE("/remove/:friend_id", friendHandler.Remove)
	friends.GET("/search/:query", friendHandler.Search)

	classrooms := secured.Group("/classrooms")
	classrooms.POST("", classroomHandler.Create)
	classrooms.GET("", classroomHandler.List)
	classrooms.GET("/suggest-names", classroomHandler.SuggestNames)
	classrooms.GET("/suggest-room-names", classroomHandler.SuggestRoomNames)
	classrooms.POST("/join/:invite_code", classroomHandler.Join)
	classrooms.GET("/:id", classroomHandler.Get)
	classrooms.PUT("/:id", classroomHandler.Update)
	classrooms.DELETE("/:id", classroomHandler.Delete)
	classrooms.DELETE("/:id/leave", classroomHandler.Leave)
	classrooms.POST("/:id/add-member/:user_id", classroomHandler.AddMember)
	classrooms.GET("/:id/available-friends", classroomHandler.AvailableFriends)
	classrooms.POST("/:id/rooms", classroomHandler.CreateRoom)
	classrooms.GET("/:id/rooms", classroomHandler.Rooms)
	classrooms.PUT("/:id/rooms/:room_id", classroomHandler.UpdateRoom)
	classrooms.DELETE("/:id/rooms/:room_id", classroomHandler.DeleteRoom)

	chat := secured.Group("/chat")
	chat.GET("/rooms/:room_id/messages", chatHandler.List)
	chat.POST("/rooms/:room_id/messages", chatHandler.Send)
	chat.POST("/rooms/:room_id/summarize", chatHandler.Summarize)
	chat.GET("/messages/:id", chatHandler.Get)
	chat.PUT("/messages/:id", chatHandler.Edit)
	chat.DELETE("/messages/:id", chatHandler.Delete)

	dms := secured.Group("/messages")
	dms.GET("/conversations", dmHandler.Conversations)
	dms.POST("/conversations/:id", dmHandler.Open)
	dms.GET("/conversations/:id/messages", dmHandler.Messages)
	dms.POST("/conversations/:id/messages", dmHandler.Send)
	dms.DELETE("/messages/:id", dmHandler.Delete)

	youtube := secured.Group("/youtube/sessions")
	youtube.POST("", youtubeHandler.Create)
	youtube.GET("", youtubeHandler.List)
	youtube.GET("/:id", youtubeHandler.Get)
	youtube.DELETE("/:id", youtubeHandler.Delete)
	youtube.POST("/:id/chat", youtubeHandler.Ask)
	youtube.POST("/:id/regenerate-summaries", youtubeHandler.RegenerateSummaries)
	youtube.GET("/:id/export/:format", youtubeHandler.Export)
	youtube.POST("/:id/flashcards", youtubeHandler.Flashcards)
	youtube.GET("/:id/flashcards/export", youtubeHandler.ExportFlashcards)
	youtube.POST("/:id/flashcards/explain", youtubeHandler.Explain)
	youtube.POST("/:id/related-videos", youtubeHandler.RelatedVideos)
	youtube.POST("/:id/slides", youtubeHandler.StartSlides)
	youtube.GET("/:id/slides", youtubeHandler.SlidesStatus)

	notes := secured.Group("/notes")
	notes.GET("/documents", notesHandler.ListDocuments)
	notes.POST("/documents", notesHandler.CreateDocument)
	notes.POST("/documents/upload", notesHandler.UploadDocument)
	notes.GET("/documents/:id", notesHandler.GetDocument)
	notes.PUT("/documents/:id", notesHandler.UpdateDocument)
	notes.DELETE("/documents/:id", notesHandler.DeleteDocument)
	notes.POST("/documents/:id/chat", notesHandler.DocumentChat)
	notes.POST("/documents/:id/generate-notes", notesHandler.GenerateNotes)
	notes.GET("/documents/:id/chat-history", notesHandler.ChatHistory)
	notes.POST("/sessions", notesHandler.CreateSession)
	notes.GET("/sessions", notesHandler.ListSessions)
	notes.GET("/sessions/:id", notesHandler.GetSession)
	notes.DELETE("/sessions/:id", notesHandler.DeleteSession)
	notes.POST("/sessions/:id/summarize", notesHandler.Summarize)
	notes.POST("/sessions/:id/flashcards", notesHandler.Flashcards)
	notes.POST("/sessions/:id/quiz", notesHandler.Quiz)
	notes.POST("/sessions/:id/chat", notesHandler.Ask)
	notes.GET("/sessions/:id/export/:format", notesHandler.Export)
	notes.POST("/sessions/:id/slides", notesHandler.StartSlides)
	notes.GET("/sessions/:id/slides", notesHandler.SlidesStatus)

	market := api.Group("/marketplace")
	market.Use(middleware.OptionalJWT(app.auth))
	market.GET("/notes", marketplaceHandler.ListNotes)
	market.GET("/notes/:id", marketplaceHandler.GetNote)
	market.GET("/notes/:id/reviews", marketplaceHandler.Reviews)
	market.GET("/leaderboard", marketplaceHandler.Leaderboard)

	securedMarket := secured.Group("/marketplace")
	securedMarket.POST("/notes", marketplaceHandler.CreateNote)
	securedMarket.GET("/notes/user/my-notes", marketplaceHandler.MyNotes)
	securedMarket.POST("/notes/:id/purchase", marketplaceHandler.Purchase)
	securedMarket.POST("/notes/:id/reviews", marketplaceHandler.AddReview)
	securedMarket.GET("/notes/:id/download", marketplaceHandler.Download)
	securedMarket.GET("/notes/:id/download-link", marketplaceHandler.DownloadLink)
	securedMarket.GET("/purchases/my-purchases", marketplaceHandler.MyPurchases)
	securedMarket.GET("/wallet", marketplaceHandler.Wallet)

	teachers := api.Group("/teachers")
	teachers.GET("", teacherHandler.List)
	teachers.GET("/:id", teacherHandler.Get)
	teachers.GET("/:id/reviews", teacherHandler.Reviews)

	teacherOnly := middleware.RequireRoles("Only teachers can access this resource", models.RoleTeacher)
	securedTeachers := secured.Group("/teachers")
	securedTeachers.POST("/profile", teacherHandler.CreateProfile)
	securedTeachers.GET("/profile", teacherHandler.MyProfile)
	securedTeachers.PUT("/profile", teacherHandler.UpdateProfile)
	securedTeachers.POST("/profile/picture", teacherHandler.UploadPicture)
	securedTeachers.POST("/:id/reviews", teacherHandler.AddReview)
	securedTeachers.POST("/hire", teacherHandler.Hire)
	securedTeachers.GET("/hire/requests/sent", teacherHandler.SentRequests)
	securedTeachers.GET("/hire/requests/received", teacherOnly, teacherHandler.ReceivedRequests)
	securedTeachers.PUT("/hire/requests/:id", teacherHandler.UpdateRequest)
	securedTeachers.GET("/sessions/my-sessions", teacherHandler.MySessions)
	securedTeachers.PUT("/sessions/:id/complete", teacherHandler.CompleteSession)
	securedTeachers.GET("/dashboard/analytics", teacherOnly, teacherHandler.Analytics)

	return r
}

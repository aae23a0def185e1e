package main

import (
	"net/http"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"mellow-backend/internal/analytics"
	"mellow-backend/internal/auth"
	"mellow-backend/internal/chat"
	"mellow-backend/internal/communities"
	"mellow-backend/internal/goals"
	"mellow-backend/internal/httpx"
	"mellow-backend/internal/posts"
	"mellow-backend/internal/profiles"
)

type handlers struct {
	auth        *auth.Handler
	profiles    *profiles.Handler
	goals       *goals.Handler
	communities *communities.Handler
	posts       *posts.Handler
	chat        *chat.Handler
	events      *analytics.Recorder
}

func newRouter(h *handlers, authMW auth.Middleware, origins []string, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	protected := authMW.Wrap

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	// auth
	mux.HandleFunc("POST /auth/register", h.auth.Register)
	mux.HandleFunc("POST /auth/login", h.auth.Login)
	mux.HandleFunc("GET /auth/me", protected(h.auth.Me))
	mux.HandleFunc("POST /auth/logout", protected(h.auth.Logout))
	mux.HandleFunc("DELETE /auth/account", protected(h.auth.DeleteAccount))

	// profiles
	mux.HandleFunc("GET /profile", protected(h.profiles.GetMine))
	mux.HandleFunc("PUT /profile", protected(h.profiles.Update))
	mux.HandleFunc("POST /profile/avatar", protected(h.profiles.UploadAvatar))
	mux.HandleFunc("GET /profiles/{id}", protected(h.profiles.GetByID))

	// goals
	mux.HandleFunc("POST /goals", protected(h.goals.Create))
	mux.HandleFunc("GET /goals", protected(h.goals.List))
	mux.HandleFunc("GET /goals/recommended", protected(h.goals.Recommended))
	mux.HandleFunc("GET /goals/{id}", protected(h.goals.Get))
	mux.HandleFunc("PUT /goals/{id}", protected(h.goals.Update))
	mux.HandleFunc("DELETE /goals/{id}", protected(h.goals.Delete))
	mux.HandleFunc("POST /goals/{id}/join", protected(h.goals.Join))
	mux.HandleFunc("POST /goals/{id}/leave", protected(h.goals.Leave))
	mux.HandleFunc("POST /goals/{id}/complete", protected(h.goals.Complete))
	mux.HandleFunc("DELETE /goals/{id}/complete", protected(h.goals.Uncomplete))

	// communities
	mux.HandleFunc("POST /communities", protected(h.communities.Create))
	mux.HandleFunc("GET /communities", protected(h.communities.List))
	mux.HandleFunc("GET /communities/{id}", protected(h.communities.Get))
	mux.HandleFunc("POST /communities/{id}/join", protected(h.communities.Join))
	mux.HandleFunc("POST /communities/{id}/leave", protected(h.communities.Leave))
	mux.HandleFunc("GET /communities/{id}/members", protected(h.communities.Members))
	mux.HandleFunc("GET /communities/{id}/posts", protected(h.posts.CommunityFeed))

	// posts
	mux.HandleFunc("POST /posts", protected(h.posts.Create))
	mux.HandleFunc("GET /posts", protected(h.posts.Feed))
	mux.HandleFunc("GET /posts/{id}", protected(h.posts.Get))
	mux.HandleFunc("DELETE /posts/{id}", protected(h.posts.Delete))
	mux.HandleFunc("POST /posts/{id}/like", protected(h.posts.Like))
	mux.HandleFunc("DELETE /posts/{id}/like", protected(h.posts.Unlike))
	mux.HandleFunc("POST /posts/{id}/report", protected(h.posts.Report))

	// chat
	mux.HandleFunc("POST /chat/conversations", protected(h.chat.Start))
	mux.HandleFunc("GET /chat/conversations", protected(h.chat.List))
	mux.HandleFunc("GET /chat/conversations/{id}/messages", protected(h.chat.Messages))
	mux.HandleFunc("POST /chat/conversations/{id}/messages", protected(h.chat.Send))
	mux.HandleFunc("POST /chat/conversations/{id}/read", protected(h.chat.MarkRead))
	mux.HandleFunc("GET /chat/unread", protected(h.chat.Unread))
	mux.HandleFunc("GET /chat/stream", protected(h.chat.Stream))

	// analytics
	mux.HandleFunc("POST /events/app-opened", protected(analytics.AppOpenedHandler(h.events)))

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type", "Authorization",
			"X-Platform", "X-App-Version", "X-Session-Id", "Idempotency-Key", "Accept-Language",
		},
		AllowCredentials: true,
	})

	return httpx.Logging(log, c.Handler(mux))
}

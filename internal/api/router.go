package api

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erazemk/oprema/internal/live"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/notify"
	"github.com/erazemk/oprema/internal/transfer"
)

// Deps holds what the router's handlers need.
type Deps struct {
	DB            *sql.DB
	JWTSecret     string
	Transfers     *transfer.Service
	Notifications *notify.Service
	Hub           *live.Hub
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(deps Deps) *http.ServeMux {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: deps.DB, JWTSecret: deps.JWTSecret}
	usersHandler := &UsersHandler{DB: deps.DB}
	equipmentHandler := &EquipmentHandler{DB: deps.DB, Transfers: deps.Transfers}
	transfersHandler := &TransfersHandler{Transfers: deps.Transfers}
	notificationsHandler := &NotificationsHandler{Notifications: deps.Notifications, Hub: deps.Hub}

	authMW := AuthMiddleware(deps.JWTSecret, deps.DB)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: login and metrics.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Equipment: read (all roles), register (manager+).
	mux.Handle("GET /api/equipment", authMW(http.HandlerFunc(equipmentHandler.List)))
	mux.Handle("POST /api/equipment", authMW(requireManager(http.HandlerFunc(equipmentHandler.Create))))
	mux.Handle("GET /api/equipment/{id}", authMW(http.HandlerFunc(equipmentHandler.Get)))
	mux.Handle("GET /api/equipment/{id}/transfer", authMW(http.HandlerFunc(equipmentHandler.ActiveTransfer)))
	mux.Handle("GET /api/equipment/{id}/history", authMW(http.HandlerFunc(equipmentHandler.History)))

	// Transfers (all roles; the service checks who may act).
	mux.Handle("POST /api/transfers", authMW(http.HandlerFunc(transfersHandler.Create)))
	mux.Handle("GET /api/transfers", authMW(http.HandlerFunc(transfersHandler.List)))
	mux.Handle("POST /api/transfers/reconcile", authMW(requireAdmin(http.HandlerFunc(transfersHandler.Reconcile))))
	mux.Handle("GET /api/transfers/{id}", authMW(http.HandlerFunc(transfersHandler.Get)))
	mux.Handle("POST /api/transfers/{id}/approve", authMW(http.HandlerFunc(transfersHandler.Approve)))
	mux.Handle("POST /api/transfers/{id}/reject", authMW(http.HandlerFunc(transfersHandler.Reject)))
	mux.Handle("POST /api/transfers/{id}/cancel", authMW(http.HandlerFunc(transfersHandler.Cancel)))
	mux.Handle("POST /api/transfers/{id}/remind", authMW(http.HandlerFunc(transfersHandler.Remind)))

	// Notifications.
	mux.Handle("GET /api/notifications", authMW(http.HandlerFunc(notificationsHandler.List)))
	mux.Handle("GET /api/notifications/stream", authMW(http.HandlerFunc(notificationsHandler.Stream)))
	mux.Handle("POST /api/notifications/refresh", authMW(http.HandlerFunc(notificationsHandler.Refresh)))
	mux.Handle("PUT /api/notifications/read-all", authMW(http.HandlerFunc(notificationsHandler.MarkAllRead)))
	mux.Handle("PUT /api/notifications/{id}/read", authMW(http.HandlerFunc(notificationsHandler.MarkRead)))
	mux.Handle("DELETE /api/notifications/{id}", authMW(http.HandlerFunc(notificationsHandler.Delete)))
	mux.Handle("POST /api/notifications/broadcast", authMW(requireAdmin(http.HandlerFunc(notificationsHandler.Broadcast))))

	return mux
}

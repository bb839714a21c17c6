package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/ticketing-backend/internal/middleware"
	"github.com/smarttransit/ticketing-backend/pkg/jwt"
)

// Router groups the handlers mounted under /api/v1
type Router struct {
	Health   *HealthHandler
	Trips    *TripHandler
	Bookings *BookingHandler
	Payments *PaymentHandler
}

// Register mounts every route on r
func (rt *Router) Register(r *gin.Engine, jwtService *jwt.Service, logger *logrus.Logger) {
	r.GET("/health", rt.Health.Health)

	auth := middleware.AuthMiddleware(jwtService, logger)

	v1 := r.Group("/api/v1")
	{
		trips := v1.Group("/trips")
		{
			trips.GET("", rt.Trips.ListTrips)
			trips.GET("/:id", rt.Trips.GetTrip)
			trips.GET("/:id/seats", rt.Trips.ListSeats)
		}

		bookings := v1.Group("/bookings")
		bookings.Use(auth)
		{
			bookings.POST("", rt.Bookings.CreateBooking)
			bookings.GET("", rt.Bookings.ListBookings)
			bookings.GET("/:id", rt.Bookings.GetBooking)
			bookings.GET("/:id/payment", rt.Bookings.GetBookingPayment)
			bookings.POST("/:id/cancel", rt.Bookings.CancelBooking)
			bookings.POST("/:id/refund", rt.Bookings.RefundBooking)
		}

		payments := v1.Group("/payments")
		{
			// Called by the gateway, not by a signed-in user
			payments.POST("/callback", rt.Payments.Callback)

			payments.POST("", auth, rt.Payments.CreatePayment)
			payments.POST("/:transaction_id/verify", auth, rt.Payments.VerifyPayment)
		}

		admin := v1.Group("/admin")
		admin.Use(auth, middleware.RequireRole(middleware.RoleAdmin))
		{
			admin.POST("/trips", rt.Trips.CreateTrip)
			admin.PUT("/trips/:id", rt.Trips.UpdateTrip)
			admin.PUT("/trips/:id/capacity", rt.Trips.ResizeCapacity)
			admin.GET("/bookings/:id/payment-audits", rt.Payments.ListAudits)
		}
	}
}

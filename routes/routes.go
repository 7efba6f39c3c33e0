package routes

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"vitrina/auth"
	"vitrina/cart"
	"vitrina/db"
	"vitrina/invoice"
	"vitrina/live"
	"vitrina/middleware"
	"vitrina/mq"
	"vitrina/orders"
	"vitrina/products"
	"vitrina/ratelim"
	"vitrina/stripe"
)

func AddAuthRoutes(router *httprouter.Router, rateLimiter *ratelim.RateLimiter) {
	router.POST("/api/v1/auth/register", rateLimiter.Limit(auth.Register))
	router.POST("/api/v1/auth/login", rateLimiter.Limit(auth.Login))
	router.POST("/api/v1/auth/logout", auth.Logout)
	router.POST("/api/v1/auth/token/refresh", auth.RefreshToken)
	router.POST("/api/v1/auth/token/exchange", rateLimiter.Limit(auth.ExchangeRefreshToken))
}

func AddCartRoutes(router *httprouter.Router) {
	api := cart.NewAPI(db.ProductsCollection, db.CartsCollection)

	router.GET("/api/v1/cart", middleware.Authenticate(api.GetCart))
	router.POST("/api/v1/cart", middleware.Authenticate(api.AddToCart))
	router.PUT("/api/v1/cart/:productid", middleware.Authenticate(api.UpdateQuantity))
	router.DELETE("/api/v1/cart/:productid", middleware.Authenticate(api.RemoveFromCart))
	router.DELETE("/api/v1/cart", middleware.Authenticate(api.ClearCart))
}

func AddProductRoutes(router *httprouter.Router, rateLimiter *ratelim.RateLimiter) {
	admin := middleware.Chain(
		rateLimiter.Limit,
		middleware.Authenticate,
		middleware.RequireRoles("admin"),
	)

	router.GET("/api/v1/products", products.ListProducts)
	router.GET("/api/v1/products/:productid", products.GetProduct)
	router.GET("/api/v1/products/:productid/stock", products.GetStock)

	router.POST("/api/v1/products", admin(products.CreateProduct))
	router.PUT("/api/v1/products/:productid", admin(products.UpdateProduct))
	router.DELETE("/api/v1/products/:productid", admin(products.DeleteProduct))
	router.POST("/api/v1/products/:productid/image", admin(products.UploadProductImage))
}

// AddOrderRoutes wires the payment and finalization flow. Intent creation and
// finalization accept guests, so auth there is optional.
func AddOrderRoutes(router *httprouter.Router, rateLimiter *ratelim.RateLimiter, hub *live.Hub) {
	gateway := stripe.NewLocalGateway(db.PaymentIntentsCollection)
	service := &orders.Service{
		Gateway:  gateway,
		Orders:   &orders.MongoOrderStore{Col: db.OrdersCollection},
		Products: &orders.MongoProductStore{Client: db.Client, Products: db.ProductsCollection},
		Ordering: orders.OrderingFromEnv(),
		Announce: hub,
		Notify: func(event mq.Event) {
			mq.Emit(context.Background(), event)
		},
	}
	h := &orders.Handlers{Service: service, Gateway: gateway, Products: db.ProductsCollection}
	inv := &invoice.Handler{Orders: service.Orders}

	// Checkout is its own prefix so the :orderid wildcard below stays
	// unambiguous.
	router.POST("/api/v1/checkout/payment-intent", middleware.Chain(rateLimiter.Limit, middleware.OptionalAuth)(h.CreatePaymentIntent))
	router.POST("/api/v1/checkout/confirm/:intentid", rateLimiter.Limit(h.ConfirmPayment))
	router.POST("/api/v1/checkout/finalize", middleware.Chain(rateLimiter.Limit, middleware.OptionalAuth)(h.FinalizeOrder))

	router.POST("/api/v1/orders/:orderid/stock", middleware.Chain(rateLimiter.Limit, middleware.OptionalAuth)(h.UpdateStock))
	router.GET("/api/v1/myorders", middleware.Authenticate(h.MyOrders))
	router.GET("/api/v1/orders/:orderid", middleware.OptionalAuth(h.GetOrder))
	router.GET("/api/v1/orders/:orderid/invoice", middleware.OptionalAuth(inv.OrderInvoice))

	admin := middleware.Chain(
		rateLimiter.Limit,
		middleware.Authenticate,
		middleware.RequireRoles("admin"),
	)
	router.GET("/api/v1/orders", admin(h.ListOrders))
	router.PUT("/api/v1/orders/:orderid/status", admin(h.UpdateOrderStatus))
}

func AddLiveRoutes(router *httprouter.Router, hub *live.Hub) {
	router.GET("/ws/stock/:productid", live.ServeWS(hub))
}

func AddStaticRoutes(router *httprouter.Router) {
	router.ServeFiles("/static/productpic/*filepath", http.Dir("static/productpic"))
}

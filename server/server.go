// Package server exposes a checkout session over HTTP for the storefront.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	checkout "github.com/vitwit/checkout"
	"github.com/vitwit/checkout/logger"
	"github.com/vitwit/checkout/types"
	"github.com/vitwit/checkout/verification"
)

// Checkout is the session surface the handlers drive.
type Checkout interface {
	Summary() checkout.Summary
	Select(asset types.Asset, network types.Network) (checkout.Selection, error)
	RefreshRates(ctx context.Context) (types.AssetRates, error)
	ConnectWallet(ctx context.Context) (types.WalletState, error)
	Pay(ctx context.Context) (string, error)
	CheckNow(ctx context.Context) (verification.Result, error)
	Notices() []types.Notice
	SetBuyer(email string)
	SaveCustomer(ctx context.Context, c types.Customer) error
	Purchases(ctx context.Context, email string) ([]types.PurchaseRecord, error)
}

var _ Checkout = (*checkout.Session)(nil)

type Server struct {
	checkout Checkout
	secret   []byte
	log      logger.Logger
}

func New(co Checkout, jwtSecret string, log logger.Logger) *Server {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Server{checkout: co, secret: []byte(jwtSecret), log: log}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(s.log), BuyerIdentity(s.secret))

	v1 := router.Group("/api/v1")
	{
		co := v1.Group("/checkout")
		co.GET("", s.SummaryHandler())
		co.POST("/select", s.SelectHandler())
		co.POST("/rates/refresh", s.RefreshRatesHandler())
		co.POST("/wallet/connect", s.ConnectWalletHandler())
		co.POST("/pay", s.PayHandler())
		co.POST("/check", s.CheckHandler())
		co.GET("/notices", s.NoticesHandler())
		co.POST("/customer", s.CustomerHandler())

		orders := v1.Group("/orders")
		orders.Use(RequireBuyer())
		orders.GET("", s.PurchasesHandler())
	}
	router.GET("/success", s.SuccessHandler())
	return router
}

func (s *Server) SummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		Success(c, s.checkout.Summary())
	}
}

type selectRequest struct {
	Asset   types.Asset   `json:"asset" binding:"required"`
	Network types.Network `json:"network"`
}

func (s *Server) SelectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req selectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, err.Error())
			return
		}
		sel, err := s.checkout.Select(req.Asset, req.Network)
		if err != nil {
			Handle(c, nil, err)
			return
		}
		Success(c, gin.H{"selected": sel, "summary": s.checkout.Summary()})
	}
}

func (s *Server) RefreshRatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rates, err := s.checkout.RefreshRates(c.Request.Context())
		Handle(c, rates, err)
	}
}

func (s *Server) ConnectWalletHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		w, err := s.checkout.ConnectWallet(c.Request.Context())
		Handle(c, w, err)
	}
}

func (s *Server) PayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if email := Buyer(c); email != "" {
			s.checkout.SetBuyer(email)
		}
		hash, err := s.checkout.Pay(c.Request.Context())
		if err != nil {
			Handle(c, nil, err)
			return
		}
		Success(c, gin.H{"txHash": hash})
	}
}

func (s *Server) CheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if email := Buyer(c); email != "" {
			s.checkout.SetBuyer(email)
		}
		res, err := s.checkout.CheckNow(c.Request.Context())
		if err != nil {
			Handle(c, nil, err)
			return
		}
		out := gin.H{"skipped": res.Skipped, "detected": res.Detected, "checked": res.Checked}
		if res.Detected {
			out["outcome"] = res.Outcome
		}
		if res.Err != nil {
			out["errors"] = res.Err.Error()
		}
		Success(c, out)
	}
}

func (s *Server) NoticesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		Success(c, s.checkout.Notices())
	}
}

type customerRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"omitempty,email"`
	Address string `json:"address" binding:"required"`
	Phone   string `json:"phone"`
}

func (s *Server) CustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req customerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, err.Error())
			return
		}
		customer := types.Customer{Name: req.Name, Email: req.Email, Address: req.Address, Phone: req.Phone}
		if err := s.checkout.SaveCustomer(c.Request.Context(), customer); err != nil {
			s.log.Error("failed to save customer", map[string]any{"error": err})
			Handle(c, nil, err)
			return
		}
		Success(c, customer)
	}
}

func (s *Server) PurchasesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		purchases, err := s.checkout.Purchases(c.Request.Context(), Buyer(c))
		if err != nil {
			s.log.Error("failed to load purchases", map[string]any{"error": err})
			Handle(c, nil, err)
			return
		}
		Success(c, purchases)
	}
}

// SuccessHandler renders the success view the checkout redirects to.
func (s *Server) SuccessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		currency := c.Query("currency")
		if currency == "" {
			BadRequest(c, "currency is required")
			return
		}
		sum := s.checkout.Summary()
		c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{
			"message":  "Payment received. Thank you for your order!",
			"currency": currency,
			"network":  c.Query("network"),
			"paid":     sum.Paid,
			"total":    sum.Total,
		}})
	}
}

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type addCartItemRequest struct {
	ProductID     string           `json:"product_id" binding:"required"`
	PriceOverride *decimal.Decimal `json:"price_override,omitempty"`
}

func (s *Server) GetCart(c *gin.Context) {
	items, totals, err := s.cartSvc.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"totals": totals,
	})
}

func (s *Server) AddCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	productID, err := parseSnowflakeID(req.ProductID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.cartSvc.AddItem(c.Request.Context(), currentUserID(c), productID, req.PriceOverride)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"item": item})
}

func (s *Server) RemoveCartItem(c *gin.Context) {
	productID, err := parseSnowflakeID(c.Param("productId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.cartSvc.RemoveItem(c.Request.Context(), currentUserID(c), productID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

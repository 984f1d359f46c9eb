package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundcrate/soundcrate/internal/config"
	orderdomain "github.com/soundcrate/soundcrate/internal/order/domain"
	"github.com/soundcrate/soundcrate/internal/providers/pdf"
)

type payOrderRequest struct {
	Provider string `json:"provider" binding:"required"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	created, err := s.orderSvc.Create(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": created})
}

func (s *Server) ListOrders(c *gin.Context) {
	orders, err := s.orderSvc.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) GetOrder(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, items, err := s.orderSvc.Get(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

func (s *Server) PayOrder(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req payOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	session, err := s.paymentSvc.Initiate(c.Request.Context(), currentUserID(c), id, req.Provider)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"provider":     session.Provider,
		"approval_url": session.ApprovalURL,
	})
}

func (s *Server) CancelOrder(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.orderSvc.Cancel(c.Request.Context(), currentUserID(c), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) OrderReceipt(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, items, err := s.orderSvc.Get(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if order.Status != orderdomain.StatusCompleted {
		AbortWithError(c, ErrConflict)
		return
	}

	store := config.DefaultStoreConfig()
	if s.storeCfg != nil {
		store = s.storeCfg.Get()
	}

	data := pdf.ReceiptData{
		StoreName:     store.StoreName,
		Footer:        store.ReceiptFooter,
		OrderNumber:   order.ID.String(),
		PaymentMethod: order.Provider,
		BuyerID:       order.UserID,
		Total:         order.TotalAmount.StringFixed(2),
		Currency:      order.Currency,
	}
	if order.Provider == "" {
		data.PaymentMethod = "no charge"
	}
	if order.CompletedAt != nil {
		data.DatePaid = order.CompletedAt.UTC().Format("January 2, 2006")
	}
	for _, item := range items {
		data.Items = append(data.Items, pdf.ReceiptItem{
			Description: fmt.Sprintf("%s / %s", item.Artist, item.Title),
			Amount:      item.Amount.StringFixed(2) + " " + item.Currency,
		})
	}

	doc, err := s.pdfSvc.GenerateReceipt(c.Request.Context(), data)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	raw, err := io.ReadAll(doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=receipt-%s.pdf", order.ID.String()))
	c.Data(http.StatusOK, "application/pdf", raw)
}

package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	orderdomain "github.com/soundcrate/soundcrate/internal/order/domain"
	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

var confirmationTmpl = template.Must(template.New("order_confirmation").Parse(`
<html>
<body>
  <h2>Thanks for your purchase!</h2>
  <p>Order <strong>#{{.OrderID}}</strong> is complete. Your music is ready in your library.</p>
  <table>
    {{range .Items}}
    <tr>
      <td>{{.Artist}} &mdash; {{.Title}}</td>
      <td align="right">{{.Amount}} {{.Currency}}</td>
    </tr>
    {{end}}
  </table>
  <p><strong>Total: {{.Total}} {{.Currency}}</strong></p>
</body>
</html>
`))

type confirmationData struct {
	OrderID  string
	Items    []orderdomain.LineItem
	Total    string
	Currency string
}

// OrderNotifier sends the purchase confirmation email after an order
// completes. Accounts are keyed by an opaque user id; when that id is
// an email address we deliver to it, otherwise the notification is
// skipped.
type OrderNotifier struct {
	provider Provider
	log      *zap.Logger
}

func NewOrderNotifier(provider Provider, log *zap.Logger) *OrderNotifier {
	return &OrderNotifier{
		provider: provider,
		log:      log.Named("email.notifier"),
	}
}

func (n *OrderNotifier) OrderCompleted(ctx context.Context, order orderdomain.Order, items []orderdomain.LineItem) {
	to := strings.TrimSpace(order.UserID)
	if !strings.Contains(to, "@") {
		n.log.Debug("user id is not an address, skipping confirmation",
			zap.String("order_id", order.ID.String()))
		return
	}

	var body bytes.Buffer
	err := confirmationTmpl.Execute(&body, confirmationData{
		OrderID:  order.ID.String(),
		Items:    items,
		Total:    order.TotalAmount.StringFixed(2),
		Currency: order.Currency,
	})
	if err != nil {
		n.log.Error("failed to render confirmation", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("Your Soundcrate order #%s", order.ID.String())

	// Delivery must never hold up the completion path.
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		if err := n.provider.Send(sendCtx, []string{to}, subject, body.String()); err != nil {
			n.log.Warn("confirmation delivery failed",
				zap.String("order_id", order.ID.String()),
				zap.Error(err))
		}
	}()
}

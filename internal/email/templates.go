package email

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
)

// OrderInfo carries the fields the notification templates render.
type OrderInfo struct {
	OrderNumber     string
	BuyerName       string
	BuyerEmail      string
	StoreName       string
	Title           string
	Total           string
	Currency        string
	PaymentMethod   string
	RejectionReason string
	TrackingNumber  string
	TrackingCarrier string
}

type emailTemplate struct {
	Subject string
	Text    string
}

var builtinTemplates = map[string]emailTemplate{
	"payment_receipt": {
		Subject: "Payment received - Order %s - %s",
		Text:    paymentReceiptText,
	},
	"payment_rejected": {
		Subject: "Payment could not be confirmed - Order %s - %s",
		Text:    paymentRejectedText,
	},
	"order_shipped": {
		Subject: "Your order has shipped - Order %s - %s",
		Text:    orderShippedText,
	},
}

// Renderer renders the built-in notification templates.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl := template.New("email")
	for key, t := range builtinTemplates {
		if _, err := tmpl.New(key).Parse(t.Text); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", key, err)
		}
	}
	return &Renderer{templates: tmpl}, nil
}

func (r *Renderer) Render(templateName string, data *OrderInfo) (*Email, error) {
	definition, ok := builtinTemplates[templateName]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", templateName)
	}

	var textBuf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&textBuf, templateName, data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}

	return &Email{
		To:      data.BuyerEmail,
		Subject: fmt.Sprintf(definition.Subject, data.OrderNumber, data.StoreName),
		Text:    textBuf.String(),
	}, nil
}

func send(ctx context.Context, p Provider, templateName string, info *OrderInfo) error {
	if p == nil || info.BuyerEmail == "" {
		return nil
	}

	renderer, err := NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	rendered, err := renderer.Render(templateName, info)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}
	return p.SendEmail(ctx, rendered)
}

// SendPaymentReceipt notifies the buyer their payment was confirmed.
func SendPaymentReceipt(ctx context.Context, p Provider, info *OrderInfo) error {
	return send(ctx, p, "payment_receipt", info)
}

// SendPaymentRejected notifies the buyer their proof was rejected.
func SendPaymentRejected(ctx context.Context, p Provider, info *OrderInfo) error {
	return send(ctx, p, "payment_rejected", info)
}

// SendOrderShipped notifies the buyer their order is on the way.
func SendOrderShipped(ctx context.Context, p Provider, info *OrderInfo) error {
	return send(ctx, p, "order_shipped", info)
}

const paymentReceiptText = `Hi {{.BuyerName}},

Your payment for order {{.OrderNumber}} at {{.StoreName}} has been confirmed.

  Item:   {{.Title}}
  Total:  {{.Currency}} {{.Total}}
  Paid via: {{.PaymentMethod}}

The seller will prepare your order for delivery.

{{.StoreName}}
`

const paymentRejectedText = `Hi {{.BuyerName}},

We could not confirm the payment you submitted for order {{.OrderNumber}} at {{.StoreName}}.
{{if .RejectionReason}}
Reason: {{.RejectionReason}}
{{end}}
If you believe this is a mistake, please contact the seller with your
transaction details.

{{.StoreName}}
`

const orderShippedText = `Hi {{.BuyerName}},

Your order {{.OrderNumber}} from {{.StoreName}} has shipped.
{{if .TrackingNumber}}
  Tracking: {{.TrackingNumber}}{{if .TrackingCarrier}} ({{.TrackingCarrier}}){{end}}
{{end}}
{{.StoreName}}
`

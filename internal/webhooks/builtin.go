package webhooks

import (
	"context"

	"go.uber.org/zap"

	"storeapp/internal/facts"
	"storeapp/pkg/apl"
)

const orderCreatedQuery = `fragment OrderCreatedWebhookPayload on OrderCreated {
  order {
    userEmail
    id
    number
    user {
      email
      firstName
      lastName
    }
    lines {
      productSku
      quantity
    }
    total {
      gross {
        amount
        currency
      }
    }
  }
}

subscription OrderCreated {
  event {
    ...OrderCreatedWebhookPayload
  }
}`

const appDeletedQuery = `subscription AppDeleted {
  event {
    ... on AppDeleted {
      app {
        id
      }
    }
  }
}`

var orderFacts = facts.MustCompile(
	facts.Mapping{Key: "email", Path: "order.userEmail || order.user.email", Transform: "lower"},
	facts.Mapping{Key: "number", Path: "order.number", Transform: "to_string"},
	facts.Mapping{Key: "order_id", Path: "order.id"},
	facts.Mapping{Key: "registered", Path: "order.user", Transform: "exists"},
	facts.Mapping{Key: "lines", Path: "order.lines", Transform: "count"},
	facts.Mapping{Key: "quantity", Path: "order.lines[*].quantity", Transform: "sum"},
	facts.Mapping{Key: "first_sku", Path: "order.lines[*].productSku", Transform: "first"},
	facts.Mapping{Key: "total", Path: "order.total.gross.amount", Transform: "to_number"},
	facts.Mapping{Key: "currency", Path: "order.total.gross.currency"},
)

// OrderCreated logs the customer of every new order.
func OrderCreated(log *zap.SugaredLogger) Subscription {
	return Subscription{
		Name:  "Order Created",
		Event: "ORDER_CREATED",
		Path:  "order-created",
		Query: orderCreatedQuery,
		Handler: func(ctx context.Context, ev Event) error {
			f, err := orderFacts.ExtractJSON(ev.Payload)
			if err != nil {
				return err
			}
			log.Infow("order was created",
				"tenant", ev.TenantAPIURL,
				"customer", f["email"],
				"registered", f["registered"],
				"number", f["number"],
				"order", f["order_id"],
				"lines", f["lines"],
				"quantity", f["quantity"],
				"first_sku", f["first_sku"],
				"total", f["total"],
				"currency", f["currency"],
			)
			return nil
		},
	}
}

// AppDeleted removes the tenant's credentials when the app is uninstalled.
func AppDeleted(store apl.APL, log *zap.SugaredLogger) Subscription {
	return Subscription{
		Name:  "App Deleted",
		Event: "APP_DELETED",
		Path:  "app-deleted",
		Query: appDeletedQuery,
		Handler: func(ctx context.Context, ev Event) error {
			if err := store.Delete(ctx, ev.TenantAPIURL); err != nil {
				return err
			}
			log.Infow("app uninstalled", "tenant", ev.TenantAPIURL)
			return nil
		},
	}
}

package notify

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// render derives title and message from kind and payload. It never fails:
// missing fields fall back to neutral text.
func render(kind string, p Payload) (title, message string) {
	name := "Unknown product"
	if s, ok := p.String("productName"); ok {
		name = s
	}

	switch kind {
	case KindCriticalStock:
		title = "Critical stock: " + name
		message = name + " is critically low"
		if stock, ok := p.Int("currentStock"); ok {
			message = fmt.Sprintf("%s has only %s left", name, units(stock))
		}
		if th, ok := p.Int("threshold"); ok {
			message += fmt.Sprintf(" (critical level %d)", th)
		}
		message += ". Reorder immediately."

	case KindLowStock:
		title = "Low stock: " + name
		message = name + " is running low"
		if stock, ok := p.Int("currentStock"); ok {
			message = fmt.Sprintf("%s is running low: %s left", name, units(stock))
		}
		if th, ok := p.Int("threshold"); ok {
			message += fmt.Sprintf(" (reorder level %d)", th)
		}
		message += "."

	case KindExpiryUrgent, KindExpiryWarning:
		if kind == KindExpiryUrgent {
			title = "Expiring soon: " + name
		} else {
			title = "Expiry warning: " + name
		}
		date, hasDate := p.String("expiryDate")
		days, hasDays := p.Int("daysUntilExpiry")
		switch {
		case hasDays && days < 0:
			message = fmt.Sprintf("A batch of %s expired %s ago", name, dayCount(-days))
		case hasDays && days == 0:
			message = fmt.Sprintf("A batch of %s expires today", name)
		case hasDays:
			message = fmt.Sprintf("A batch of %s expires in %s", name, dayCount(days))
		default:
			message = fmt.Sprintf("A batch of %s is close to expiry", name)
		}
		if hasDate {
			message += " (" + date + ")"
		}
		message += "."

	case KindSaleCompleted:
		title = "Sale completed"
		message = "A sale was completed"
		if id, ok := p.String("saleId"); ok {
			message = "Sale " + id + " was completed"
		}
		if items, ok := p.Int("itemCount"); ok {
			message += fmt.Sprintf(": %d item(s)", items)
		}
		if total, ok := p.Float("total"); ok {
			message += ", total " + humanize.FormatFloat("#,###.##", total)
		}
		if who, ok := p.String("customerName"); ok {
			message += " for " + who
		}
		message += "."

	case KindSystemError:
		title = "System error"
		if t, ok := p.String("title"); ok {
			title = t
		}
		message = "An unexpected error occurred."
		if m, ok := p.String("message"); ok {
			message = m
		} else if m, ok := p.String("error"); ok {
			message = m
		}
		if src, ok := p.String("source"); ok {
			message = src + ": " + message
		}

	case KindSystemInfo:
		title = "System notice"
		if t, ok := p.String("title"); ok {
			title = t
		}
		message = ""
		if m, ok := p.String("message"); ok {
			message = m
		}

	case KindTest:
		title = "Test notification"
		if t, ok := p.String("title"); ok {
			title = t
		}
		message = "Notifications are working."
		if m, ok := p.String("message"); ok {
			message = m
		}

	default:
		title = kind
		if m, ok := p.String("message"); ok {
			message = m
		}
	}
	return title, message
}

func units(n int) string {
	if n == 1 {
		return "1 unit"
	}
	return fmt.Sprintf("%d units", n)
}

func dayCount(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

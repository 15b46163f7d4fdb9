package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderIsTotal(t *testing.T) {
	tests := []struct {
		kind    string
		payload Payload
		title   string
		message string
	}{
		{KindCriticalStock, Payload{}, "Critical stock: Unknown product", "Unknown product is critically low. Reorder immediately."},
		{KindCriticalStock, Payload{"productName": "Insulin", "currentStock": 1.0, "threshold": 5.0}, "Critical stock: Insulin", "Insulin has only 1 unit left (critical level 5). Reorder immediately."},
		{KindLowStock, Payload{"productName": "Aspirin", "currentStock": "7"}, "Low stock: Aspirin", "Aspirin is running low: 7 units left."},
		{KindExpiryUrgent, Payload{"productName": "Saline", "daysUntilExpiry": 0.0}, "Expiring soon: Saline", "A batch of Saline expires today."},
		{KindExpiryUrgent, Payload{"productName": "Saline", "daysUntilExpiry": -3.0, "expiryDate": "2026-03-07"}, "Expiring soon: Saline", "A batch of Saline expired 3 days ago (2026-03-07)."},
		{KindExpiryWarning, Payload{"productName": "Saline", "daysUntilExpiry": 1.0}, "Expiry warning: Saline", "A batch of Saline expires in 1 day."},
		{KindExpiryWarning, Payload{}, "Expiry warning: Unknown product", "A batch of Unknown product is close to expiry."},
		{KindSaleCompleted, Payload{"saleId": "S-17", "itemCount": 3.0, "total": 1234.5, "customerName": "R. Diaz"}, "Sale completed", "Sale S-17 was completed: 3 item(s), total 1,234.50 for R. Diaz."},
		{KindSaleCompleted, nil, "Sale completed", "A sale was completed."},
		{KindSystemError, Payload{"error": "disk full", "source": "backup"}, "System error", "backup: disk full"},
		{KindSystemError, nil, "System error", "An unexpected error occurred."},
		{KindSystemInfo, Payload{"title": "Update", "message": "v2 installed"}, "Update", "v2 installed"},
		{KindTest, nil, "Test notification", "Notifications are working."},
	}
	for _, tt := range tests {
		title, message := render(tt.kind, tt.payload)
		assert.Equal(t, tt.title, title, tt.kind)
		assert.Equal(t, tt.message, message, tt.kind)
	}
}

func TestPayloadAccessors(t *testing.T) {
	p := normalizePayload(Payload{"productId": 17, "n": "12", "f": "1.5", "blank": "  ", "ch": make(chan int)})
	s, ok := p.String("productId")
	assert.True(t, ok)
	assert.Equal(t, "17", s)
	_, ok = p.String("blank")
	assert.False(t, ok)
	n, ok := p.Int("n")
	assert.True(t, ok)
	assert.Equal(t, 12, n)
	f, ok := p.Float("f")
	assert.True(t, ok)
	assert.Equal(t, 1.5, f)
	assert.IsType(t, "", p["ch"], "unencodable values fall back to text")
	assert.Equal(t, "17", p.SubjectKey())
	assert.Equal(t, "general", Payload{}.SubjectKey())
	assert.Equal(t, "k", Payload{"subjectKey": "k"}.SubjectKey())
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	k, ok := r.Lookup("expiry_urgent")
	assert.True(t, ok)
	assert.Equal(t, TierCritical, k.Tier)
	assert.True(t, k.Persistent)

	k, ok = r.Lookup(KindSaleCompleted)
	assert.True(t, ok)
	assert.False(t, k.Persistent)

	_, ok = r.Lookup("nope")
	assert.False(t, ok)
	assert.Equal(t, []string{KindCriticalStock, KindExpiryUrgent, KindSystemError, KindLowStock, KindExpiryWarning, KindSaleCompleted, KindSystemInfo, KindTest}, r.IDs())
}

func TestSubjectKeyPrecedence(t *testing.T) {
	assert.Equal(t, "p1", Payload{"productId": "p1", "subjectKey": "k", "saleId": "s"}.SubjectKey())
	assert.Equal(t, "k", Payload{"subjectKey": "k", "saleId": "s"}.SubjectKey())
	assert.Equal(t, "s", Payload{"saleId": "s"}.SubjectKey())
}

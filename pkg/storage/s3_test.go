package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWebhookKey(t *testing.T) {
	at := time.Date(2026, 10, 14, 23, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	assert.Equal(t, "webhooks/2026/10/14/evt_123.json", WebhookKey(at, "evt_123"))
	assert.Equal(t, "webhooks/2026/10/14/evil.json", WebhookKey(at, "../../evil"))
}

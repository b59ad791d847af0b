package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSenderOmitsRecipient(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := s.Send(context.Background(), Message{
		Template:      TemplateOfferLetter,
		To:            "ana@example.com",
		PersonID:      "p-1",
		ApplicationID: "app-1",
	})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "offer_letter", out["template"])
	assert.Equal(t, "app-1", out["application_id"])
	assert.Equal(t, "notify", out["component"])
	assert.NotContains(t, buf.String(), "ana@example.com")
}

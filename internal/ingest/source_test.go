package ingest

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{{`},
		{"object instead of array", `{"messages":[]}`},
		{"empty array", `[]`},
		{"missing messages", `[{"foo":1}]`},
		{"empty messages", `[{"messages":[]}]`},
		{"messages not an array", `[{"messages":"hello"}]`},
		{"fifth item broken", `[{"messages":[{}]},{"messages":[{}]},{"messages":[{}]},{"messages":[{}]},{"messages":[]}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			assert.ErrorIs(t, err, ErrMalformedInput)
		})
	}
}

func TestDecodeOnlyChecksLeadingItems(t *testing.T) {
	payload := `[{"messages":[{}]},{"messages":[{}]},{"messages":[{}]},{"messages":[{}]},{"messages":[{}]},{"messages":[]}]`
	groups, err := Decode([]byte(payload))
	require.NoError(t, err)
	assert.Len(t, groups, 6)
	assert.Empty(t, groups[5].Messages)
}

func TestDecodeFlexibleFields(t *testing.T) {
	groups, err := Decode([]byte(`[{"messages":[{"id":12,"ticketId":"44","userId":"7","timestamp":1700000000,"contact":{"number":5577912345678}}]}]`))
	require.NoError(t, err)

	m := groups[0].Messages[0]
	assert.Equal(t, "12", m.ID.String())
	assert.Equal(t, "44", m.TicketID.String())
	assert.Equal(t, FlexInt(7), m.UserID)
	assert.Equal(t, "1700000000", m.Timestamp.String())
	assert.Equal(t, "5577912345678", m.Contact.Number.String())
}

func TestLoadSources(t *testing.T) {
	ctx := context.Background()

	t.Run("inline", func(t *testing.T) {
		groups, size, err := Load(ctx, nil, Source{Inline: []byte(ticketSevenExport)})
		require.NoError(t, err)
		assert.Len(t, groups, 1)
		assert.Equal(t, int64(len(ticketSevenExport)), size)
	})

	t.Run("base64", func(t *testing.T) {
		encoded := base64.StdEncoding.EncodeToString([]byte(ticketSevenExport))
		groups, _, err := Load(ctx, nil, Source{Base64: encoded})
		require.NoError(t, err)
		assert.Len(t, groups[0].Messages, 2)

		groups, _, err = Load(ctx, nil, Source{Base64: "data:application/json;base64," + encoded})
		require.NoError(t, err)
		assert.Len(t, groups, 1)
	})

	t.Run("bad base64", func(t *testing.T) {
		_, _, err := Load(ctx, nil, Source{Base64: "***"})
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("url", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(ticketSevenExport))
		}))
		defer srv.Close()

		groups, _, err := Load(ctx, srv.Client(), Source{URL: srv.URL})
		require.NoError(t, err)
		assert.Len(t, groups, 1)
	})

	t.Run("url error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		defer srv.Close()

		_, _, err := Load(ctx, srv.Client(), Source{URL: srv.URL})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("nothing", func(t *testing.T) {
		_, _, err := Load(ctx, nil, Source{})
		assert.ErrorIs(t, err, ErrMalformedInput)
	})
}

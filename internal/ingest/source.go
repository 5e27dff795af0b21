package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var ErrMalformedInput = errors.New("malformed input")

// itemsToCheck is how many leading groups get their shape verified before
// anything is written.
const itemsToCheck = 5

// Source selects one of the three accepted encodings. Exactly one field must be set.
type Source struct {
	Inline []byte
	Base64 string
	URL    string
}

// Load resolves the source into raw bytes and decodes them. The returned size
// is the length of the decoded payload.
func Load(ctx context.Context, client *http.Client, src Source) ([]RawGroup, int64, error) {
	var payload []byte
	switch {
	case len(src.Inline) > 0:
		payload = src.Inline
	case src.Base64 != "":
		decoded, err := DecodeBase64(src.Base64)
		if err != nil {
			return nil, 0, err
		}
		payload = decoded
	case src.URL != "":
		fetched, err := FetchURL(ctx, client, src.URL)
		if err != nil {
			return nil, 0, err
		}
		payload = fetched
	default:
		return nil, 0, fmt.Errorf("%w: no data, base64 or url provided", ErrMalformedInput)
	}

	groups, err := Decode(payload)
	if err != nil {
		return nil, 0, err
	}
	return groups, int64(len(payload)), nil
}

// DecodeBase64 accepts standard base64, optionally wrapped in a data URL.
func DecodeBase64(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrMalformedInput, err)
	}
	return decoded, nil
}

func FetchURL(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url: %v", ErrMalformedInput, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	return body, nil
}

// Decode parses an export and verifies its shape: a non-empty array whose
// leading items each carry a non-empty messages array.
func Decode(payload []byte) ([]RawGroup, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON array: %v", ErrMalformedInput, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrMalformedInput)
	}

	for i := 0; i < len(items) && i < itemsToCheck; i++ {
		var probe struct {
			Messages []json.RawMessage `json:"messages"`
		}
		if err := json.Unmarshal(items[i], &probe); err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrMalformedInput, i, err)
		}
		if len(probe.Messages) == 0 {
			return nil, fmt.Errorf("%w: item %d has no messages", ErrMalformedInput, i)
		}
	}

	groups := make([]RawGroup, len(items))
	for i, item := range items {
		if err := json.Unmarshal(item, &groups[i]); err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrMalformedInput, i, err)
		}
	}
	return groups, nil
}

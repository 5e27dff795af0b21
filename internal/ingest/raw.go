package ingest

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// RawMessage is one message as exported by the chat provider.
type RawMessage struct {
	ID        FlexString  `json:"id"`
	MessageID FlexString  `json:"messageId"`
	Status    string      `json:"status"`
	FromMe    bool        `json:"fromMe"`
	Body      string      `json:"body"`
	MediaType string      `json:"mediaType"`
	Timestamp FlexString  `json:"timestamp"`
	CreatedAt FlexString  `json:"createdAt"`
	SendType  string      `json:"sendType"`
	UserID    FlexInt     `json:"userId"`
	Contact   *RawContact `json:"contact"`
	TicketID  FlexString  `json:"ticketId"`
	ContactID FlexInt     `json:"contactId"`
}

type RawContact struct {
	ID      FlexInt    `json:"id"`
	Name    string     `json:"name"`
	Number  FlexString `json:"number"`
	Channel string     `json:"channel"`
}

// RawGroup is one element of the exported array.
type RawGroup struct {
	Messages []RawMessage `json:"messages"`
}

// FlexString accepts a JSON string or number. null decodes to "".
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// FlexInt accepts a JSON number or numeric string. Anything else decodes to 0.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	v := strings.TrimSpace(string(s))
	if v == "" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	if fl, err := strconv.ParseFloat(v, 64); err == nil {
		*f = FlexInt(int64(fl))
		return nil
	}
	*f = 0
	return nil
}

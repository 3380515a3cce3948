package api

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// FlexString accepts JSON strings and numbers; clients send guild and user
// ids both ways.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// FlexInt accepts JSON numbers and numeric strings
type FlexInt struct {
	Value int
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexInt) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		f.Value, f.Set = n, true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	f.Value, f.Set = v, true
	return nil
}

// guildIDFrom resolves the guild id with the documented precedence:
// query string, then X-Guild-ID header, then body.
func guildIDFrom(c *gin.Context, body FlexString) string {
	if v := strings.TrimSpace(c.Query("guild_id")); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.GetHeader("X-Guild-ID")); v != "" {
		return v
	}
	return body.String()
}

// userIDFrom resolves the user id: body first, then X-User-ID header
func userIDFrom(c *gin.Context, body FlexString) string {
	if v := body.String(); v != "" {
		return v
	}
	return strings.TrimSpace(c.GetHeader("X-User-ID"))
}

// isURL reports whether the raw input is a fetchable URL
func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

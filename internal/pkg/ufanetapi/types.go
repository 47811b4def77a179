package ufanetapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

/*
 *  Wire types for the Ufanet dom.ufanet.ru API.  The vendor is loose about
 *  JSON types: identifiers arrive as numbers or strings and money amounts
 *  as numbers, strings or null, so the scalar types below accept all of them.
 */

// Identifier is a vendor id or linkage key, normalised to its string form.
// The empty Identifier means "absent".
type Identifier string

func (i *Identifier) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*i = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*i = Identifier(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.Wrapf(err, "parsing identifier %s", data)
	}
	*i = Identifier(n.String())
	return nil
}

func (i Identifier) String() string {
	return string(i)
}

// Decimal is an optional currency or coordinate value.
type Decimal struct {
	Value float64
	Valid bool
}

func NewDecimal(v float64) Decimal {
	return Decimal{Value: v, Valid: true}
}

func (d *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*d = Decimal{}

	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return errors.Wrapf(err, "parsing decimal %s", data)
	}

	*d = NewDecimal(v)
	return nil
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(d.Value, 'f', -1, 64)), nil
}

// Rounded returns the value rounded to two places, or nil when unset
func (d Decimal) Rounded() *float64 {
	if !d.Valid {
		return nil
	}
	v := math.Round(d.Value*100) / 100
	return &v
}

// IntercomDevice is one shared SKUD (door-entry) unit.  Attributes carries
// the complete vendor object untouched.
type IntercomDevice struct {
	ID         Identifier             `json:"id"`
	CustomName string                 `json:"custom_name"`
	CCTVNumber Identifier             `json:"cctv_number"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

const defaultDeviceName = "Domofon"

func (d *IntercomDevice) UnmarshalJSON(data []byte) error {
	type plain IntercomDevice

	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	attrs := make(map[string]interface{})
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&attrs); err != nil {
		return err
	}

	*d = IntercomDevice(p)
	d.Attributes = attrs
	return nil
}

// Name is the user-assigned name, falling back to a generic label
func (d IntercomDevice) Name() string {
	if d.CustomName != "" {
		return d.CustomName
	}
	return defaultDeviceName
}

type CameraServers struct {
	Domain string `json:"domain"`
}

type Camera struct {
	Number       Identifier    `json:"number"`
	Title        string        `json:"title"`
	Address      string        `json:"address"`
	Latitude     Decimal       `json:"latitude"`
	Longitude    Decimal       `json:"longitude"`
	Servers      CameraServers `json:"servers"`
	TokenL       string        `json:"token_l"`
	StreamSource string        `json:"stream_source,omitempty"`
}

// StreamURI builds the RTSP location of a camera.  ok is false when any of
// the three parts is missing.
func StreamURI(domain string, number Identifier, token string) (uri string, ok bool) {
	if domain == "" || number == "" || token == "" {
		return "", false
	}
	return fmt.Sprintf("rtsp://%s/%s?token=%s", domain, number, token), true
}

// WithStreamSource returns a copy of the camera with StreamSource derived
// from its server domain, number and token.  An incomplete camera gets no
// stream source.
func (c Camera) WithStreamSource() Camera {
	uri, ok := StreamURI(c.Servers.Domain, c.Number, c.TokenL)
	if ok {
		c.StreamSource = uri
	} else {
		c.StreamSource = ""
	}
	return c
}

// Name is the camera title or a label built from its number
func (c Camera) Name() string {
	if c.Title != "" {
		return c.Title
	}
	return "Camera " + c.Number.String()
}

// Contract is a billing account attached to the login contract
type Contract struct {
	ID      Identifier `json:"id"`
	Title   string     `json:"title"`
	Balance Decimal    `json:"balance"`
	Limit   Decimal    `json:"limit"`
}

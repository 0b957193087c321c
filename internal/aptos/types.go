// Package aptos is a minimal client for the Aptos node REST API.
package aptos

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Client is the subset of the node API used by the venue source.
type Client interface {
	// AccountResources lists all resources under an account.
	AccountResources(ctx context.Context, addr string) ([]Resource, error)

	// AccountResource reads one resource by struct tag.
	AccountResource(ctx context.Context, addr, resourceType string) (*Resource, error)

	// EventsByHandle pages an event handle field from sequence number start.
	EventsByHandle(ctx context.Context, addr, handle, field string, start uint64, limit int) ([]Event, error)

	// View calls a view function.
	View(ctx context.Context, req ViewRequest) ([]json.RawMessage, error)
}

// Resource is a Move resource as returned by the node.
type Resource struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event is a Move event read from an event handle.
type Event struct {
	Version        U64             `json:"version"`
	SequenceNumber U64             `json:"sequence_number"`
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data"`
}

// ViewRequest is the body of POST /v1/view.
type ViewRequest struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

// U64 decodes Move u64/u128 values, which the API encodes as decimal strings.
type U64 uint64

// UnmarshalJSON accepts both "123" and 123.
func (u *U64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse u64 %q: %w", s, err)
	}
	*u = U64(v)
	return nil
}

// MarshalJSON encodes the value as a decimal string.
func (u U64) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatUint(uint64(u), 10) + `"`), nil
}

// StructTag is a parsed Move struct tag such as
// 0x1::coin::CoinInfo<0x1::aptos_coin::AptosCoin>.
type StructTag struct {
	Address  string
	Module   string
	Name     string
	TypeArgs []string
}

// String renders the tag in canonical form.
func (t StructTag) String() string {
	s := t.Address + "::" + t.Module + "::" + t.Name
	if len(t.TypeArgs) > 0 {
		s += "<" + strings.Join(t.TypeArgs, ", ") + ">"
	}
	return s
}

// ParseStructTag parses a struct tag, splitting generic arguments at the
// top nesting level only.
func ParseStructTag(s string) (StructTag, error) {
	s = strings.TrimSpace(s)

	head, args := s, ""
	if i := strings.IndexByte(s, '<'); i >= 0 {
		if !strings.HasSuffix(s, ">") {
			return StructTag{}, fmt.Errorf("invalid struct tag %q: unbalanced generics", s)
		}
		head, args = s[:i], s[i+1:len(s)-1]
	}

	parts := strings.Split(head, "::")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return StructTag{}, fmt.Errorf("invalid struct tag %q", s)
	}

	tag := StructTag{Address: parts[0], Module: parts[1], Name: parts[2]}
	if args == "" {
		return tag, nil
	}

	depth, start := 0, 0
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return StructTag{}, fmt.Errorf("invalid struct tag %q: unbalanced generics", s)
			}
		case ',':
			if depth == 0 {
				tag.TypeArgs = append(tag.TypeArgs, strings.TrimSpace(args[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return StructTag{}, fmt.Errorf("invalid struct tag %q: unbalanced generics", s)
	}
	tag.TypeArgs = append(tag.TypeArgs, strings.TrimSpace(args[start:]))
	return tag, nil
}

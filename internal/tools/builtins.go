package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/llmgate/internal/oauth"
)

// 組み込みツールの名前。
const (
	ToolCurrentTime    = "get_current_time"
	ToolWhoAmI         = "whoami"
	ToolLookupProperty = "lookup_property"
	ToolListBookings   = "list_bookings"
	ToolCancelBooking  = "cancel_booking"
)

// Builtins は組み込みツールの依存関係を保持し、リクエストごとにRegistryを構築する。
type Builtins struct {
	store *Store
	now   func() time.Time
}

// BuiltinOption はBuiltinsの生成オプション。
type BuiltinOption func(*Builtins)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) BuiltinOption {
	return func(b *Builtins) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuiltins は新しいBuiltinsを生成する。storeがnilの場合はデータ参照系のツールを登録しない。
func NewBuiltins(store *Store, opts ...BuiltinOption) *Builtins {
	b := &Builtins{store: store, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Ping はツールが参照するデータベースへの疎通を確認する。データベースを持たない場合は常にnil。
func (b *Builtins) Ping(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	return b.store.Ping(ctx)
}

// Registry はリクエスト用のRegistryを構築する。
// 更新系のツールは認証済みのリクエストにのみ登録する。
func (b *Builtins) Registry(ctx context.Context) (*Registry, error) {
	_, authenticated := oauth.ClaimsFromContext(ctx)

	r := NewRegistry()
	if err := r.Register(Definition{
		Name:        ToolCurrentTime,
		Description: "Returns the current date and time, optionally in an IANA time zone such as Asia/Tokyo.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{"type": "string", "description": "IANA time zone name"},
			},
			"additionalProperties": false,
		},
	}, b.currentTime); err != nil {
		return nil, err
	}

	if err := r.Register(Definition{
		Name:        ToolWhoAmI,
		Description: "Returns the identity and role of the authenticated caller.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}, whoAmI); err != nil {
		return nil, err
	}

	if b.store == nil {
		return r, nil
	}

	if err := r.Register(Definition{
		Name:        ToolLookupProperty,
		Description: "Looks up a property by id, or lists properties in a city.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"property_id": map[string]any{"type": "string"},
				"city":        map[string]any{"type": "string"},
				"limit":       map[string]any{"type": "integer", "minimum": 1, "maximum": 50},
			},
			"additionalProperties": false,
		},
	}, b.lookupProperty); err != nil {
		return nil, err
	}

	if err := r.Register(Definition{
		Name:        ToolListBookings,
		Description: "Lists bookings, optionally filtered by guest.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"guest": map[string]any{"type": "string"},
			},
			"additionalProperties": false,
		},
	}, b.listBookings); err != nil {
		return nil, err
	}

	if !authenticated {
		return r, nil
	}

	if err := r.Register(Definition{
		Name:        ToolCancelBooking,
		Description: "Cancels a booking by reference. Requires the read-write or admin role.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reference": map[string]any{"type": "string", "minLength": 1},
			},
			"required":             []any{"reference"},
			"additionalProperties": false,
		},
	}, b.cancelBooking); err != nil {
		return nil, err
	}
	return r, nil
}

func (b *Builtins) currentTime(_ context.Context, args map[string]any) (any, error) {
	loc := time.UTC
	if name, _ := args["timezone"].(string); name != "" {
		l, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("不明なタイムゾーンです: %s", name)
		}
		loc = l
	}
	now := b.now().In(loc)
	return map[string]any{
		"time":     now.Format(time.RFC3339),
		"timezone": loc.String(),
		"weekday":  now.Weekday().String(),
	}, nil
}

func whoAmI(ctx context.Context, _ map[string]any) (any, error) {
	claims, ok := oauth.ClaimsFromContext(ctx)
	if !ok {
		return map[string]any{"authenticated": false}, nil
	}
	out := map[string]any{
		"authenticated": true,
		"subject":       claims.Subject,
		"role":          string(claims.Role),
	}
	if claims.Scope != "" {
		out["scope"] = claims.Scope
	}
	if claims.ExpiresAt != nil {
		out["expires_at"] = claims.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return out, nil
}

func (b *Builtins) lookupProperty(ctx context.Context, args map[string]any) (any, error) {
	if id, _ := args["property_id"].(string); id != "" {
		return b.store.GetProperty(ctx, id)
	}
	city, _ := args["city"].(string)
	limit := 0
	if l, ok := args["limit"].(float64); ok {
		limit = int(l)
	}
	props, err := b.store.SearchProperties(ctx, city, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"properties": props, "count": len(props)}, nil
}

func (b *Builtins) listBookings(ctx context.Context, args map[string]any) (any, error) {
	guest, _ := args["guest"].(string)
	bookings, err := b.store.ListBookings(ctx, guest)
	if err != nil {
		return nil, err
	}
	return map[string]any{"bookings": bookings, "count": len(bookings)}, nil
}

// cancelBooking は予約の取り消しを模擬する。データベースは更新しない。
// admin以外は自分の予約のみ取り消せる。
func (b *Builtins) cancelBooking(ctx context.Context, args map[string]any) (any, error) {
	claims, ok := oauth.ClaimsFromContext(ctx)
	if !ok || !claims.Role.CanWrite() {
		return nil, ErrForbidden
	}

	reference, _ := args["reference"].(string)
	booking, err := b.store.GetBooking(ctx, reference)
	if err != nil {
		return nil, err
	}
	if claims.Role != oauth.RoleAdmin && booking.Guest != claims.Subject {
		return nil, fmt.Errorf("予約 %s: %w", reference, ErrForbidden)
	}
	if booking.Status == "cancelled" {
		return map[string]any{"reference": reference, "status": "already_cancelled"}, nil
	}
	return map[string]any{
		"reference":       reference,
		"previous_status": booking.Status,
		"status":          "cancelled",
		"simulated":       true,
	}, nil
}

package tools

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nao1215/llmgate/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryDSN はインメモリデータベースのDSN。
const MemoryDSN = ":memory:"

// ErrNotFound は指定したレコードが存在しないことを表す。
var ErrNotFound = errors.New("レコードが見つかりません")

// Property は物件。
type Property struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	City        string `json:"city"`
	Bedrooms    int    `json:"bedrooms"`
	NightlyRate int    `json:"nightly_rate"`
	OwnerName   string `json:"owner_name"`
	OwnerEmail  string `json:"owner_email"`
}

// Booking は予約。
type Booking struct {
	Reference  string `json:"reference"`
	PropertyID string `json:"property_id"`
	Guest      string `json:"guest"`
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
	Status     string `json:"status"`
}

// Store はデモ用ツールが参照するSQLiteのフィクスチャデータ。読み取り専用で使用する。
type Store struct {
	db *sql.DB
}

// OpenStore はデータベースを開いてマイグレーションを適用する。dsnが空の場合はインメモリで開く。
func OpenStore(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// インメモリDBは接続ごとに別のデータベースになるため1接続に固定する。
	db.SetMaxOpenConns(1)

	if _, err := migration.Run(ctx, db, migrationsFS, "migrations", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &Store{db: db}, nil
}

// Close はデータベースを閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping はデータベースへの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const propertyColumns = "id, name, city, bedrooms, nightly_rate, owner_name, owner_email"

// GetProperty はIDで物件を取得する。
func (s *Store) GetProperty(ctx context.Context, id string) (*Property, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+propertyColumns+" FROM properties WHERE id = ?", id)
	p, err := scanProperty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("物件 %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("物件の取得に失敗: %w", err)
	}
	return p, nil
}

// SearchProperties は都市名で物件を検索する。cityが空の場合は全件を返す。
func (s *Store) SearchProperties(ctx context.Context, city string, limit int) ([]Property, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+propertyColumns+" FROM properties WHERE (? = '' OR city = ? COLLATE NOCASE) ORDER BY id LIMIT ?",
		city, city, limit)
	if err != nil {
		return nil, fmt.Errorf("物件の検索に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("物件の読み取りに失敗: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ListBookings は予約を一覧する。guestが空でない場合はその宿泊者の予約に絞り込む。
func (s *Store) ListBookings(ctx context.Context, guest string) ([]Booking, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reference, property_id, guest, check_in, check_out, status
		   FROM bookings WHERE (? = '' OR guest = ?) ORDER BY reference`,
		guest, guest)
	if err != nil {
		return nil, fmt.Errorf("予約の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Booking
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.Reference, &b.PropertyID, &b.Guest, &b.CheckIn, &b.CheckOut, &b.Status); err != nil {
			return nil, fmt.Errorf("予約の読み取りに失敗: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBooking は予約番号で予約を取得する。
func (s *Store) GetBooking(ctx context.Context, reference string) (*Booking, error) {
	var b Booking
	err := s.db.QueryRowContext(ctx,
		`SELECT reference, property_id, guest, check_in, check_out, status FROM bookings WHERE reference = ?`,
		reference).Scan(&b.Reference, &b.PropertyID, &b.Guest, &b.CheckIn, &b.CheckOut, &b.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("予約 %s: %w", reference, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("予約の取得に失敗: %w", err)
	}
	return &b, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(row rowScanner) (*Property, error) {
	var p Property
	if err := row.Scan(&p.ID, &p.Name, &p.City, &p.Bedrooms, &p.NightlyRate, &p.OwnerName, &p.OwnerEmail); err != nil {
		return nil, err
	}
	return &p, nil
}

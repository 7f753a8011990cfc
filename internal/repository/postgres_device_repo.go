package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/roomcal/internal/model"
)

const deviceColumns = `id, connection_code, user_id, device_type, calendar_id,
	language, clock_type, minutes_for_check_in, created_at, updated_at`

// PostgresDeviceRepo はPostgreSQLを使用したデバイスリポジトリ。
type PostgresDeviceRepo struct {
	db *sql.DB
}

// NewPostgresDeviceRepo はPostgresDeviceRepoを生成する。
func NewPostgresDeviceRepo(db *sql.DB) *PostgresDeviceRepo {
	return &PostgresDeviceRepo{db: db}
}

// rowScanner は *sql.Row と *sql.Rows の共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(s rowScanner) (*model.Device, error) {
	d := &model.Device{}
	var code, userID, calendarID sql.NullString
	var deviceType string
	err := s.Scan(
		&d.ID, &code, &userID, &deviceType, &calendarID,
		&d.Language, &d.ClockType, &d.MinutesForCheckIn, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.ConnectionCode = code.String
	d.UserID = userID.String
	d.CalendarID = calendarID.String
	d.DeviceType = model.DeviceType(deviceType)
	return d, nil
}

// FindByID は指定IDのデバイスを取得する。見つからない場合はnilを返す。
func (r *PostgresDeviceRepo) FindByID(ctx context.Context, id string) (*model.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find device: %w", err)
	}
	return d, nil
}

// FindByConnectionCode は未接続デバイスを接続コードで検索する。見つからない場合はnilを返す。
func (r *PostgresDeviceRepo) FindByConnectionCode(ctx context.Context, code string) (*model.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices
		 WHERE connection_code = $1 AND user_id IS NULL`,
		code,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find device by connection code: %w", err)
	}
	return d, nil
}

// ListByUserID はユーザーに接続された全デバイスを作成日時の昇順で返す。
func (r *PostgresDeviceRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices
		 WHERE user_id = $1
		 ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}
	return devices, nil
}

// Create はデバイスを作成する。
func (r *PostgresDeviceRepo) Create(ctx context.Context, d *model.Device) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (`+deviceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, nullString(d.ConnectionCode), nullString(d.UserID), string(d.DeviceType),
		nullString(d.CalendarID), d.Language, d.ClockType, d.MinutesForCheckIn,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

// Connect は未接続のデバイスをユーザーに接続し、接続コードを無効化する。
// 既に接続済みの場合は何も変更せずfalseを返す。
func (r *PostgresDeviceRepo) Connect(ctx context.Context, deviceID, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices
		 SET user_id = $2, connection_code = NULL, updated_at = now()
		 WHERE id = $1 AND user_id IS NULL`,
		deviceID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to connect device: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

// UpdateSettings はデバイス設定を更新する。
func (r *PostgresDeviceRepo) UpdateSettings(ctx context.Context, deviceID string, s model.DeviceSettings) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE devices
		 SET calendar_id = $2, device_type = $3, language = $4,
		     clock_type = $5, minutes_for_check_in = $6
		 WHERE id = $1`,
		deviceID, nullString(s.CalendarID), string(s.DeviceType), s.Language,
		s.ClockType, s.MinutesForCheckIn,
	)
	if err != nil {
		return fmt.Errorf("failed to update device settings: %w", err)
	}
	return nil
}

// Touch はデバイスの最終アクセス時刻を更新する。
func (r *PostgresDeviceRepo) Touch(ctx context.Context, deviceID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE devices SET updated_at = $2 WHERE id = $1`,
		deviceID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to touch device: %w", err)
	}
	return nil
}

// Delete は指定IDのデバイスを削除する。
func (r *PostgresDeviceRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM devices WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	return nil
}

// compile-time interface check
var _ DeviceRepository = (*PostgresDeviceRepo)(nil)

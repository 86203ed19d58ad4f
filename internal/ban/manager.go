// Package ban implements the ban/unban lifecycle. Every mutation runs in a
// single transaction together with its audit entry.
package ban

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"cs2kz-api/internal/audit"
	"cs2kz-api/internal/model"
	"cs2kz-api/internal/store"
)

const (
	banCacheKeyPrefix = "ban_"
	banCacheTTL       = 5 * time.Minute
	banCacheCleanup   = 10 * time.Minute

	DefaultLimit = 100
	MaxLimit     = 1000
)

// NewBan describes a ban to be created.
type NewBan struct {
	PlayerID  uint64
	Reason    string
	ExpiresOn *time.Time
}

// Update is a partial edit of a ban. Nil fields are left untouched.
type Update struct {
	Reason    *string
	ExpiresOn *time.Time
}

func (u Update) Empty() bool {
	return u.Reason == nil && u.ExpiresOn == nil
}

// Query filters List.
type Query struct {
	PlayerID      *uint64
	AdminID       *uint64
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// Manager owns ban mutations.
type Manager struct {
	db     *gorm.DB
	sink   *audit.Sink
	cache  *cache.Cache
	logger *slog.Logger
	Now    func() time.Time
}

func NewManager(db *gorm.DB, sink *audit.Sink, logger *slog.Logger) *Manager {
	return &Manager{
		db:     db,
		sink:   sink,
		cache:  cache.New(banCacheTTL, banCacheCleanup),
		logger: logger,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

func cacheKey(id uint64) string {
	return banCacheKeyPrefix + strconv.FormatUint(id, 10)
}

// Get fetches a ban and its unban, if any.
func (m *Manager) Get(ctx context.Context, id uint64) (*model.Ban, error) {
	if cached, found := m.cache.Get(cacheKey(id)); found {
		b := cached.(model.Ban)
		return &b, nil
	}

	// The ban and its unban are read in one transaction so they describe
	// the same moment.
	var b model.Ban
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Preload("Unban").First(&b, id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch ban: %w", err)
	}

	// Only reverted bans are cached; they can no longer change.
	if b.Unban != nil {
		m.cache.Set(cacheKey(id), b, banCacheTTL)
	}
	return &b, nil
}

// List returns bans matching q, newest first, and the total match count.
func (m *Manager) List(ctx context.Context, q Query) ([]model.Ban, int64, error) {
	var f store.Filter
	if q.PlayerID != nil {
		f.Add("player_id = ?", *q.PlayerID)
	}
	if q.AdminID != nil {
		f.Add("admin_id = ?", *q.AdminID)
	}
	if q.CreatedAfter != nil {
		f.Add("created_on > ?", q.CreatedAfter.UTC())
	}
	if q.CreatedBefore != nil {
		f.Add("created_on < ?", q.CreatedBefore.UTC())
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	db := m.db.WithContext(ctx)

	var total int64
	if err := f.Apply(db.Model(&model.Ban{})).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count bans: %w", err)
	}

	var bans []model.Ban
	err := f.Apply(db.Preload("Unban")).
		Order("id DESC").
		Limit(limit).
		Offset(q.Offset).
		Find(&bans).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list bans: %w", err)
	}
	return bans, total, nil
}

// CountActive counts bans that are neither reverted nor expired.
func (m *Manager) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := m.db.WithContext(ctx).
		Model(&model.Ban{}).
		Joins("LEFT JOIN unbans ON unbans.ban_id = bans.id").
		Where("unbans.id IS NULL").
		Where("bans.expires_on IS NULL OR bans.expires_on > ?", m.Now()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count active bans: %w", err)
	}
	return n, nil
}

// Create bans a player on behalf of adminID.
func (m *Manager) Create(ctx context.Context, adminID uint64, nb NewBan) (*model.Ban, error) {
	now := m.Now()
	if nb.ExpiresOn != nil && !nb.ExpiresOn.After(now) {
		return nil, ErrInvalidExpiry
	}

	b := model.Ban{
		PlayerID:  nb.PlayerID,
		AdminID:   adminID,
		Reason:    nb.Reason,
		CreatedOn: now,
	}
	if nb.ExpiresOn != nil {
		expires := nb.ExpiresOn.UTC()
		b.ExpiresOn = &expires
	}

	var event audit.Event
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var players int64
		if err := tx.Model(&model.Player{}).Where("id = ?", nb.PlayerID).Count(&players).Error; err != nil {
			return err
		}
		if players == 0 {
			return ErrUnknownPlayer
		}

		if err := tx.Create(&b).Error; err != nil {
			return err
		}

		var err error
		event, err = m.sink.Record(tx, audit.Event{
			Name:      "ban.created",
			ActorID:   adminID,
			TargetIDs: []uint64{b.ID},
			Timestamp: now,
			Extra:     map[string]any{"player_id": b.PlayerID, "reason": b.Reason},
		})
		return err
	})
	if err != nil {
		return nil, m.wrap("create ban", err)
	}

	m.sink.Publish(ctx, event)
	return &b, nil
}

// Patch edits a ban that has not been reverted. An empty update is a
// successful no-op that performs no write.
func (m *Manager) Patch(ctx context.Context, adminID, banID uint64, u Update) error {
	if u.Empty() {
		return nil
	}

	var upd store.Update
	if u.Reason != nil {
		upd.Set("reason", *u.Reason)
	}
	if u.ExpiresOn != nil {
		upd.Set("expires_on", u.ExpiresOn.UTC())
	}
	extra := upd.Build()
	extra["columns"] = upd.Columns()

	var event audit.Event
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureNotReverted(tx, banID); err != nil {
			return err
		}

		res := tx.Model(&model.Ban{}).Where("id = ?", banID).Updates(upd.Build())
		if err := checkSingleRow(res); err != nil {
			return err
		}

		var err error
		event, err = m.sink.Record(tx, audit.Event{
			Name:      "ban.updated",
			ActorID:   adminID,
			TargetIDs: []uint64{banID},
			Extra:     extra,
		})
		return err
	})
	if err != nil {
		return m.wrap("update ban", err)
	}

	m.cache.Delete(cacheKey(banID))
	m.sink.Publish(ctx, event)
	return nil
}

// Revert lifts a ban: its expiry is set to now and an unban referencing it
// is created, atomically. It returns the new unban's ID.
func (m *Manager) Revert(ctx context.Context, adminID, banID uint64, reason string) (uint64, error) {
	now := m.Now()
	unban := model.Unban{
		BanID:     banID,
		AdminID:   adminID,
		Reason:    reason,
		CreatedOn: now,
	}

	var event audit.Event
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureNotReverted(tx, banID); err != nil {
			return err
		}

		res := tx.Model(&model.Ban{}).Where("id = ?", banID).Update("expires_on", now)
		if err := checkSingleRow(res); err != nil {
			return err
		}

		if err := tx.Create(&unban).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Lost a race the pool should have prevented; report the winner.
				return conflictFromStore(tx, banID, err)
			}
			return err
		}

		var err error
		event, err = m.sink.Record(tx, audit.Event{
			Name:      "ban.reverted",
			ActorID:   adminID,
			TargetIDs: []uint64{banID, unban.ID},
			Timestamp: now,
			Extra:     map[string]any{"reason": reason},
		})
		return err
	})
	if err != nil {
		return 0, m.wrap("revert ban", err)
	}

	m.cache.Delete(cacheKey(banID))
	m.sink.Publish(ctx, event)
	return unban.ID, nil
}

// ensureNotReverted fails with a ConflictError if an unban references banID.
func ensureNotReverted(tx *gorm.DB, banID uint64) error {
	var unban model.Unban
	err := tx.Select("id").Where("ban_id = ?", banID).Take(&unban).Error
	switch {
	case err == nil:
		return &ConflictError{BanID: banID, UnbanID: unban.ID}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	default:
		return fmt.Errorf("check unban: %w", err)
	}
}

func conflictFromStore(tx *gorm.DB, banID uint64, cause error) error {
	if err := ensureNotReverted(tx, banID); err != nil {
		return err
	}
	return cause
}

func checkSingleRow(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	switch res.RowsAffected {
	case 0:
		return ErrNotFound
	case 1:
		return nil
	default:
		return fmt.Errorf("%w: %d rows affected", ErrInconsistent, res.RowsAffected)
	}
}

// wrap passes domain errors through and logs everything else.
func (m *Manager) wrap(op string, err error) error {
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnknownPlayer):
		return err
	case errors.Is(err, ErrInconsistent):
		m.logger.Error(op, "error", err)
	default:
		m.logger.Warn(op, "error", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Package postgres is the production remote.Store: one jsonb document table
// per collection, with changes published through LISTEN/NOTIFY by the
// triggers installed in the remote schema migrations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/logger"
	"ledgersync/internal/models"
	"ledgersync/internal/remote"
)

// Channel is the NOTIFY channel the document triggers publish on.
const Channel = "ledgersync_changes"

const relistenDelay = time.Second

// document is one row of a <collection>_documents table.
type document struct {
	ID        string         `gorm:"primaryKey"`
	OwnerID   string         `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime:false"`
	Data      datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (d document) toRemote() remote.Document {
	return remote.Document{
		ID:        d.ID,
		OwnerID:   d.OwnerID,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
		Data:      json.RawMessage(d.Data),
	}
}

// notification is the payload of a NOTIFY on Channel.
type notification struct {
	Collection string `json:"collection"`
	Op         string `json:"op"`
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id"`
}

// Store is a remote.Store over Postgres.
type Store struct {
	db  *gorm.DB
	dsn string
	log *zap.SugaredLogger
}

var _ remote.Store = (*Store)(nil)

// New returns a Store over an open, migrated gorm handle. dsn is used to
// open the dedicated LISTEN connections of watchers.
func New(db *gorm.DB, dsn string) *Store {
	return &Store{db: db, dsn: dsn, log: logger.Named("remote.postgres")}
}

// tableFor maps a collection to its table, rejecting names the schema does
// not define.
func tableFor(collection string) (string, error) {
	if models.Kind(collection).Valid() || collection == remote.SeedCollection {
		return collection + "_documents", nil
	}
	return "", apperrors.ErrUnknownCollection
}

// Put implements remote.Store.
func (s *Store) Put(ctx context.Context, collection string, doc remote.Document) error {
	table, err := tableFor(collection)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur document
		err := tx.Table(table).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", doc.ID).
			Take(&cur).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return fmt.Errorf("reading %s/%s: %w", collection, doc.ID, err)
		case cur.OwnerID != doc.OwnerID:
			return apperrors.ErrUnauthorized
		case doc.UpdatedAt.Before(cur.UpdatedAt):
			return nil
		}

		row := document{
			ID:        doc.ID,
			OwnerID:   doc.OwnerID,
			CreatedAt: doc.CreatedAt,
			UpdatedAt: doc.UpdatedAt,
			Data:      datatypes.JSON(doc.Data),
		}
		err = tx.Table(table).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"created_at", "updated_at", "data"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: table + ".updated_at <= excluded.updated_at AND " + table + ".owner_id = excluded.owner_id"},
			}},
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("writing %s/%s: %w", collection, doc.ID, err)
		}
		return nil
	})
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, collection, id, ownerID string) error {
	table, err := tableFor(collection)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur document
		err := tx.Table(table).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Take(&cur).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s/%s: %w", collection, id, err)
		}
		if cur.OwnerID != ownerID {
			return apperrors.ErrUnauthorized
		}
		if err := tx.Table(table).Where("id = ?", id).Delete(&document{}).Error; err != nil {
			return fmt.Errorf("deleting %s/%s: %w", collection, id, err)
		}
		return nil
	})
}

// Get implements remote.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (remote.Document, bool, error) {
	table, err := tableFor(collection)
	if err != nil {
		return remote.Document{}, false, err
	}

	var row document
	err = s.db.WithContext(ctx).Table(table).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return remote.Document{}, false, nil
	}
	if err != nil {
		return remote.Document{}, false, fmt.Errorf("reading %s/%s: %w", collection, id, err)
	}
	return row.toRemote(), true, nil
}

// List implements remote.Store. Documents are ordered by id.
func (s *Store) List(ctx context.Context, collection, ownerID string) ([]remote.Document, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}

	var rows []document
	err = s.db.WithContext(ctx).Table(table).
		Where("owner_id = ?", ownerID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", collection, err)
	}

	out := make([]remote.Document, len(rows))
	for i, row := range rows {
		out[i] = row.toRemote()
	}
	return out, nil
}

// CreateIfAbsent implements remote.Store.
func (s *Store) CreateIfAbsent(ctx context.Context, collection string, doc remote.Document) (bool, error) {
	table, err := tableFor(collection)
	if err != nil {
		return false, err
	}

	row := document{
		ID:        doc.ID,
		OwnerID:   doc.OwnerID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		Data:      datatypes.JSON(doc.Data),
	}
	res := s.db.WithContext(ctx).Table(table).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("claiming %s/%s: %w", collection, doc.ID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Ping implements remote.Store.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Watch implements remote.Store. Each watcher holds its own LISTEN
// connection and re-establishes it after a connection failure. Changes that
// happen while the connection is down are not replayed; the next sync run
// picks them up.
func (s *Store) Watch(ctx context.Context, collection, ownerID string, fn remote.Handler) (func(), error) {
	if _, err := tableFor(collection); err != nil {
		return nil, err
	}
	conn, err := s.listenConn(ctx)
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go s.listen(loopCtx, conn, collection, ownerID, fn, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

func (s *Store) listenConn(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listening on %s: %w", Channel, err)
	}
	return conn, nil
}

func (s *Store) listen(ctx context.Context, conn *pgx.Conn, collection, ownerID string, fn remote.Handler, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if conn != nil {
			_ = conn.Close(context.Background())
		}
	}()

	log := s.log.With("collection", collection, "owner_id", ownerID)
	for {
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(relistenDelay):
			}
			c, err := s.listenConn(ctx)
			if err != nil {
				log.Warnw("re-listen failed", "error", err)
				continue
			}
			conn = c
		}

		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnw("listener connection lost", "error", err)
			_ = conn.Close(context.Background())
			conn = nil
			continue
		}

		var p notification
		if err := json.Unmarshal([]byte(n.Payload), &p); err != nil {
			log.Warnw("bad notification payload", "payload", n.Payload, "error", err)
			continue
		}
		if p.Collection != collection || p.OwnerID != ownerID {
			continue
		}
		if ch, ok := s.resolve(ctx, p); ok {
			fn(ch)
		}
	}
}

// resolve turns a notification into a Change, reading the current row for
// inserts and updates. A row deleted in the meantime yields nothing; its
// own delete notification follows.
func (s *Store) resolve(ctx context.Context, p notification) (remote.Change, bool) {
	ch := remote.Change{Collection: p.Collection}
	switch p.Op {
	case "delete":
		ch.Type = remote.ChangeRemoved
		ch.Document = remote.Document{ID: p.ID, OwnerID: p.OwnerID}
		return ch, true
	case "insert":
		ch.Type = remote.ChangeCreated
	case "update":
		ch.Type = remote.ChangeUpdated
	default:
		return ch, false
	}

	doc, ok, err := s.Get(ctx, p.Collection, p.ID)
	if err != nil {
		s.log.Warnw("reading changed document", "collection", p.Collection, "id", p.ID, "error", err)
		return ch, false
	}
	if !ok {
		return ch, false
	}
	ch.Document = doc
	return ch, true
}

package wa

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"google.golang.org/protobuf/proto"

	// Store drivers.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rickgao/attendance-notify/internal/connection"
)

const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"

	deviceLoadTimeout = 10 * time.Second
)

// Store holds the whatsmeow device container.
type Store struct {
	container *sqlstore.Container
	db        *sql.DB
	logger    *slog.Logger
}

// OpenStore opens and migrates the device store.
func OpenStore(ctx context.Context, dialect, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dbLog := NewLogger(logger, "store")

	switch dialect {
	case DialectSQLite:
		container, err := sqlstore.New(ctx, DialectSQLite, dsn, dbLog)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return &Store{container: container, logger: logger}, nil

	case DialectPostgres:
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		container := sqlstore.NewWithDB(db, DialectPostgres, dbLog)
		if err := container.Upgrade(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("upgrade postgres store: %w", err)
		}
		return &Store{container: container, db: db, logger: logger}, nil
	}
	return nil, fmt.Errorf("unsupported store dialect %q", dialect)
}

// SetDeviceName sets the name shown under linked devices on the phone.
func SetDeviceName(name string) {
	if name != "" {
		store.DeviceProps.Os = proto.String(name)
	}
}

// Factory returns a ClientFactory bound to the first stored device, or a new
// device when none has been paired yet.
func (s *Store) Factory() connection.ClientFactory {
	return func(logger *slog.Logger) (connection.ChatClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), deviceLoadTimeout)
		defer cancel()

		device, err := s.container.GetFirstDevice(ctx)
		if err != nil {
			return nil, fmt.Errorf("load device: %w", err)
		}
		cli := whatsmeow.NewClient(device, NewLogger(logger, "client"))
		cli.EnableAutoReconnect = false
		return newClient(cli, logger), nil
	}
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return s.container.Close()
}

// Package store is a reference implementation of the generic store service
// on top of badger. Rows are kept under
//
//	r \x00 keyspace \x00 table \x00 seq
//
// and each indexed column adds
//
//	i \x00 keyspace \x00 table \x00 column \x00 value \x00 seq -> row key
//
// Keyspace and table names are case-insensitive.
package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"thermal-relay-go/internal/logging"
	"thermal-relay-go/internal/metrics"
	"thermal-relay-go/internal/storerpc"
)

const sep = "\x00"

type Options struct {
	Dir      string
	InMemory bool
	Registry Registry
}

type Store struct {
	db       *badger.DB
	seq      *badger.Sequence
	registry Registry
	log      zerolog.Logger
}

func Open(opts Options) (*Store, error) {
	dir := opts.Dir
	if opts.InMemory {
		dir = ""
	}
	logger := logging.With().Str("component", "store").Logger()
	bopts := badger.DefaultOptions(dir).
		WithInMemory(opts.InMemory).
		WithLogger(badgerLogger{logger})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte("meta"+sep+"rowseq"), 1000)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("row sequence: %w", err)
	}

	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Store{db: db, seq: seq, registry: registry, log: logger}, nil
}

func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		s.log.Warn().Err(err).Msg("release row sequence")
	}
	return s.db.Close()
}

func (s *Store) Insert(_ context.Context, in *storerpc.InsertRequest) (*storerpc.InsertResponse, error) {
	keyspace := normalize(in.Keyspace)
	if keyspace == "" {
		return &storerpc.InsertResponse{Errs: []string{"keyspace is required"}}, nil
	}

	var errs []string
	for i, env := range in.Records {
		schema, err := s.registry.Lookup(env.TypeURL)
		if err != nil {
			errs = append(errs, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		if err := s.put(keyspace, schema, env.Value); err != nil {
			if _, ok := status.FromError(err); ok {
				return nil, err
			}
			errs = append(errs, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		metrics.StoreRecordsWritten.WithLabelValues(schema.Table).Inc()
	}
	return &storerpc.InsertResponse{Errs: errs}, nil
}

func (s *Store) put(keyspace string, schema Schema, value []byte) error {
	indexed := make(map[string]string, len(schema.Columns))
	for column, extract := range schema.Columns {
		v, err := extract(value)
		if err != nil {
			return fmt.Errorf("table %s column %s: %w", schema.Table, column, err)
		}
		indexed[column] = v
	}

	n, err := s.seq.Next()
	if err != nil {
		return status.Errorf(codes.Internal, "row sequence: %v", err)
	}
	rowKey := rowKey(keyspace, schema.Table, n)

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(rowKey, value); err != nil {
			return err
		}
		for column, v := range indexed {
			if err := txn.Set(indexKey(keyspace, schema.Table, normalize(column), v, n), rowKey); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return status.Errorf(codes.Internal, "write row: %v", err)
	}
	return nil
}

func (s *Store) Select(_ context.Context, in *storerpc.SelectRequest) (*storerpc.SelectResponse, error) {
	column := normalize(in.Column)
	if column == "" {
		return nil, status.Error(codes.InvalidArgument, "column is required")
	}
	prefix := indexPrefix(normalize(in.Keyspace), normalize(in.Table), column, in.Constraint)

	var records [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			rowKey, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			row, err := txn.Get(rowKey)
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			value, err := row.ValueCopy(nil)
			if err != nil {
				return err
			}
			records = append(records, value)
		}
		return nil
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "select: %v", err)
	}
	return &storerpc.SelectResponse{Records: records}, nil
}

// DropTable removes every row and index entry of the table. Dropping a
// table that holds nothing is not an error.
func (s *Store) DropTable(_ context.Context, in *storerpc.DropTableRequest) (*storerpc.DropTableResponse, error) {
	keyspace, table := normalize(in.Keyspace), normalize(in.Table)
	if keyspace == "" || table == "" {
		return &storerpc.DropTableResponse{Errs: []string{"keyspace and table are required"}}, nil
	}

	var removed int
	for _, prefix := range [][]byte{
		[]byte("r" + sep + keyspace + sep + table + sep),
		[]byte("i" + sep + keyspace + sep + table + sep),
	} {
		n, err := s.deletePrefix(prefix)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "drop table: %v", err)
		}
		removed += n
	}
	s.log.Info().Str("keyspace", keyspace).Str("table", table).Int("keys", removed).Msg("table dropped")
	return &storerpc.DropTableResponse{}, nil
}

func (s *Store) deletePrefix(prefix []byte) (int, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func rowKey(keyspace, table string, n uint64) []byte {
	key := []byte("r" + sep + keyspace + sep + table + sep)
	return binary.BigEndian.AppendUint64(key, n)
}

func indexPrefix(keyspace, table, column, value string) []byte {
	return []byte("i" + sep + keyspace + sep + table + sep + column + sep + value + sep)
}

func indexKey(keyspace, table, column, value string, n uint64) []byte {
	return binary.BigEndian.AppendUint64(indexPrefix(keyspace, table, column, value), n)
}

type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Trace().Msgf(strings.TrimSpace(format), args...)
}

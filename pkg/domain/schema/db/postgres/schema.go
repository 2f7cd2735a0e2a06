package postgres

import (
	"cmp"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	kpool "github.com/opst/knitfleet/pkg/conn/db/postgres/pool"
	kschema "github.com/opst/knitfleet/pkg/domain/schema/db"
	xe "github.com/opst/knitfleet/pkg/errors"
)

//go:embed repository
var embedded embed.FS

// Embedded returns the schema repository built into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "repository")
	if err != nil {
		panic(err) // the directory is embedded. it should not happen.
	}
	return sub
}

type pgSchema struct {
	pool kpool.Pool

	repository fs.FS

	// directory of the repository on the local filesystem. empty for embedded one.
	directory string
}

var _ kschema.SchemaInterface = &pgSchema{}

// New creates a new Schema with the embedded schema repository.
func New(pool kpool.Pool) kschema.SchemaInterface {
	return &pgSchema{pool: pool, repository: Embedded()}
}

// FromDirectory creates a new Schema.
//
// # Args
//
// - schemaRepository: path to the schema repository directory.
// Schema in it is watched by Context.
func FromDirectory(pool kpool.Pool, schemaRepository string) kschema.SchemaInterface {
	return &pgSchema{
		pool:       pool,
		repository: os.DirFS(schemaRepository),
		directory:  schemaRepository,
	}
}

type version struct {
	Version int
	Root    string
}

func (v version) Apply(ctx context.Context, repository fs.FS, conn kpool.Queryer) error {
	files := []string{}
	if err := fs.WalkDir(repository, v.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".sql") {
			return nil
		}
		files = append(files, p)
		return nil
	}); err != nil {
		return err
	}

	// fs.WalkDir visits in lexical order, so files are applied in order of their names.
	for _, f := range files {
		query, err := fs.ReadFile(repository, f)
		if err != nil {
			return err
		}
		if _, err := conn.Exec(ctx, string(query)); err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
	}
	return nil
}

func (s *pgSchema) Version(ctx context.Context) (int, error) {
	var v *int
	if err := s.pool.QueryRow(
		ctx, `select max("version") from "schema_version"`,
	).Scan(&v); err != nil {
		if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) {
			if pgerr.Code == pgerrcode.UndefinedTable {
				return 0, nil
			}
		}
		return -1, xe.Wrap(err)
	}
	if v == nil {
		return 0, nil
	}
	return *v, nil
}

func (s *pgSchema) Latest() (int, error) {
	vs, err := s.versions()
	if err != nil {
		return -1, err
	}
	if len(vs) == 0 {
		return 0, nil
	}
	return vs[len(vs)-1].Version, nil
}

func (s *pgSchema) Upgrade(ctx context.Context) error {
	schemaVersions, err := s.versions()
	if err != nil {
		return err
	}

	// query out of the transaction. the missing table aborts transactions.
	currentVersion, err := s.Version(ctx)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	for _, v := range schemaVersions {
		if v.Version <= currentVersion {
			continue
		}
		if err := v.Apply(ctx, s.repository, tx); err != nil {
			return xe.WrapWithNote(fmt.Sprintf("schema version %d", v.Version), err)
		}
		if _, err := tx.Exec(ctx, `delete from "schema_version"`); err != nil {
			return xe.Wrap(err)
		}
		if _, err := tx.Exec(
			ctx, `insert into "schema_version" ("version") values ($1)`, v.Version,
		); err != nil {
			return xe.Wrap(err)
		}
	}

	return xe.Wrap(tx.Commit(ctx))
}

func (s *pgSchema) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	cctx, can := context.WithCancelCause(ctx)

	checkVersion := func() {
		latest, err := s.Latest()
		if err != nil {
			can(fmt.Errorf("failed to read schema repository: %w", err))
			return
		}

		currentVersion, err := s.Version(ctx)
		if err != nil {
			can(fmt.Errorf("failed to get current schema version: %w", err))
			return
		}

		if currentVersion < latest {
			can(fmt.Errorf(
				"schema is outdated: %d (in db) < %d (in repository)",
				currentVersion, latest,
			))
		}
	}

	if s.directory == "" {
		// embedded repository never changes.
		checkVersion()
		return cctx, func() { can(nil) }
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		can(err)
		return cctx, func() {}
	}
	if err := w.Add(s.directory); err != nil {
		w.Close()
		can(err)
		return cctx, func() {}
	}

	go func() {
		defer w.Close()

		for {
			select {
			case <-cctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) {
					continue
				}
				if filepath.Clean(s.directory) != filepath.Dir(ev.Name) {
					continue
				}
				checkVersion()
			}
		}
	}()

	checkVersion()
	return cctx, func() { can(nil) }
}

// versions lookup the schema repository.
//
// Each directory named with a number is a version. They are sorted by the number.
func (s *pgSchema) versions() ([]version, error) {
	dir, err := fs.ReadDir(s.repository, ".")
	if err != nil {
		return nil, xe.Wrap(err)
	}

	schemaVersions := make([]version, 0, len(dir))
	for _, entry := range dir {
		if !entry.IsDir() {
			continue
		}
		v, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		schemaVersions = append(schemaVersions, version{
			Version: v,
			Root:    path.Join(".", entry.Name()),
		})
	}
	slices.SortFunc(
		schemaVersions,
		func(i, j version) int { return cmp.Compare(i.Version, j.Version) },
	)

	return schemaVersions, nil
}

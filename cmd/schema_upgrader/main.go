// schema_upgrader upgrades the database schema of knitfleet to the latest version.
//
// When DEST is given, schema files are copied there before upgrading.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"

	kpool "github.com/opst/knitfleet/pkg/conn/db/postgres/pool"
	kschema "github.com/opst/knitfleet/pkg/domain/schema/db"
	pgschema "github.com/opst/knitfleet/pkg/domain/schema/db/postgres"
	"github.com/opst/knitfleet/pkg/utils/try"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Host     string `flag:"host" help:"The host of the database."`
	Port     int    `flag:"port" help:"The port of the database."`
	User     string `flag:"user" help:"The user of the database."`
	Password string `flag:"pass" help:"The password of the database."`
	Database string `flag:"database" help:"The name of the database."`

	Schema string `flag:"schema" help:"The path to the schema repository directory. Embedded schema is used when empty."`
}

const ARG_SCHEMA_DEST = "DEST"

func databaseURL(flags Flag) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(flags.User, flags.Password),
		Host:   flags.Host + ":" + strconv.Itoa(flags.Port),
		Path:   "/" + flags.Database,
	}
	return u.String()
}

func Upgrade(ctx context.Context, logger *log.Logger, flags Flag, dest []string) error {
	if flags.Host == "" || flags.Database == "" {
		return fmt.Errorf("%w: flag `--host` and `--database` (or, envvar DB_HOST and DB_NAME) are required", flarc.ErrUsage)
	}

	var repository fs.FS = pgschema.Embedded()
	if flags.Schema != "" {
		repository = os.DirFS(flags.Schema)
	}

	if len(dest) != 0 {
		logger.Println("copying schema files...")
		if err := os.CopyFS(dest[0], repository); err != nil {
			return err
		}
	}

	pool, err := kpool.Connect(ctx, databaseURL(flags))
	if err != nil {
		return err
	}
	defer pool.Close()

	var s kschema.SchemaInterface
	if flags.Schema != "" {
		s = pgschema.FromDirectory(pool, flags.Schema)
	} else {
		s = pgschema.New(pool)
	}
	if err := s.Upgrade(ctx); err != nil {
		return err
	}
	logger.Println("schema is up to date.")
	return nil
}

func main() {
	logger := log.Default()
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt, os.Kill,
	)
	defer cancel()

	port := 5432
	if sp := os.Getenv("DB_PORT"); sp != "" {
		port = try.To(strconv.Atoi(sp)).OrDefault(port)
	}

	cmd := try.To(flarc.NewCommand(
		"database schema upgrader",
		Flag{
			Host:     os.Getenv("DB_HOST"),
			Port:     port,
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Database: os.Getenv("DB_NAME"),
			Schema:   os.Getenv("KNITFLEET_SCHEMA"),
		},
		flarc.Args{
			{
				Name: ARG_SCHEMA_DEST, Help: "The schema files are copied to this directory.",
				Required: false, Repeatable: false,
			},
		},
		func(ctx context.Context, c flarc.Commandline[Flag], _ []any) error {
			return Upgrade(ctx, logger, c.Flags(), c.Args()[ARG_SCHEMA_DEST])
		},
	)).OrFatal(logger)

	os.Exit(flarc.Run(ctx, cmd))
}

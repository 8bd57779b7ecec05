package migration

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/eduverse-labs/eduverse/src/cli"
	"github.com/eduverse-labs/eduverse/src/db"
	"github.com/eduverse-labs/eduverse/src/migration/migrations"
	"github.com/eduverse-labs/eduverse/src/migration/types"
	"github.com/eduverse-labs/eduverse/src/oops"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
)

var listMigrations bool

func init() {
	migrateCommand := &cobra.Command{
		Use:   "migrate [target migration id]",
		Short: "Run creation journal database migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := cli.CommandJob(cmd)
			defer job.Finish()

			if listMigrations {
				return ListMigrations(job.Ctx)
			}

			var targetVersion types.MigrationVersion
			if len(args) > 0 {
				var err error
				targetVersion, err = types.ParseVersion(args[0])
				if err != nil {
					return oops.New(err, "bad version string")
				}
			}
			return Migrate(job.Ctx, targetVersion)
		},
	}
	migrateCommand.Flags().BoolVar(&listMigrations, "list", false, "List available migrations")

	makeMigrationCommand := &cobra.Command{
		Use:   "makemigration <name> <description>...",
		Short: "Create a new database migration file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			description := strings.Join(args[1:], " ")

			path, err := MakeMigration(name, description, time.Now())
			if err != nil {
				return err
			}
			fmt.Println("Successfully created migration file:")
			fmt.Println(path)
			return nil
		},
	}

	cli.RootCommand.AddCommand(migrateCommand)
	cli.RootCommand.AddCommand(makeMigrationCommand)
}

func getSortedMigrationVersions() []types.MigrationVersion {
	var allVersions []types.MigrationVersion
	for migrationTime := range migrations.All {
		allVersions = append(allVersions, migrationTime)
	}
	sort.Slice(allVersions, func(i, j int) bool {
		return allVersions[i].Before(allVersions[j])
	})

	return allVersions
}

func getCurrentVersion(ctx context.Context, conn db.ConnOrTx) (types.MigrationVersion, error) {
	var currentVersion time.Time
	row := conn.QueryRow(ctx, "SELECT version FROM eduverse_migration")
	err := row.Scan(&currentVersion)
	if err != nil {
		return types.MigrationVersion{}, err
	}

	return types.MigrationVersion(currentVersion.UTC()), nil
}

func ListMigrations(ctx context.Context) error {
	// The database is optional here; without it we still list what exists.
	var currentVersion types.MigrationVersion
	if conn, err := db.NewConn(ctx); err == nil {
		currentVersion, _ = getCurrentVersion(ctx, conn)
		conn.Close(ctx)
	} else if !errors.Is(err, db.ErrNotConfigured) {
		fmt.Printf("Could not read current version: %v\n", err)
	}

	for _, version := range getSortedMigrationVersions() {
		migration := migrations.All[version]
		indicator := "  "
		if version.Equal(currentVersion) {
			indicator = "✔ "
		}
		fmt.Printf("%s%v (%s: %s)\n", indicator, version, migration.Name(), migration.Description())
	}
	return nil
}

type Direction int

const (
	Forward Direction = iota
	Backward
)

// A Step applies (or reverts) one migration and leaves the database at
// ResultVersion.
type Step struct {
	Direction     Direction
	Version       types.MigrationVersion
	ResultVersion types.MigrationVersion
}

// Plan works out the steps to take the database from current to target. A
// zero target means the latest migration.
func Plan(all []types.MigrationVersion, current, target types.MigrationVersion) ([]Step, error) {
	if len(all) == 0 {
		return nil, nil
	}
	if target.IsZero() {
		target = all[len(all)-1]
	}

	currentIndex := -1
	targetIndex := -1
	for i, version := range all {
		if current.Equal(version) {
			currentIndex = i
		}
		if target.Equal(version) {
			targetIndex = i
		}
	}

	if targetIndex < 0 {
		return nil, oops.New(nil, "could not find migration with version %v", target)
	}
	if currentIndex < 0 && !current.IsZero() {
		return nil, oops.New(nil, "database is at unknown migration version %v", current)
	}

	var steps []Step
	if currentIndex < targetIndex {
		for i := currentIndex + 1; i <= targetIndex; i++ {
			steps = append(steps, Step{
				Direction:     Forward,
				Version:       all[i],
				ResultVersion: all[i],
			})
		}
	} else {
		for i := currentIndex; i > targetIndex; i-- {
			previousVersion := types.MigrationVersion{}
			if i > 0 {
				previousVersion = all[i-1]
			}
			steps = append(steps, Step{
				Direction:     Backward,
				Version:       all[i],
				ResultVersion: previousVersion,
			})
		}
	}
	return steps, nil
}

func Migrate(ctx context.Context, targetVersion types.MigrationVersion) error {
	conn, err := db.NewConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS eduverse_migration (
			version		TIMESTAMP WITH TIME ZONE
		)
	`)
	if err != nil {
		return oops.New(err, "failed to create migration table")
	}

	// ensure there is a row
	numRows, err := db.QueryOne[int](ctx, conn, "SELECT COUNT(*) FROM eduverse_migration")
	if err != nil {
		return err
	}
	if *numRows < 1 {
		_, err := conn.Exec(ctx, "INSERT INTO eduverse_migration (version) VALUES ($1)", time.Time{})
		if err != nil {
			return oops.New(err, "failed to insert initial migration row")
		}
	}

	currentVersion, err := getCurrentVersion(ctx, conn)
	if err != nil {
		return oops.New(err, "failed to get current version")
	}
	if currentVersion.IsZero() {
		fmt.Println("This is the first time you have run database migrations.")
	} else {
		fmt.Printf("Current version: %s\n", currentVersion.String())
	}

	steps, err := Plan(getSortedMigrationVersions(), currentVersion, targetVersion)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		fmt.Println("Already migrated; nothing to do.")
		return nil
	}

	for _, step := range steps {
		if err := applyStep(ctx, conn, step); err != nil {
			return err
		}
	}
	return nil
}

func applyStep(ctx context.Context, conn *pgx.Conn, step Step) error {
	migration := migrations.All[step.Version]

	tx, err := conn.Begin(ctx)
	if err != nil {
		return oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	if step.Direction == Forward {
		fmt.Printf("Applying migration %v (%v)\n", step.Version, migration.Name())
		err = migration.Up(ctx, tx)
	} else {
		fmt.Printf("Rolling back migration %v\n", step.Version)
		err = migration.Down(ctx, tx)
	}
	if err != nil {
		return oops.New(err, "migration %v (%s) failed", step.Version, migration.Name())
	}

	_, err = tx.Exec(ctx, "UPDATE eduverse_migration SET version = $1", time.Time(step.ResultVersion))
	if err != nil {
		return oops.New(err, "failed to update version in migrations table")
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.New(err, "failed to commit transaction")
	}
	return nil
}

//go:embed migrationTemplate.txt
var migrationTemplate string

// RenderMigration fills in the migration template. The returned filename is
// derived from the version, with colons stripped.
func RenderMigration(name, description string, now time.Time) (filename, source string) {
	now = now.UTC().Truncate(time.Second)

	source = migrationTemplate
	source = strings.ReplaceAll(source, "%NAME%", name)
	source = strings.ReplaceAll(source, "%DESCRIPTION%", fmt.Sprintf("%#v", description))

	nowConstructor := fmt.Sprintf("time.Date(%d, %d, %d, %d, %d, %d, 0, time.UTC)", now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second())
	source = strings.ReplaceAll(source, "%DATE%", nowConstructor)

	safeVersion := strings.ReplaceAll(types.MigrationVersion(now).String(), ":", "")
	filename = fmt.Sprintf("%v_%v.go", safeVersion, name)
	return filename, source
}

func MakeMigration(name, description string, now time.Time) (string, error) {
	filename, source := RenderMigration(name, description, now)
	path := filepath.Join("src", "migration", "migrations", filename)

	if err := os.WriteFile(path, []byte(source), 0644); err != nil {
		return "", oops.New(err, "failed to write migration file")
	}
	return path, nil
}

package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	mods "github.com/goliatone/go-mods"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const (
	rootDir    = "data/sql/migrations"
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Version is one numbered migration with both directions present.
type Version struct {
	Number int
	Name   string
}

func (v Version) String() string {
	return fmt.Sprintf("%05d_%s", v.Number, v.Name)
}

// Set is the migration directory of one dialect.
type Set struct {
	Dialect  string
	Path     string
	FS       fs.FS
	Versions []Version
}

func (s Set) Latest() Version {
	if len(s.Versions) == 0 {
		return Version{}
	}
	return s.Versions[len(s.Versions)-1]
}

// DialectForDriver maps a database/sql driver name to its migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("migrations: no dialect for driver %q", driver)
	}
}

// Load returns the checked migration set for dialect. The embedded schema is
// used unless source is given.
func Load(dialect string, source ...fs.FS) (Set, error) {
	dialect = strings.ToLower(strings.TrimSpace(dialect))
	root := mods.GetMigrationsFS()
	if len(source) > 0 && source[0] != nil {
		root = source[0]
	}

	path := rootDir
	switch dialect {
	case DialectPostgres:
	case DialectSQLite:
		path = rootDir + "/" + DialectSQLite
	default:
		return Set{}, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
	sub, err := fs.Sub(root, path)
	if err != nil {
		return Set{}, fmt.Errorf("migrations: open %s: %w", path, err)
	}
	versions, err := scan(sub)
	if err != nil {
		return Set{}, fmt.Errorf("migrations: %s: %w", dialect, err)
	}
	return Set{Dialect: dialect, Path: path, FS: sub, Versions: versions}, nil
}

// CheckParity fails when the dialects do not ship the same versions.
func CheckParity(source ...fs.FS) error {
	postgres, err := Load(DialectPostgres, source...)
	if err != nil {
		return err
	}
	sqlite, err := Load(DialectSQLite, source...)
	if err != nil {
		return err
	}
	if len(postgres.Versions) != len(sqlite.Versions) {
		return fmt.Errorf("migrations: postgres has %d versions, sqlite has %d",
			len(postgres.Versions), len(sqlite.Versions))
	}
	for i := range postgres.Versions {
		if postgres.Versions[i] != sqlite.Versions[i] {
			return fmt.Errorf("migrations: version mismatch %s (postgres) vs %s (sqlite)",
				postgres.Versions[i], sqlite.Versions[i])
		}
	}
	return nil
}

// Apply loads the set for dialect and hands its filesystem to register,
// usually (*persistence.Client).RegisterSQLMigrations.
func Apply(ctx context.Context, dialect string, register func(fsys fs.FS)) (Set, error) {
	if register == nil {
		return Set{}, fmt.Errorf("migrations: register function is required")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return Set{}, err
		}
	}
	set, err := Load(dialect)
	if err != nil {
		return Set{}, err
	}
	register(set.FS)
	return set, nil
}

func scan(fsys fs.FS) ([]Version, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	type pair struct {
		version  Version
		up, down bool
	}
	pairs := map[int]*pair{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		var up bool
		switch {
		case strings.HasSuffix(name, upSuffix):
			up = true
		case strings.HasSuffix(name, downSuffix):
		default:
			continue
		}
		version, err := parseVersion(name)
		if err != nil {
			return nil, err
		}
		current, ok := pairs[version.Number]
		if !ok {
			current = &pair{version: version}
			pairs[version.Number] = current
		} else if current.version.Name != version.Name {
			return nil, fmt.Errorf("version %d is used by %q and %q", version.Number, current.version.Name, version.Name)
		}
		if up {
			current.up = true
		} else {
			current.down = true
		}
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no *%s files", upSuffix)
	}

	versions := make([]Version, 0, len(pairs))
	for _, p := range pairs {
		if !p.up || !p.down {
			return nil, fmt.Errorf("%s is missing its up or down script", p.version)
		}
		versions = append(versions, p.version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Number < versions[j].Number })
	return versions, nil
}

func parseVersion(filename string) (Version, error) {
	base := strings.TrimSuffix(strings.TrimSuffix(filename, upSuffix), downSuffix)
	number, name, ok := strings.Cut(base, "_")
	if !ok || strings.TrimSpace(name) == "" {
		return Version{}, fmt.Errorf("migration %q is not named <version>_<name>", filename)
	}
	n, err := strconv.Atoi(number)
	if err != nil || n <= 0 {
		return Version{}, fmt.Errorf("migration %q has an invalid version", filename)
	}
	return Version{Number: n, Name: name}, nil
}

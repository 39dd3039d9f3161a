package catalog

import (
	"os"

	json "github.com/goccy/go-json"

	"github.com/xdbengine/storage/internal/xerrors"
)

// MetaFileSuffix is the on-disk extension for a table's JSON metadata
// file, per spec.md §6 (`<table>.table`).
const MetaFileSuffix = ".table"

// DataFileSuffix is the on-disk extension for a table's paged data file
// (`<table>.data`).
const DataFileSuffix = ".data"

// IndexFilePath formats a `<table>-<index>.index` path component.
func IndexFilePath(dir, table, index string) string {
	return dir + "/" + table + "-" + index + ".index"
}

func MetaFilePath(dir, table string) string { return dir + "/" + table + MetaFileSuffix }
func DataFilePath(dir, table string) string { return dir + "/" + table + DataFileSuffix }

// SaveNew serializes m to path, failing if the file already exists
// (spec.md §4.4 Create: "Exclusive-create <name>.table").
func (m *TableMeta) SaveNew(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return xerrors.New("TableMeta.SaveNew", xerrors.SchemaTableExist)
		}
		return xerrors.Wrap("TableMeta.SaveNew", xerrors.IOErr, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return xerrors.Wrap("TableMeta.SaveNew", xerrors.IOErr, err)
	}
	return nil
}

// Load reads and parses a table's JSON metadata file.
func Load(path string) (*TableMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.New("catalog.Load", xerrors.SchemaTableNotExist)
		}
		return nil, xerrors.Wrap("catalog.Load", xerrors.IOErr, err)
	}
	var m TableMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, xerrors.Wrap("catalog.Load", xerrors.IOErr, err)
	}
	return &m, nil
}

// Save atomically replaces an existing metadata file (DDL, e.g. CREATE
// INDEX, per spec.md §5: "DDL replaces a TableMeta atomically via
// meta-file rename").
func (m *TableMeta) Save(path string) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return xerrors.Wrap("TableMeta.Save", xerrors.IOErr, err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		f.Close()
		return xerrors.Wrap("TableMeta.Save", xerrors.IOErr, err)
	}
	if err := f.Close(); err != nil {
		return xerrors.Wrap("TableMeta.Save", xerrors.IOErr, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return xerrors.Wrap("TableMeta.Save", xerrors.IOErr, err)
	}
	return nil
}

// Unlink removes the metadata file.
func Unlink(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return xerrors.Wrap("catalog.Unlink", xerrors.IOErr, err)
	}
	return nil
}

package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/shlex"
	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/mrzor/compdb-tracer/internal/compdb"
)

var prettyOptions = &pretty.Options{
	Width:    80,
	Prefix:   "",
	Indent:   "  ",
	SortKeys: false,
}

// EncodeDatabase renders entries as an indented JSON array.
func EncodeDatabase(entries []compdb.Entry) ([]byte, error) {
	if entries == nil {
		entries = []compdb.Entry{}
	}
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encoding compilation database: %w", err)
	}
	return pretty.PrettyOptions(data, prettyOptions), nil
}

// WriteDatabase writes entries to w.
func WriteDatabase(w io.Writer, entries []compdb.Entry) error {
	data, err := EncodeDatabase(entries)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadDatabase parses a compilation database. Entries may carry either an
// "arguments" array or a shell-quoted "command" string.
func ReadDatabase(data []byte) ([]compdb.Entry, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("compilation database is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, errors.New("compilation database is not a JSON array")
	}

	var entries []compdb.Entry
	var parseErr error
	root.ForEach(func(key, value gjson.Result) bool {
		entry := compdb.Entry{
			Directory: value.Get("directory").String(),
			File:      value.Get("file").String(),
			Output:    value.Get("output").String(),
		}
		if args := value.Get("arguments"); args.IsArray() {
			for _, arg := range args.Array() {
				entry.Arguments = append(entry.Arguments, arg.String())
			}
		} else if command := value.Get("command"); command.Exists() {
			words, err := shlex.Split(command.String())
			if err != nil {
				parseErr = fmt.Errorf("entry %d: splitting command: %w", key.Int(), err)
				return false
			}
			entry.Arguments = words
		}
		if entry.Directory == "" || entry.File == "" || len(entry.Arguments) == 0 {
			parseErr = fmt.Errorf("entry %d: missing directory, file or arguments", key.Int())
			return false
		}
		entries = append(entries, entry)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return entries, nil
}

// WriteFile writes entries to path, replacing it atomically. With merge set,
// entries of an existing file at path are kept first.
func WriteFile(path string, entries []compdb.Entry, merge bool) error {
	if merge {
		existing, err := os.ReadFile(path)
		switch {
		case err == nil:
			old, err := ReadDatabase(existing)
			if err != nil {
				return fmt.Errorf("reading existing %s: %w", path, err)
			}
			entries = compdb.Merge(old, entries)
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("reading existing %s: %w", path, err)
		}
	}

	data, err := EncodeDatabase(entries)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // Gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // Write error takes precedence
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("setting mode on %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

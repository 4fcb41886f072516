package query

import "strings"

// CommandMarker prefixes a path segment that requests a meta-operation
// (list databases, list tables, describe, raw query) instead of row access.
const CommandMarker = "_"

// Commands understood by the compiler.
const (
	CommandDatabases = "databases"
	CommandTables    = "tables"
	CommandQuery     = "query"
	CommandDescribe  = "describe"
)

// maxPositional is the number of database/table/id segments a path may carry.
const maxPositional = 3

// ResourcePath is the decomposed request path. Empty fields are absent.
type ResourcePath struct {
	Command  string `json:"command,omitempty"`
	Database string `json:"database,omitempty"`
	Table    string `json:"table,omitempty"`
	ID       string `json:"id,omitempty"`
}

// ResolvePath splits a slash-delimited path into command, database, table
// and id. Empty segments are ignored. The first command segment ends
// parsing; whatever follows it is discarded.
func ResolvePath(path string) (ResourcePath, error) {
	var rp ResourcePath
	positional := 0

	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}

		if strings.HasPrefix(part, CommandMarker) {
			if rp.ID != "" {
				return ResourcePath{}, invalidPath(path, "Invalid path. Command cannot follow an id.")
			}
			command := strings.ToLower(strings.TrimPrefix(part, CommandMarker))
			if command == "" {
				return ResourcePath{}, invalidPath(path, "Invalid path. Empty command.")
			}
			rp.Command = command
			break
		}

		if positional == maxPositional {
			return ResourcePath{}, invalidPath(path, "Invalid path.")
		}
		switch positional {
		case 0:
			rp.Database = part
		case 1:
			rp.Table = part
		case 2:
			rp.ID = part
		}
		positional++
	}

	return rp, nil
}

// IsCommand reports whether the path requests a meta-operation.
func (rp ResourcePath) IsCommand() bool {
	return rp.Command != ""
}

func invalidPath(path, msg string) *Error {
	return &Error{Kind: KindInvalidPath, Message: msg, Path: path}
}

package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andreyvit/lazydb"
	"github.com/andreyvit/lazydb/kvstore"
)

var (
	dbPath     string
	schemaPath string

	rootCmd = &cobra.Command{
		Use:           "lazydb",
		Short:         "Inspect and modify a lazydb database file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the database file")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "path to the schema YAML file")
	rootCmd.MarkPersistentFlagRequired("db")
	rootCmd.MarkPersistentFlagRequired("schema")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(clearCmd)
}

// openDB builds the handle for one command invocation. Opening is
// asynchronous; the first operation waits on the readiness gate, so
// commands just use the handle directly.
func openDB() (*lazydb.DB, error) {
	scm, err := loadSchema(schemaPath)
	if err != nil {
		return nil, err
	}
	store := kvstore.NewBolt(dbPath, kvstore.Options{})
	name := strings.TrimSuffix(filepath.Base(dbPath), filepath.Ext(dbPath))
	return lazydb.Open(store, scm, lazydb.Options{Name: name}), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// filterValue interprets a --filter value the way JSON would: numbers,
// booleans and null get their typed meaning, anything else stays a string.
// Stored numbers are float64, so a bare "30" must filter as 30.0, not "30".
func filterValue(s string) any {
	switch s {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

var addCmd = &cobra.Command{
	Use:   "add <table> <json-record>",
	Short: "Insert a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var record lazydb.Record
		if err := json.Unmarshal([]byte(args[1]), &record); err != nil {
			return fmt.Errorf("bad record: %w", err)
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		id, err := db.Add(args[0], record)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"id": id})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <table> <id>",
	Short: "Fetch a record by primary key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		result, err := db.Get(args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <table> <id>",
	Short: "Delete a record by primary key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		removed, err := db.Remove(args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"removed": len(removed)})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <table>",
	Short: "Remove every record of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Clear(args[0])
	},
}

var (
	queryFilters []string
	queryLimit   int
	queryDesc    bool
	queryKeys    bool
)

var queryCmd = &cobra.Command{
	Use:   "query <table>",
	Short: "Run a filtered query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		q, err := db.Query(args[0])
		if err != nil {
			return err
		}
		for _, f := range queryFilters {
			field, value, ok := strings.Cut(f, "=")
			if !ok {
				return fmt.Errorf("bad --filter %q, want field=value", f)
			}
			q.Filter(field, filterValue(value))
		}
		if queryLimit > 0 {
			q.Limit(queryLimit)
		}
		if queryDesc {
			q.Desc()
		}
		if queryKeys {
			q.Keys()
		}
		result, err := q.Execute()
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

func init() {
	queryCmd.Flags().StringArrayVar(&queryFilters, "filter", nil, "field=value equality filter (repeatable, AND semantics)")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "cap the number of matched records")
	queryCmd.Flags().BoolVar(&queryDesc, "desc", false, "reverse the result order")
	queryCmd.Flags().BoolVar(&queryKeys, "keys", false, "return primary keys instead of records")
}

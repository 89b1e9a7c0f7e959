package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Ratio1/rtdb_sdk_go/pkg/rtdb"
)

// queryFlags are the query options shared by data commands.
type queryFlags struct {
	params  []string
	shallow bool
	silent  bool
}

func (q *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&q.params, "query", "q", nil, "query parameter key=value (repeatable)")
	cmd.Flags().BoolVar(&q.shallow, "shallow", false, "return only the keys of an object")
	cmd.Flags().BoolVar(&q.silent, "silent", false, "ask the service not to echo written data")
}

func (q *queryFlags) build() (rtdb.Query, error) {
	query, err := parseQuery(q.params)
	if err != nil {
		return nil, err
	}
	if q.shallow {
		query["shallow"] = "true"
	}
	if q.silent {
		query["print"] = "silent"
	}
	return query, nil
}

// parseQuery turns key=value pairs into a Query. Values that parse as
// integers, floats or booleans keep that type.
func parseQuery(pairs []string) (rtdb.Query, error) {
	query := make(rtdb.Query, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid query parameter %q (want key=value)", pair)
		}
		query[key] = scalar(raw)
	}
	return query, nil
}

func scalar(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

// parseValue reads a command-line value as JSON, falling back to a plain string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return json.RawMessage(raw)
	}
	return raw
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func (a *app) getCmd() *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Read the data at a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.build()
			if err != nil {
				return err
			}
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			value, err := db.Get(commandContext(cmd), args[0], query)
			if err != nil {
				return a.redact(err)
			}
			return printJSON(cmd.OutOrStdout(), value)
		},
	}
	q.register(cmd)
	return cmd
}

func (a *app) setCmd() *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "set <path> <json>",
		Short: "Replace the data at a path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.build()
			if err != nil {
				return err
			}
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			value, err := db.Set(commandContext(cmd), args[0], parseValue(args[1]), query)
			if err != nil {
				return a.redact(err)
			}
			return printJSON(cmd.OutOrStdout(), value)
		},
	}
	q.register(cmd)
	return cmd
}

func (a *app) pushCmd() *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "push <path> <json>",
		Short: "Append a child under a generated key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.build()
			if err != nil {
				return err
			}
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			key, err := db.Push(commandContext(cmd), args[0], parseValue(args[1]), query)
			if err != nil {
				return a.redact(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	q.register(cmd)
	return cmd
}

func (a *app) updateCmd() *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "update <path> <json-object>",
		Short: "Write the given children of a path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.build()
			if err != nil {
				return err
			}
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			value, err := db.Update(commandContext(cmd), args[0], parseValue(args[1]), query)
			if err != nil {
				return a.redact(err)
			}
			return printJSON(cmd.OutOrStdout(), value)
		},
	}
	q.register(cmd)
	return cmd
}

func (a *app) removeCmd() *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:     "remove <path>",
		Aliases: []string{"rm"},
		Short:   "Delete the data at a path",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.build()
			if err != nil {
				return err
			}
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Remove(commandContext(cmd), args[0], query); err != nil {
				return a.redact(err)
			}
			pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("removed %s", args[0])
			return nil
		},
	}
	q.register(cmd)
	return cmd
}

func (a *app) getAllCmd() *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "getall <path>...",
		Short: "Read several paths in one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.build()
			if err != nil {
				return err
			}
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			requests := make([]rtdb.Request, len(args))
			for i, p := range args {
				requests[i] = rtdb.Request{Path: p, Method: rtdb.MethodGet, Query: query}
			}
			results, err := db.GetAll(commandContext(cmd), requests...)
			if err != nil {
				return a.redact(err)
			}
			return renderResults(cmd.OutOrStdout(), args, results)
		},
	}
	q.register(cmd)
	return cmd
}

func renderResults(w io.Writer, paths []string, results []rtdb.Result) error {
	data := pterm.TableData{{"Path", "Status", "Value"}}
	for i, res := range results {
		if !res.OK() {
			data = append(data, []string{paths[i], pterm.Red("error"), res.Err.Error()})
			continue
		}
		encoded, err := json.Marshal(res.Value)
		if err != nil {
			return err
		}
		data = append(data, []string{paths[i], pterm.Green("ok"), string(encoded)})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
}

package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var tablesCmd = &cobra.Command{
	Use:   "list-tables",
	Short: "List the extractable tables",
	Long: `List the tables the registry knows about, with the time field and
ordering each one is paged by. Needs no database connection.`,
	Args: cobra.NoArgs,
	RunE: runListTables,
}

func runListTables(cmd *cobra.Command, _ []string) error {
	// No database, so no full config load: only the registry file
	// location matters here.
	godotenv.Overload()
	registry, err := buildRegistry(os.Getenv("EXTRACT_TABLES_FILE"))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTIME FIELD\tPRIMARY KEY\tORDER BY\tDESCRIPTION")
	for _, table := range registry.Tables() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			table.Name,
			table.TimeField,
			table.PrimaryKey,
			strings.Join(table.OrderFields, ", "),
			table.Description,
		)
	}
	return w.Flush()
}

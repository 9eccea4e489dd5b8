package main

import (
	"encoding/json"
	"fmt"

	"github.com/caffeineduck/pdksim/hostfunc"
	"github.com/caffeineduck/pdksim/internal/config"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [http|session]",
	Short: "Print JSON schemas",
	Long: `Print the JSON schema of the http_request descriptor a guest passes to
the host (default), or of the session file.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"http", "session"},
	RunE:      runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	which := "http"
	if len(args) > 0 {
		which = args[0]
	}

	var (
		data []byte
		err  error
	)
	switch which {
	case "http":
		data, err = generateSchema(&hostfunc.HTTPRequestDescriptor{}, "json")
	case "session":
		data, err = generateSchema(&config.Session{}, "yaml")
	default:
		return fmt.Errorf("unknown schema %q: use http or session", which)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func generateSchema(v any, tag string) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		FieldNameTag:   tag,
	}
	schema := reflector.Reflect(v)

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xeipuuv/gojsonschema"

	"github.com/covmerge/covmerge/pkg/report/schema"
)

// exitCodeValidationFailure is the exit code for validation failures.
const exitCodeValidationFailure = 2

func validateCmd() *cobra.Command {
	var schemaPath string

	var nocolor bool

	cmd := &cobra.Command{
		Use:   "validate <summary.json|->",
		Short: "Validate a report summary JSON file against its schema",
		Long: `Validate a serialized report summary against the canonical schema.

Examples:
  covmerge validate summary.json
  covmerge validate - < summary.json
  covmerge validate --schema custom-schema.json summary.json
`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runValidate(args[0], schemaPath, nocolor)
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "path to an alternative report summary JSON schema")
	cmd.Flags().BoolVar(&nocolor, "no-color", false, "disable colored output")

	return cmd
}

func runValidate(inputPath, schemaPath string, nocolor bool) error {
	if nocolor {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	inputReader, inputLabel := loadInput(inputPath)

	var inputData any

	dec := json.NewDecoder(inputReader)
	dec.UseNumber()

	decodeErr := dec.Decode(&inputData)
	if decodeErr != nil {
		fmt.Fprintf(os.Stderr, "Invalid JSON in %s: %v\n", inputLabel, decodeErr)
		os.Exit(exitCodeValidationFailure)
	}

	schemaLoader := loadSchema(schemaPath)
	inputLoader := gojsonschema.NewGoLoader(inputData)

	result, err := gojsonschema.Validate(schemaLoader, inputLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Schema validation error: %v\n", err)
		os.Exit(exitCodeValidationFailure)
	}

	if result.Valid() {
		color.New(color.FgGreen).Fprintf(os.Stdout, "report summary is valid (%s)\n", inputLabel)

		return nil
	}

	color.New(color.FgRed).Fprintf(os.Stdout, "report summary validation failed (%s)\n", inputLabel)
	fmt.Fprintf(os.Stdout, "\nErrors:\n")

	for _, verr := range result.Errors() {
		color.New(color.FgRed).Fprintf(os.Stdout, "  - %s: %s\n", verr.Field(), verr.Description())
	}

	os.Exit(1)

	return nil
}

//nolint:nonamedreturns // named returns needed for gocritic unnamedResult
func loadInput(inputPath string) (inputReader io.Reader, inputLabel string) {
	if inputPath == "-" {
		return os.Stdin, "stdin"
	}

	inputFile, err := os.Open(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open input: %v\n", err)
		os.Exit(exitCodeValidationFailure)
	}

	return inputFile, inputPath
}

func loadSchema(schemaPath string) gojsonschema.JSONLoader {
	if schemaPath == "" {
		schemaBytes, err := schema.SummarySchemaFS.ReadFile("report-summary.json")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read embedded schema: %v\n", err)
			os.Exit(exitCodeValidationFailure)
		}

		return gojsonschema.NewBytesLoader(schemaBytes)
	}

	schemaBytes, err := os.ReadFile(schemaPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read schema: %v\n", err)
		os.Exit(exitCodeValidationFailure)
	}

	return gojsonschema.NewBytesLoader(schemaBytes)
}

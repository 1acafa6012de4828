package main

import (
	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List indexed files",
	Long:  "Lists the files held by the index ordered by path, with the provider that produced each forest. --languages restricts the listing.",
	Args:  cobra.NoArgs,
	RunE:  runFiles,
}

func init() {
	filesCmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. go,python)")
}

func runFiles(cmd *cobra.Command, args []string) error {
	env, err := loadEnvFromCwd()
	if err != nil {
		return outputError("files", err)
	}
	engine, err := env.openIndex()
	if err != nil {
		return outputError("files", err)
	}
	defer engine.Close()

	files, err := engine.Query().Files(splitList(flagLanguages)...)
	if err != nil {
		return outputError("files", err)
	}
	out := make([]CLIFile, 0, len(files))
	for _, f := range files {
		out = append(out, fileToCLI(f))
	}
	total := len(out)
	return outputResult(CLIResult{Command: "files", Results: out, TotalCount: &total})
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/ccbuild/internal/target"
)

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "Print the compilation database",
	Long: `Print the compile command of every source as a JSON compilation database,
without running anything.`,
	RunE:         runCommands,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
}

func init() {
	commandsCmd.Flags().StringP("output", "o", "", "Write the database to a file instead of stdout")
}

func runCommands(cmd *cobra.Command, args []string) error {
	s, err := setup(cmd)
	if err != nil {
		return err
	}

	cmds, err := s.project.CompileCommands()
	if err != nil {
		return err
	}

	if cmds == nil {
		cmds = []target.CompileCommand{}
	}

	data, err := json.MarshalIndent(cmds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode compile commands: %w", err)
	}

	data = append(data, '\n')

	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write compile commands: %w", err)
	}

	console.Success("wrote %d compile commands to %s", len(cmds), path)
	return nil
}

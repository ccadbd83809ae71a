package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"custodia/internal/sanitize"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sanitize [text]",
		Short: "Run text through the sanitization rules",
		Long:  "Sanitize applies the active rule set to the given text (or stdin) and prints the result. Useful for verifying a rule file before deploying it.",
		Run:   runSanitize,
	}

	cmd.Flags().StringP("rules", "r", "", "Path to a YAML rule file (defaults to the built-in rules)")

	RootCmd.AddCommand(cmd)
}

func runSanitize(cmd *cobra.Command, args []string) {
	rulesPath, _ := cmd.Flags().GetString("rules")

	engine := sanitize.New(sanitize.DefaultRules()...)
	if rulesPath != "" {
		rules, err := sanitize.LoadRules(rulesPath)
		if err != nil {
			exitErr("load rules", err)
		}
		engine.Reload(rules)
	}

	if len(args) > 0 {
		for _, arg := range args {
			fmt.Println(engine.Sanitize(arg))
		}
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fmt.Println(engine.Sanitize(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		exitErr("read stdin", err)
	}
}

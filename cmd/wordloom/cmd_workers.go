package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"wordloom/internal/worker"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List the built-in workers and their capabilities",
	Run: func(cmd *cobra.Command, args []string) {
		// No backend needed to inspect metadata.
		for _, w := range worker.NewDefaultRegistry(nil).List() {
			meta := w.Metadata()
			fmt.Printf("%-20s %s\n", meta.ID, meta.Name)
			fmt.Printf("%-20s keywords: %s\n", "", strings.Join(meta.Keywords, ", "))
			if len(meta.TaskKinds) > 0 {
				kinds := make([]string, len(meta.TaskKinds))
				for i, k := range meta.TaskKinds {
					kinds[i] = string(k)
				}
				fmt.Printf("%-20s kinds: %s\n", "", strings.Join(kinds, ", "))
			}
		}
	},
}

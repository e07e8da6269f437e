// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the idea2paper version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("idea2paper", version)
	},
}

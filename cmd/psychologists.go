package main

import "github.com/spf13/cobra"

var psychologistsCmd = &cobra.Command{
	Use:   "psychologists",
	Short: "Psychologist directory ETL",
	Long:  "Extract the public psychologist directory city by city into a local staging database and load it into the catalog.",
}

func init() { rootCmd.AddCommand(psychologistsCmd) }

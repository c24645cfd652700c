package main

import "github.com/spf13/cobra"

var citiesCmd = &cobra.Command{
	Use:   "cities",
	Short: "City catalog maintenance",
	Long:  "Create, populate, audit and reconcile the city catalog against reference files and the geographic API.",
}

func init() { rootCmd.AddCommand(citiesCmd) }

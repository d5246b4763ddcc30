package main

import "github.com/mon-metrics/incentive-dashboard/internal/cli"

func main() {
	cli.Execute()
}

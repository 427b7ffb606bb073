// Command schematic loads schematic projects and converts their schemes.
package main

import "github.com/mesh-intelligence/schematic/internal/cli"

func main() {
	cli.Main()
}

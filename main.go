// SPDX-License-Identifier: MPL-2.0

// Command envmatrix runs declarative test environment matrices.
package main

import cmd "github.com/chr1043086360/envmatrix/cmd/envmatrix"

func main() {
	cmd.Execute()
}

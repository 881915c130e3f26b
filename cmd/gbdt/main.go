// Command gbdt trains gradient-boosted decision tree ensembles from
// LIBSVM-format datasets and manages their checkpoints.
package main

import "github.com/gogbdt/gbdt/cmd/gbdt/cmd"

func main() {
	cmd.Execute()
}

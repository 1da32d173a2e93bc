// Command l0scanner runs the Layer-0 prompt-injection and jailbreak filter,
// either as a long-lived HTTP service, a one-shot CLI scan, or a rule-set
// inspection tool.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

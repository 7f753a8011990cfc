// Command roomcal は会議室予約サービスのエントリーポイント。
//
//	roomcal [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/roomcal/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "roomcal: %v\n", err)
		os.Exit(1)
	}
}

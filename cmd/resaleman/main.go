// Command resaleman は出品管理デスクトップアプリのコアプロセス。
// サブコマンド: serve（デフォルト）, worker, migrate, cleanup, healthcheck
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/resaleman/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "resaleman: %v\n", err)
		os.Exit(1)
	}
}

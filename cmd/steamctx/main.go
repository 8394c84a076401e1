package main

import (
	"os"

	"github.com/hitoshi/steamctx/internal/app"
)

func main() {
	os.Exit(app.Main())
}

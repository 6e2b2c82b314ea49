package main

import (
	"os"

	"github.com/nuetzliches/busgate/internal/app"
)

func main() {
	os.Exit(app.Main(os.Args))
}

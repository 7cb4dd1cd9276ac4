package main

import (
	"os"

	"horse.fit/atlas/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}

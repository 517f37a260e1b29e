package main

import (
	"context"
	"gradewatch/cmd/gradewatch/commands"

	"github.com/joho/godotenv"
)

func main() {
	// a .env next to the binary may carry the portal and smtp passwords
	godotenv.Load()
	commands.ExecuteContext(context.Background())
}

package main

import (
	"context"
	"log"
	"os"

	"github.com/naveen246/kite/cli"
)

func main() {
	cfg := cli.MustParse(os.Args)
	if err := cli.Run(context.Background(), cfg); err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	_ "github.com/viant/scy/kms/blowfish"

	"github.com/viant/mcprelay"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := mcprelay.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}

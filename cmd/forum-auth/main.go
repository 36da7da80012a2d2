package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/forum-auth/internal/app"
	"github.com/example/forum-auth/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer application.Close()

	if len(os.Args) > 1 && os.Args[1] == "createsuperuser" {
		if err := createSuperuser(ctx, application.Service(), os.Args[2:]); err != nil {
			log.Printf("createsuperuser: %v", err)
			application.Close()
			os.Exit(1)
		}
		return
	}

	if err := application.Run(ctx); err != nil {
		log.Printf("app stopped: %v", err)
	}
}

func createSuperuser(ctx context.Context, service usecase.Service, args []string) error {
	fs := flag.NewFlagSet("createsuperuser", flag.ContinueOnError)
	in := usecase.PasswordRegistration{}
	fs.StringVar(&in.Handle, "handle", "", "login handle")
	fs.StringVar(&in.Nickname, "nickname", "", "display nickname")
	fs.StringVar(&in.Email, "email", "", "email address")
	fs.StringVar(&in.Password, "password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	account, err := service.CreateSuperuser(ctx, "cli", in)
	if err != nil {
		return err
	}
	fmt.Printf("superuser %s created (id %s)\n", account.Handle, account.ID)
	return nil
}

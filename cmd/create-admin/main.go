// Command create-admin bootstraps a superadmin account. Superadmins then
// create city admins over the API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/storage/postgres"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-civic-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-civic-go/pkg/utilities"
)

func main() {
	_ = godotenv.Load()

	name := flag.String("name", utilities.GetEnv("ADMIN_NAME", "Super Admin"), "display name")
	email := flag.String("email", os.Getenv("ADMIN_EMAIL"), "login email")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "login password")
	flag.Parse()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc := user.NewUserService(postgres.New(db), auth.NewTokenIssuer(auth.ConfigFromEnv()), nil, sugar)
	u, err := svc.CreateSuperadmin(ctx, *name, *email, *password)
	if err != nil {
		sugar.Fatalf("create superadmin: %v", err)
	}
	sugar.Infow("superadmin created", "id", u.ID, "email", u.Email)
}

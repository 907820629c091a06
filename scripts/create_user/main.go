package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/helmintheca/archive-api/internal/models"
	"github.com/helmintheca/archive-api/internal/repository"
	"github.com/helmintheca/archive-api/pkg/config"
	"github.com/helmintheca/archive-api/pkg/database"
)

// Creates an account directly in the database. Used to bootstrap the
// first admin on a fresh deployment; further accounts go through the
// /users API.
func main() {
	var (
		email    string
		password string
		fullName string
		role     string
	)

	flag.StringVar(&email, "email", "", "Account email (required)")
	flag.StringVar(&password, "password", "", "Account password (required)")
	flag.StringVar(&fullName, "name", "", "Full name (required)")
	flag.StringVar(&role, "role", string(models.RoleAdmin), "Role: ADMIN, REVIEWER, or CONTRIBUTOR")
	flag.Parse()

	if email == "" || password == "" || fullName == "" {
		flag.Usage()
		log.Fatal("email, password, and name are required")
	}
	if len(password) < 6 {
		log.Fatal("password must be at least 6 characters")
	}

	userRole := models.UserRole(strings.ToUpper(role))
	switch userRole {
	case models.RoleAdmin, models.RoleReviewer, models.RoleContributor:
	default:
		log.Fatalf("invalid role %q", role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo := repository.NewUserRepository(db)
	normalized := strings.ToLower(email)

	if _, err := repo.FindByEmail(ctx, normalized); err == nil {
		log.Fatalf("account %s already exists", normalized)
	} else if !errors.Is(err, sql.ErrNoRows) {
		log.Fatalf("failed to check existing account: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:        normalized,
		PasswordHash: string(hash),
		FullName:     fullName,
		Role:         userRole,
		Active:       true,
	}
	if err := repo.Create(ctx, user); err != nil {
		log.Fatalf("failed to create account: %v", err)
	}

	fmt.Printf("Created %s account %s (%s)\n", user.Role, user.Email, user.ID)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-ai-entitlements/internal/config"
	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/domain/ports/repository"
	"telegram-ai-entitlements/internal/infra/api"
	pg "telegram-ai-entitlements/internal/infra/db/postgres"
	"telegram-ai-entitlements/internal/infra/logging"
)

var (
	usersFlag = flag.String("users", "", "comma separated user ids to seed")
	planFlag  = flag.String("plan", "", "optional paid plan to activate (PLUS or PRO)")
	tokenFlag = flag.String("token", "", "print an API bearer token for this role (service or admin) and exit")
)

func main() {
	// LoadConfig parses the flags declared above too.
	cfg, err := config.LoadConfig()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log, true)

	if *tokenFlag != "" {
		if *tokenFlag != api.RoleService && *tokenFlag != api.RoleAdmin {
			logger.Fatal().Str("role", *tokenFlag).Msg("-token must be service or admin")
		}
		tok, err := api.NewAuthManager(cfg.Security.APISecret, 24*time.Hour).Mint("seed", *tokenFlag, time.Now())
		if err != nil {
			logger.Fatal().Err(err).Msg("mint token")
		}
		fmt.Println(tok)
		return
	}

	ids, err := parseIDs(*usersFlag)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse -users")
	}
	var plan model.PlanCode
	if *planFlag != "" {
		if plan, err = model.ParsePlanCode(*planFlag); err != nil || !plan.IsPaid() {
			logger.Fatal().Str("plan", *planFlag).Msg("-plan must be PLUS or PRO")
		}
	}
	pol, err := cfg.Entitlement.Policy()
	if err != nil {
		logger.Fatal().Err(err).Msg("policy")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	tm := pg.NewTxManager(pool)
	ents := pg.NewEntitlementRepo(pool)
	cat, err := cfg.Entitlement.Catalog.Build()
	if err != nil {
		logger.Fatal().Err(err).Msg("catalog")
	}

	for _, id := range ids {
		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			now := model.SystemClock()
			fresh, err := model.NewEntitlement(id, now)
			if err != nil {
				return err
			}
			if _, err := ents.EnsureExists(ctx, tx, fresh); err != nil {
				return err
			}
			if plan == "" {
				return nil
			}
			e, err := ents.FindByUserID(ctx, tx, id)
			if err != nil {
				return err
			}
			e.ActivatePlan(plan, now, cat, pol)
			return ents.Save(ctx, tx, e)
		})
		if err != nil {
			logger.Fatal().Err(err).Int64("user_id", id).Msg("seed failed")
		}
		fmt.Printf("seeded: user=%d plan=%s\n", id, orFree(plan))
	}
	fmt.Println("Seeding complete.")
}

func parseIDs(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no user ids given")
	}
	return out, nil
}

func orFree(p model.PlanCode) model.PlanCode {
	if p == "" {
		return model.PlanFree
	}
	return p
}

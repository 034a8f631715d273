// Package main provides a CLI tool for setting an account's privileges.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/bancho/internal/config"
	"github.com/cory-johannsen/bancho/internal/game/ruleset"
	"github.com/cory-johannsen/bancho/internal/storage/accountdb"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	username := flag.String("username", "", "target account name (required)")
	privs := flag.String("privileges", "", "comma-separated privilege names, e.g. normal,mod,admin (required)")
	flag.Parse()

	if *username == "" || *privs == "" {
		flag.Usage()
		os.Exit(1)
	}

	mask, err := parsePrivileges(*privs)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := accountdb.Open(ctx, cfg.Database, zap.NewNop())
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer repo.Close()

	acct, err := repo.FetchByName(ctx, *username)
	if err != nil {
		log.Fatalf("looking up account %q: %v", *username, err)
	}

	if err := repo.SetPrivileges(ctx, acct.ID, mask); err != nil {
		log.Fatalf("setting privileges: %v", err)
	}

	elapsed := time.Since(start)
	fmt.Fprintf(os.Stdout, "set privileges for %s (#%d): %d -> %d [%s]\n",
		acct.Name, acct.ID, uint32(acct.Privileges), uint32(mask), elapsed)
}

func parsePrivileges(list string) (ruleset.Privileges, error) {
	var mask ruleset.Privileges
	for _, name := range strings.Split(list, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		p, ok := ruleset.ParsePrivilege(name)
		if !ok {
			return 0, fmt.Errorf("unknown privilege %q", name)
		}
		mask |= p
	}
	return mask, nil
}
